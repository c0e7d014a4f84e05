package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/surveyhub/internal/api"
	dbstore "github.com/soaringjerry/surveyhub/internal/db"
	"github.com/soaringjerry/surveyhub/internal/middleware"
	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/platform/metrics"
	"github.com/soaringjerry/surveyhub/internal/services"
	"github.com/soaringjerry/surveyhub/internal/storage"
)

type testEnv struct {
	srv        *httptest.Server
	adminToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	sqlDB, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(filepath.Join(dir, "test.db"))+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if _, err := dbstore.RunMigrations(sqlDB, ""); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := dbstore.NewSQLiteStore(sqlDB)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	blobs, err := storage.NewLocalStore(filepath.Join(dir, "uploads"), "/uploads")
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}

	authn := middleware.NewAuthenticator("test-secret-0123456789")
	assignments := services.NewAssignmentService(store)
	auth := services.NewAuthService(store, authn.SignToken).WithAssigner(assignments.BackfillUser)
	router := api.NewRouter(api.Deps{
		Auth:         auth,
		Catalog:      services.NewCatalogService(store, nil),
		Submissions:  services.NewSubmissionService(store, blobs, 1<<20),
		Assignments:  assignments,
		Reports:      services.NewReportService(store),
		Authn:        authn,
		Metrics:      metrics.New("survey_test"),
		Uploads:      blobs.Handler(),
		UploadPrefix: blobs.URLPrefix(),
	})
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)

	admin := services.Actor{Role: models.RoleAdmin}
	if _, err := auth.CreateUser(context.Background(), admin, services.NewUser{
		Username: "root", Password: "root-password", Role: models.RoleAdmin,
	}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	env := &testEnv{srv: srv}
	env.adminToken = env.login(t, "root", "root-password")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// call sends a JSON body and decodes the JSON reply into out.
func (e *testEnv) call(t *testing.T, method, path, token string, in any, wantStatus int, out any) {
	t.Helper()
	var body io.Reader
	ct := ""
	if in != nil {
		b, _ := json.Marshal(in)
		body, ct = bytes.NewReader(b), "application/json"
	}
	resp := e.do(t, method, path, token, ct, body)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d: %s", method, path, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	var res struct {
		Token string `json:"token"`
	}
	e.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password}, http.StatusOK, &res)
	if res.Token == "" {
		t.Fatalf("empty token for %s", username)
	}
	return res.Token
}

type surveyFixture struct {
	surveyID, deptID      int64
	choiceQ, textQ, fileQ int64
	optA, optB            int64
}

func (e *testEnv) buildSurvey(t *testing.T) surveyFixture {
	t.Helper()
	var f surveyFixture
	var (
		d models.Department
		q models.Question
		o models.Option
	)
	e.call(t, http.MethodPost, "/api/departments", e.adminToken, map[string]string{"name": "Ops"}, http.StatusCreated, &d)
	f.deptID = d.ID

	var survey models.Survey
	e.call(t, http.MethodPost, "/api/surveys", e.adminToken, map[string]string{"name": "Onboarding"}, http.StatusCreated, &survey)
	f.surveyID = survey.ID

	base := fmt.Sprintf("/api/surveys/%d", f.surveyID)
	e.call(t, http.MethodPost, base+"/questions", e.adminToken, map[string]any{"type": "single_choice", "title": "Team", "sort_key": 1}, http.StatusCreated, &q)
	f.choiceQ = q.ID
	e.call(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/options", f.choiceQ), e.adminToken, map[string]any{"description": "Ops", "sort_key": 1}, http.StatusCreated, &o)
	f.optA = o.ID
	e.call(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/options", f.choiceQ), e.adminToken, map[string]any{"description": "Dev", "sort_key": 2}, http.StatusCreated, &o)
	f.optB = o.ID
	e.call(t, http.MethodPost, base+"/questions", e.adminToken, map[string]any{"type": "free_text", "title": "Comments", "sort_key": 2}, http.StatusCreated, &q)
	f.textQ = q.ID
	e.call(t, http.MethodPost, base+"/questions", e.adminToken, map[string]any{"type": "file_upload", "title": "CV", "sort_key": 3}, http.StatusCreated, &q)
	f.fileQ = q.ID

	e.call(t, http.MethodPost, base+"/assign", e.adminToken, map[string]any{"department_id": f.deptID}, http.StatusCreated, nil)
	return f
}

func (e *testEnv) register(t *testing.T, username string, deptID int64) (string, int64) {
	t.Helper()
	var res struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	e.call(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username, "password": "password-123", "department_id": deptID,
	}, http.StatusCreated, &res)
	return res.Token, res.UserID
}

func TestHealthAndAuthGate(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/me", "", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without token = %d, want 401", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/metrics", "", "", nil)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(raw), "survey_test_http_request_duration_seconds") {
		t.Fatalf("metrics output missing http histogram")
	}
}

func TestRespondentJourney(t *testing.T) {
	env := newTestEnv(t)
	f := env.buildSurvey(t)
	token, uid := env.register(t, "alice", f.deptID)
	base := fmt.Sprintf("/api/surveys/%d", f.surveyID)

	var mine services.UserSurveyPage
	env.call(t, http.MethodGet, "/api/my/surveys", token, nil, http.StatusOK, &mine)
	if mine.Total != 1 || mine.Items[0].Status != models.StatusNotStarted {
		t.Fatalf("my surveys = %+v", mine)
	}

	var opened services.OpenResult
	env.call(t, http.MethodGet, base+"/response", token, nil, http.StatusOK, &opened)
	if !opened.Created || len(opened.Responses) != 3 {
		t.Fatalf("open = created %v rows %d, want created with 3 slots", opened.Created, len(opened.Responses))
	}

	// draft with an attachment
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("action", "save")
	_ = mw.WriteField(fmt.Sprintf("question_%d", f.choiceQ), fmt.Sprint(f.optB))
	_ = mw.WriteField(fmt.Sprintf("question_%d", f.textQ), "first draft")
	fw, _ := mw.CreateFormFile(fmt.Sprintf("file_%d", f.fileQ), "cv.pdf")
	_, _ = fw.Write([]byte("%PDF-1.4"))
	_ = mw.Close()
	resp := env.do(t, http.MethodPost, base+"/response", token, mw.FormDataContentType(), &buf)
	var saved services.SubmitResult
	_ = json.NewDecoder(resp.Body).Decode(&saved)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || saved.Status != models.StatusSavedNotSubmitted || saved.FilesStored != 1 {
		t.Fatalf("save = %d %+v", resp.StatusCode, saved)
	}

	// final submit keeps the attachment via existing_files
	var details services.ResponseDetails
	env.call(t, http.MethodGet, base+"/details", token, nil, http.StatusOK, &details)
	var fileRowID int64
	for _, r := range details.Responses {
		if r.FilePath != "" {
			fileRowID = r.ID
		}
	}
	if fileRowID == 0 {
		t.Fatalf("no file row in details: %+v", details.Responses)
	}
	form := url.Values{}
	form.Set(fmt.Sprintf("question_%d", f.choiceQ), fmt.Sprint(f.optA))
	form.Set(fmt.Sprintf("question_%d", f.textQ), "final")
	form.Set(fmt.Sprintf("existing_files_%d", f.fileQ), fmt.Sprint(fileRowID))
	resp = env.do(t, http.MethodPost, base+"/response", token, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	var submitted services.SubmitResult
	_ = json.NewDecoder(resp.Body).Decode(&submitted)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || submitted.Status != models.StatusCompleted {
		t.Fatalf("submit = %d %+v", resp.StatusCode, submitted)
	}

	env.call(t, http.MethodGet, fmt.Sprintf("%s/details?user_id=%d", base, uid), env.adminToken, nil, http.StatusOK, &details)
	valid := map[int64]string{}
	for _, r := range details.Responses {
		valid[r.QuestionID] = r.ResponseData
	}
	if details.Status != models.StatusCompleted || len(details.Responses) != 3 {
		t.Fatalf("details = %s with %d rows", details.Status, len(details.Responses))
	}
	if valid[f.textQ] != "final" {
		t.Fatalf("free text = %q, want final", valid[f.textQ])
	}

	// a completed survey rejects further saves until an admin remakes it
	resp = env.do(t, http.MethodPost, base+"/response", token, "application/x-www-form-urlencoded", strings.NewReader("action=save"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("save after submit = %d, want 409", resp.StatusCode)
	}
	env.call(t, http.MethodPost, fmt.Sprintf("%s/users/%d/remake", base, uid), token, nil, http.StatusForbidden, nil)
	var remade services.SubmitResult
	env.call(t, http.MethodPost, fmt.Sprintf("%s/users/%d/remake", base, uid), env.adminToken, nil, http.StatusOK, &remade)
	if remade.Status != models.StatusSavedNotSubmitted {
		t.Fatalf("remake status = %s", remade.Status)
	}
}

func TestSubmitReportsFieldErrors(t *testing.T) {
	env := newTestEnv(t)
	f := env.buildSurvey(t)
	token, uid := env.register(t, "bob", f.deptID)

	form := url.Values{}
	form.Set("question_999999", "1")
	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/surveys/%d/response", f.surveyID), token,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var body struct {
		Code   string `json:"code"`
		Fields []struct {
			Field string `json:"field"`
			Code  string `json:"code"`
		} `json:"fields"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != "field_errors" || len(body.Fields) != 1 || body.Fields[0].Code != string(services.ErrorUnknownSlot) {
		t.Fatalf("body = %+v", body)
	}

	// the rejected submit leaves the respondent where they were
	var us models.UserSurvey
	env.call(t, http.MethodGet, fmt.Sprintf("/api/surveys/%d/users/%d/status", f.surveyID, uid), token, nil, http.StatusOK, &us)
	if us.Status != models.StatusNotStarted {
		t.Fatalf("status = %s, want not_started", us.Status)
	}
}

func TestRequestValidationAndRoles(t *testing.T) {
	env := newTestEnv(t)
	env.call(t, http.MethodPost, "/api/auth/register", "", map[string]any{"username": "ca", "password": "short"}, http.StatusBadRequest, nil)

	token, _ := env.register(t, "carol", 0)
	env.call(t, http.MethodPost, "/api/surveys", token, map[string]string{"name": "Mine"}, http.StatusForbidden, nil)
	env.call(t, http.MethodPost, "/api/departments", env.adminToken, map[string]string{"name": "Ops"}, http.StatusCreated, nil)
	env.call(t, http.MethodPost, "/api/departments", env.adminToken, map[string]string{"name": "Ops"}, http.StatusConflict, nil)
	env.call(t, http.MethodGet, "/api/surveys/424242", token, nil, http.StatusNotFound, nil)
}

func TestAdminReportsAndExports(t *testing.T) {
	env := newTestEnv(t)
	f := env.buildSurvey(t)
	token, _ := env.register(t, "dave", f.deptID)
	_, _ = env.register(t, "erin", f.deptID)
	base := fmt.Sprintf("/api/surveys/%d", f.surveyID)

	form := url.Values{}
	form.Set(fmt.Sprintf("question_%d", f.choiceQ), fmt.Sprint(f.optA))
	form.Set(fmt.Sprintf("question_%d", f.textQ), "done")
	resp := env.do(t, http.MethodPost, base+"/response", token, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit = %d", resp.StatusCode)
	}

	var stats services.SurveyStatistics
	env.call(t, http.MethodGet, base+"/statistics", env.adminToken, nil, http.StatusOK, &stats)
	if stats.Statuses[models.StatusCompleted] != 1 || stats.Statuses[models.StatusNotStarted] != 1 {
		t.Fatalf("statuses = %+v", stats.Statuses)
	}
	var counted bool
	for _, q := range stats.Questions {
		for _, o := range q.Options {
			if o.OptionID == f.optA && o.Count == 1 {
				counted = true
			}
		}
	}
	if !counted {
		t.Fatalf("option %d not counted: %+v", f.optA, stats.Questions)
	}

	var unfinished services.UnfinishedPage
	env.call(t, http.MethodGet, base+"/unfinished", env.adminToken, nil, http.StatusOK, &unfinished)
	if unfinished.Total != 1 || unfinished.Items[0].Username != "erin" {
		t.Fatalf("unfinished = %+v", unfinished)
	}
	env.call(t, http.MethodGet, base+"/unfinished", token, nil, http.StatusForbidden, nil)

	resp = env.do(t, http.MethodGet, base+"/unfinished.xlsx", env.adminToken, "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("xlsx = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = env.do(t, http.MethodGet, base+"/export?format=long", env.adminToken, "", nil)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "dave") {
		t.Fatalf("export = %d %s", resp.StatusCode, raw)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("content disposition = %q", cd)
	}

	resp = env.do(t, http.MethodGet, base+"/questions.csv", env.adminToken, "", nil)
	raw, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(raw), "single_choice,Team") {
		t.Fatalf("questions csv = %s", raw)
	}
}

func TestCatalogEditingRoutes(t *testing.T) {
	env := newTestEnv(t)
	f := env.buildSurvey(t)
	token, _ := env.register(t, "dave", f.deptID)

	var hr, sub models.Category
	env.call(t, http.MethodPost, "/api/categories", token, map[string]any{"name": "HR"}, http.StatusForbidden, nil)
	env.call(t, http.MethodPost, "/api/categories", env.adminToken, map[string]any{"name": "HR"}, http.StatusCreated, &hr)
	env.call(t, http.MethodPost, "/api/categories", env.adminToken, map[string]any{"name": "Hiring", "parent_id": hr.ID}, http.StatusCreated, &sub)
	env.call(t, http.MethodPut, fmt.Sprintf("/api/categories/%d", sub.ID), env.adminToken,
		map[string]any{"name": "Recruiting", "parent_id": hr.ID}, http.StatusOK, &sub)
	if sub.Name != "Recruiting" || sub.ParentID != hr.ID {
		t.Fatalf("updated category = %+v", sub)
	}

	var page services.CategoryPage
	env.call(t, http.MethodGet, "/api/categories?keyword=Recr", token, nil, http.StatusOK, &page)
	if page.Total != 1 || page.Items[0].ID != sub.ID {
		t.Fatalf("category page = %+v", page)
	}
	var list struct {
		Items []models.Category `json:"items"`
	}
	env.call(t, http.MethodGet, "/api/categories/parents", token, nil, http.StatusOK, &list)
	if len(list.Items) != 1 || list.Items[0].ID != hr.ID {
		t.Fatalf("parents = %+v", list.Items)
	}
	env.call(t, http.MethodGet, "/api/categories/all", token, nil, http.StatusOK, &list)
	if len(list.Items) != 2 {
		t.Fatalf("all = %+v", list.Items)
	}

	env.call(t, http.MethodPut, fmt.Sprintf("/api/surveys/%d/category", f.surveyID), env.adminToken,
		map[string]any{"category_id": sub.ID}, http.StatusOK, nil)
	var linked struct {
		Items []models.Survey `json:"items"`
	}
	env.call(t, http.MethodGet, fmt.Sprintf("/api/categories/%d/surveys", sub.ID), token, nil, http.StatusOK, &linked)
	if len(linked.Items) != 1 || linked.Items[0].CategoryID != sub.ID {
		t.Fatalf("linked surveys = %+v", linked.Items)
	}
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", hr.ID), env.adminToken, nil, http.StatusConflict, nil)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", sub.ID), env.adminToken, nil, http.StatusConflict, nil)

	var q models.Question
	env.call(t, http.MethodPut, fmt.Sprintf("/api/questions/%d", f.textQ), token,
		map[string]any{"type": "free_text", "title": "Notes"}, http.StatusForbidden, nil)
	env.call(t, http.MethodPut, fmt.Sprintf("/api/questions/%d", f.textQ), env.adminToken,
		map[string]any{"type": "free_text", "title": "Notes", "sort_key": 2}, http.StatusOK, &q)
	if q.Title != "Notes" || q.SurveyID != f.surveyID {
		t.Fatalf("updated question = %+v", q)
	}
	var o models.Option
	env.call(t, http.MethodPut, fmt.Sprintf("/api/options/%d", f.optB), env.adminToken,
		map[string]any{"description": "Engineering", "sort_key": 2}, http.StatusOK, &o)
	if o.Description != "Engineering" || o.Role != models.OptionNormal {
		t.Fatalf("updated option = %+v", o)
	}

	// materialized slots pin the question and its options
	env.call(t, http.MethodGet, fmt.Sprintf("/api/surveys/%d/response", f.surveyID), token, nil, http.StatusOK, nil)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/options/%d", f.optB), env.adminToken, nil, http.StatusConflict, nil)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/questions/%d", f.choiceQ), env.adminToken, nil, http.StatusConflict, nil)

	var extra models.Question
	env.call(t, http.MethodPost, fmt.Sprintf("/api/surveys/%d/questions", f.surveyID), env.adminToken,
		map[string]any{"type": "single_choice", "title": "Later", "sort_key": 9}, http.StatusCreated, &extra)
	env.call(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/options", extra.ID), env.adminToken,
		map[string]any{"description": "maybe"}, http.StatusCreated, &o)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/options/%d", o.ID), env.adminToken, nil, http.StatusNoContent, nil)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/questions/%d", extra.ID), env.adminToken, nil, http.StatusNoContent, nil)
	env.call(t, http.MethodDelete, fmt.Sprintf("/api/questions/%d", extra.ID), env.adminToken, nil, http.StatusNotFound, nil)
}
