//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("SURVEY_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// TestRespondentJourneyIntegration expects a server started with an admin
// account, e.g. seeded from cmd/server/testdata/seed.json.
func TestRespondentJourneyIntegration(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()
	suffix := time.Now().UnixNano()

	var adminLogin struct {
		Token string `json:"token"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/auth/login", "", map[string]string{
		"username": envOr("SURVEY_TEST_ADMIN_USER", "admin"),
		"password": envOr("SURVEY_TEST_ADMIN_PASSWORD", "change-me-now"),
	}, &adminLogin)
	admin := adminLogin.Token
	if admin == "" {
		t.Fatalf("admin login did not return a token")
	}

	var dept struct {
		ID int64 `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/departments", admin, map[string]string{
		"name": fmt.Sprintf("Integration %d", suffix),
	}, &dept)

	var survey struct {
		ID int64 `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/surveys", admin, map[string]string{
		"name": fmt.Sprintf("Integration survey %d", suffix),
	}, &survey)
	if survey.ID == 0 {
		t.Fatalf("expected survey id in response")
	}

	var question struct {
		ID int64 `json:"id"`
	}
	doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/api/surveys/%d/questions", base, survey.ID), admin, map[string]any{
		"type": "single_choice", "title": "How satisfied are you?",
	}, &question)
	var option struct {
		ID int64 `json:"id"`
	}
	for _, label := range []string{"Satisfied", "Unsatisfied"} {
		doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/api/questions/%d/options", base, question.ID), admin, map[string]any{
			"description": label,
		}, &option)
	}
	doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/api/surveys/%d/assign", base, survey.ID), admin, map[string]any{
		"department_id": dept.ID,
	}, nil)

	username := fmt.Sprintf("respondent_%d", suffix)
	var reg struct {
		Token string `json:"token"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/auth/register", "", map[string]any{
		"username": username, "password": "Secret123!", "department_id": dept.ID,
	}, &reg)

	form := url.Values{}
	form.Set(fmt.Sprintf("question_%d", question.ID), fmt.Sprint(option.ID))
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/surveys/%d/response", base, survey.ID), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+reg.Token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d", resp.StatusCode)
	}

	exportURL := fmt.Sprintf("%s/api/surveys/%d/export?format=long", base, survey.ID)
	req, _ = http.NewRequest(http.MethodGet, exportURL, nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	csvData, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status %d body %s", resp.StatusCode, csvData)
	}
	if !strings.Contains(string(csvData), username) {
		t.Fatalf("export csv did not contain %s; csv=%s", username, csvData)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
