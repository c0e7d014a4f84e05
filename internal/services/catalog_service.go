package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// Survey lifecycle values stored on models.Survey.Status.
const (
	SurveyDraft     = "draft"
	SurveyPublished = "published"
	SurveyClosed    = "closed"
)

type CatalogStore interface {
	InsertSurvey(ctx context.Context, sv *models.Survey) (*models.Survey, error)
	GetSurvey(ctx context.Context, id int64) (*models.Survey, error)
	ListSurveys(ctx context.Context) ([]*models.Survey, error)
	UpdateSurveyStatus(ctx context.Context, id int64, status string) error
	UpdateSurveyCategory(ctx context.Context, id, categoryID int64) error
	SurveysInCategory(ctx context.Context, categoryID int64) ([]*models.Survey, error)
	InsertQuestion(ctx context.Context, q *models.Question) (*models.Question, error)
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)
	QuestionsOf(ctx context.Context, surveyID int64) ([]*models.Question, error)
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id int64) error
	QuestionResponseCount(ctx context.Context, questionID int64) (int, error)
	InsertOption(ctx context.Context, o *models.Option) (*models.Option, error)
	GetOption(ctx context.Context, id int64) (*models.Option, error)
	OptionsOf(ctx context.Context, questionID int64) ([]*models.Option, error)
	UpdateOption(ctx context.Context, o *models.Option) error
	DeleteOption(ctx context.Context, id int64) error
	OptionResponseCount(ctx context.Context, optionID int64) (int, error)
	CategoryStore
}

// CatalogInvalidator drops cached catalog entries after an edit.
type CatalogInvalidator interface {
	InvalidateSurvey(ctx context.Context, surveyID int64) error
	InvalidateQuestion(ctx context.Context, questionID int64) error
}

type CatalogService struct {
	store       CatalogStore
	invalidator CatalogInvalidator
	now         func() time.Time
}

type SurveyDetail struct {
	Survey    *models.Survey     `json:"survey"`
	Questions []*models.Question `json:"questions"`
}

func NewCatalogService(store CatalogStore, invalidator CatalogInvalidator) *CatalogService {
	return &CatalogService{
		store:       store,
		invalidator: invalidator,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *CatalogService) CreateSurvey(ctx context.Context, actor Actor, name, description string) (*models.Survey, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	sv := &models.Survey{Name: name, Description: strings.TrimSpace(description), Status: SurveyDraft, CreatedAt: s.now()}
	return s.store.InsertSurvey(ctx, sv)
}

func (s *CatalogService) ListSurveys(ctx context.Context) ([]*models.Survey, error) {
	return s.store.ListSurveys(ctx)
}

func (s *CatalogService) SetSurveyStatus(ctx context.Context, actor Actor, surveyID int64, status string) error {
	if !actor.IsAdmin() {
		return NewForbiddenError("forbidden")
	}
	switch status {
	case SurveyDraft, SurveyPublished, SurveyClosed:
	default:
		return NewInvalidError(fmt.Sprintf("unknown survey status %q", status))
	}
	if _, err := s.requireSurvey(ctx, surveyID); err != nil {
		return err
	}
	if err := s.store.UpdateSurveyStatus(ctx, surveyID, status); err != nil {
		return err
	}
	s.invalidateSurvey(ctx, surveyID)
	return nil
}

func (s *CatalogService) AddQuestion(ctx context.Context, actor Actor, q *models.Question) (*models.Question, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if q == nil {
		return nil, NewInvalidError("question required")
	}
	if !q.Type.Valid() {
		return nil, NewInvalidError(fmt.Sprintf("unknown question type %q", q.Type))
	}
	if strings.TrimSpace(q.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	if _, err := s.requireSurvey(ctx, q.SurveyID); err != nil {
		return nil, err
	}
	created, err := s.store.InsertQuestion(ctx, q)
	if err != nil {
		return nil, err
	}
	s.invalidateSurvey(ctx, q.SurveyID)
	return created, nil
}

func (s *CatalogService) AddOption(ctx context.Context, actor Actor, o *models.Option) (*models.Option, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if o == nil {
		return nil, NewInvalidError("option required")
	}
	if o.Role == "" {
		o.Role = models.OptionNormal
	}
	if !o.Role.Valid() {
		return nil, NewInvalidError(fmt.Sprintf("unknown option role %q", o.Role))
	}
	q, err := s.store.GetQuestion(ctx, o.QuestionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	if err := optionFits(q.Type, o.Role); err != nil {
		return nil, err
	}
	created, err := s.store.InsertOption(ctx, o)
	if err != nil {
		return nil, err
	}
	s.invalidateQuestion(ctx, q.ID)
	return created, nil
}

// UpdateQuestion rewrites title, flags and sort key. The type is only
// changeable while no responses reference the question, since stored slots
// follow the type's shape.
func (s *CatalogService) UpdateQuestion(ctx context.Context, actor Actor, q *models.Question) (*models.Question, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if q == nil {
		return nil, NewInvalidError("question required")
	}
	if !q.Type.Valid() {
		return nil, NewInvalidError(fmt.Sprintf("unknown question type %q", q.Type))
	}
	if strings.TrimSpace(q.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	cur, err := s.requireQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	if q.Type != cur.Type {
		n, err := s.store.QuestionResponseCount(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, NewConflictError("question type cannot change once answered")
		}
		opts, err := s.store.OptionsOf(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		for _, o := range opts {
			if err := optionFits(q.Type, o.Role); err != nil {
				return nil, err
			}
		}
	}
	upd := *cur
	upd.Type = q.Type
	upd.Title = strings.TrimSpace(q.Title)
	upd.IsOpen = q.IsOpen
	upd.IsSkip = q.IsSkip
	upd.SortKey = q.SortKey
	if err := s.store.UpdateQuestion(ctx, &upd); err != nil {
		return nil, err
	}
	s.invalidateSurvey(ctx, cur.SurveyID)
	return &upd, nil
}

// DeleteQuestion removes an unanswered question and its options.
func (s *CatalogService) DeleteQuestion(ctx context.Context, actor Actor, id int64) error {
	if !actor.IsAdmin() {
		return NewForbiddenError("forbidden")
	}
	q, err := s.requireQuestion(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.QuestionResponseCount(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return NewConflictError("question has responses")
	}
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.invalidateSurvey(ctx, q.SurveyID)
	s.invalidateQuestion(ctx, id)
	return nil
}

func (s *CatalogService) UpdateOption(ctx context.Context, actor Actor, o *models.Option) (*models.Option, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if o == nil {
		return nil, NewInvalidError("option required")
	}
	cur, err := s.store.GetOption(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, NewNotFoundError("option not found")
	}
	if o.Role == "" {
		o.Role = cur.Role
	}
	if !o.Role.Valid() {
		return nil, NewInvalidError(fmt.Sprintf("unknown option role %q", o.Role))
	}
	q, err := s.requireQuestion(ctx, cur.QuestionID)
	if err != nil {
		return nil, err
	}
	if err := optionFits(q.Type, o.Role); err != nil {
		return nil, err
	}
	upd := *cur
	upd.Role = o.Role
	upd.Description = o.Description
	upd.SortKey = o.SortKey
	upd.IsOpen = o.IsOpen
	upd.IsSkip = o.IsSkip
	if err := s.store.UpdateOption(ctx, &upd); err != nil {
		return nil, err
	}
	s.invalidateQuestion(ctx, cur.QuestionID)
	return &upd, nil
}

// DeleteOption removes an option no response row addresses.
func (s *CatalogService) DeleteOption(ctx context.Context, actor Actor, id int64) error {
	if !actor.IsAdmin() {
		return NewForbiddenError("forbidden")
	}
	o, err := s.store.GetOption(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return NewNotFoundError("option not found")
	}
	n, err := s.store.OptionResponseCount(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return NewConflictError("option has responses")
	}
	if err := s.store.DeleteOption(ctx, id); err != nil {
		return err
	}
	s.invalidateQuestion(ctx, o.QuestionID)
	return nil
}

func optionFits(t models.QuestionType, role models.OptionRole) error {
	switch t {
	case models.QuestionFreeText, models.QuestionFileUpload:
		return NewInvalidError(fmt.Sprintf("%s questions have no options", t))
	case models.QuestionMatrixSingle, models.QuestionMatrixMulti:
		if role == models.OptionNormal {
			return NewInvalidError("matrix options must be row or column")
		}
	default:
		if role != models.OptionNormal {
			return NewInvalidError("row/column options belong to matrix questions")
		}
	}
	return nil
}

// SurveyDetail returns the survey with its questions and their options.
func (s *CatalogService) SurveyDetail(ctx context.Context, surveyID int64) (*SurveyDetail, error) {
	sv, err := s.requireSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	for _, q := range qs {
		opts, err := s.store.OptionsOf(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		q.Options = opts
	}
	return &SurveyDetail{Survey: sv, Questions: qs}, nil
}

func (s *CatalogService) requireSurvey(ctx context.Context, id int64) (*models.Survey, error) {
	sv, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	return sv, nil
}

func (s *CatalogService) requireQuestion(ctx context.Context, id int64) (*models.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	return q, nil
}

// Invalidation runs after the store write has committed, so a failure must
// not turn the edit into an error. Stale entries expire with the cache TTL.
func (s *CatalogService) invalidateSurvey(ctx context.Context, id int64) {
	if s.invalidator != nil {
		_ = s.invalidator.InvalidateSurvey(ctx, id)
	}
}

func (s *CatalogService) invalidateQuestion(ctx context.Context, id int64) {
	if s.invalidator != nil {
		_ = s.invalidator.InvalidateQuestion(ctx, id)
	}
}

var questionCSVHeader = []string{"position", "type", "title", "options", "rows", "columns"}

// ExportQuestionsCSV renders the survey definition; option lists are pipe separated.
func (s *CatalogService) ExportQuestionsCSV(ctx context.Context, surveyID int64) ([]byte, error) {
	detail, err := s.SurveyDetail(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(questionCSVHeader)
	for _, q := range detail.Questions {
		var normal, rows, cols []string
		for _, o := range q.Options {
			switch o.Role {
			case models.OptionRow:
				rows = append(rows, o.Description)
			case models.OptionColumn:
				cols = append(cols, o.Description)
			default:
				normal = append(normal, o.Description)
			}
		}
		rec := []string{
			itoa(q.SortKey),
			string(q.Type),
			q.Title,
			strings.Join(normal, " | "),
			strings.Join(rows, " | "),
			strings.Join(cols, " | "),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ImportQuestionsCSV appends the questions described by data (as produced by
// ExportQuestionsCSV) to the survey and returns how many were created.
func (s *CatalogService) ImportQuestionsCSV(ctx context.Context, actor Actor, surveyID int64, data []byte) (int, error) {
	if !actor.IsAdmin() {
		return 0, NewForbiddenError("forbidden")
	}
	if _, err := s.requireSurvey(ctx, surveyID); err != nil {
		return 0, err
	}
	// Strip optional UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return 0, NewInvalidError("invalid csv: " + err.Error())
	}
	if len(rows) == 0 {
		return 0, NewInvalidError("empty csv")
	}
	header := rows[0]
	idx := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	iPos, iType, iTitle := idx("position"), idx("type"), idx("title")
	iOpts, iRows, iCols := idx("options"), idx("rows"), idx("columns")
	if iType < 0 || iTitle < 0 {
		return 0, NewInvalidError("csv needs type and title columns")
	}

	created := 0
	for n, row := range rows[1:] {
		if len(strings.TrimSpace(strings.Join(row, ""))) == 0 {
			continue
		}
		get := func(i int) string {
			if i >= 0 && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		q := &models.Question{SurveyID: surveyID, Type: models.QuestionType(get(iType)), Title: get(iTitle)}
		if p, err := strconv.Atoi(get(iPos)); err == nil {
			q.SortKey = p
		} else {
			q.SortKey = n + 1
		}
		q, err = s.AddQuestion(ctx, actor, q)
		if err != nil {
			return created, fmt.Errorf("row %d: %w", n+2, err)
		}
		groups := []struct {
			role models.OptionRole
			col  int
		}{{models.OptionNormal, iOpts}, {models.OptionRow, iRows}, {models.OptionColumn, iCols}}
		for _, g := range groups {
			for i, desc := range splitList(get(g.col)) {
				opt := &models.Option{QuestionID: q.ID, Role: g.role, Description: desc, SortKey: i + 1}
				if _, err := s.AddOption(ctx, actor, opt); err != nil {
					return created, fmt.Errorf("row %d: %w", n+2, err)
				}
			}
		}
		created++
	}
	return created, nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
