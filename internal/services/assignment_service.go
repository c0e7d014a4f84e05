package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type AssignmentStore interface {
	GetSurvey(ctx context.Context, id int64) (*models.Survey, error)
	GetDepartment(ctx context.Context, id int64) (*models.Department, error)
	DepartmentAssigned(ctx context.Context, surveyID, departmentID int64) (bool, error)
	AssignSurveyToDepartment(ctx context.Context, surveyID, departmentID int64, at time.Time) (int, error)
	DepartmentSurveyIDs(ctx context.Context, departmentID int64) ([]int64, error)
	AssignUser(ctx context.Context, userID int64, surveyIDs []int64, at time.Time) (int, error)
	ListUserSurveys(ctx context.Context, userID int64, keyword string, page Page) ([]*UserSurveyView, int, error)
	ListUnfinished(ctx context.Context, surveyID, departmentID int64, page Page) ([]*UnfinishedUser, int, error)
	CompletionStore
}

// Page is a 1-based page request; Size <= 0 means unbounded.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

func normalizePage(p Page, defaultSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size == 0 {
		p.Size = defaultSize
	}
	if p.Size > 500 {
		p.Size = 500
	}
	return p
}

type UserSurveyView struct {
	SurveyID    int64                   `json:"survey_id"`
	SurveyName  string                  `json:"survey_name"`
	Status      models.CompletionStatus `json:"status"`
	AssignedAt  time.Time               `json:"assigned_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

type UnfinishedUser struct {
	UserID         int64                   `json:"user_id"`
	Username       string                  `json:"username"`
	DisplayName    string                  `json:"display_name,omitempty"`
	DepartmentID   int64                   `json:"department_id"`
	DepartmentName string                  `json:"department_name"`
	Status         models.CompletionStatus `json:"status"`
}

type UserSurveyPage struct {
	Items []*UserSurveyView `json:"items"`
	Total int               `json:"total"`
}

type UnfinishedPage struct {
	Items []*UnfinishedUser `json:"items"`
	Total int               `json:"total"`
}

type AssignmentService struct {
	store      AssignmentStore
	completion *CompletionTracker
	now        func() time.Time
}

func NewAssignmentService(store AssignmentStore) *AssignmentService {
	return &AssignmentService{
		store:      store,
		completion: NewCompletionTracker(store),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AssignToDepartment gives every member of the department a not-started
// record for the survey. A department can receive a survey only once.
func (s *AssignmentService) AssignToDepartment(ctx context.Context, actor Actor, surveyID, departmentID int64) (int, error) {
	if !actor.IsAdmin() {
		return 0, NewForbiddenError("forbidden")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	if sv == nil {
		return 0, NewNotFoundError("survey not found")
	}
	d, err := s.store.GetDepartment(ctx, departmentID)
	if err != nil {
		return 0, err
	}
	if d == nil {
		return 0, NewNotFoundError("department not found")
	}
	assigned, err := s.store.DepartmentAssigned(ctx, surveyID, departmentID)
	if err != nil {
		return 0, err
	}
	if assigned {
		return 0, NewConflictError("survey already assigned to this department")
	}
	return s.store.AssignSurveyToDepartment(ctx, surveyID, departmentID, s.now())
}

// BackfillUser assigns a newly created member every survey its department
// already received.
func (s *AssignmentService) BackfillUser(ctx context.Context, userID, departmentID int64) (int, error) {
	if userID <= 0 || departmentID <= 0 {
		return 0, nil
	}
	ids, err := s.store.DepartmentSurveyIDs(ctx, departmentID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.store.AssignUser(ctx, userID, ids, s.now())
}

func (s *AssignmentService) ListForUser(ctx context.Context, actor Actor, userID int64, keyword string, page Page) (*UserSurveyPage, error) {
	if userID == 0 {
		userID = actor.UserID
	}
	if userID <= 0 {
		return nil, NewInvalidError("user required")
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	items, total, err := s.store.ListUserSurveys(ctx, userID, strings.TrimSpace(keyword), normalizePage(page, 7))
	if err != nil {
		return nil, err
	}
	return &UserSurveyPage{Items: items, Total: total}, nil
}

// Unfinished lists assignees of the survey who have not completed it,
// optionally restricted to one department (departmentID 0 means all).
func (s *AssignmentService) Unfinished(ctx context.Context, actor Actor, surveyID, departmentID int64, page Page) (*UnfinishedPage, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	items, total, err := s.store.ListUnfinished(ctx, surveyID, departmentID, normalizePage(page, 12))
	if err != nil {
		return nil, err
	}
	return &UnfinishedPage{Items: items, Total: total}, nil
}

// UnfinishedWorkbook renders the full unfinished list as an .xlsx file.
func (s *AssignmentService) UnfinishedWorkbook(ctx context.Context, actor Actor, surveyID, departmentID int64) (*ExportResult, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	scopeName := "all"
	if departmentID != 0 {
		d, err := s.store.GetDepartment(ctx, departmentID)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, NewNotFoundError("department not found")
		}
		scopeName = d.Name
	}
	users, _, err := s.store.ListUnfinished(ctx, surveyID, departmentID, Page{Number: 1, Size: -1})
	if err != nil {
		return nil, err
	}
	data, err := ExportUnfinishedXLSX(users)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("%s_%s_unfinished-%s.xlsx", sv.Name, scopeName, s.now().Format("2006-01-02")),
		ContentType: contentTypeXLSX,
		Data:        data,
	}, nil
}

// UpdateStatus lets an administrator set a respondent's status directly.
// Reopening a completed survey goes through the remake transition.
func (s *AssignmentService) UpdateStatus(ctx context.Context, actor Actor, userID, surveyID int64, status models.CompletionStatus) (models.CompletionStatus, error) {
	if !actor.IsAdmin() {
		return "", NewForbiddenError("forbidden")
	}
	if !status.Valid() {
		return "", NewInvalidError(fmt.Sprintf("unknown status %q", status))
	}
	cur, err := s.completion.Status(ctx, userID, surveyID)
	if err != nil {
		return "", err
	}
	if cur == models.StatusCompleted && status == models.StatusSavedNotSubmitted {
		return s.completion.Transition(ctx, userID, surveyID, EventRemake, true)
	}
	var completedAt *time.Time
	if status == models.StatusCompleted {
		now := s.now()
		completedAt = &now
	}
	if err := s.store.SetStatus(ctx, userID, surveyID, status, completedAt); err != nil {
		return "", err
	}
	return status, nil
}

// Status returns the respondent's status record for the survey.
func (s *AssignmentService) Status(ctx context.Context, actor Actor, userID, surveyID int64) (*models.UserSurvey, error) {
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	us, err := s.store.GetUserSurvey(ctx, userID, surveyID)
	if err != nil {
		return nil, err
	}
	if us == nil {
		return &models.UserSurvey{UserID: userID, SurveyID: surveyID, Status: models.StatusNotStarted}, nil
	}
	return us, nil
}
