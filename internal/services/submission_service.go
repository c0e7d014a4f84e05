package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// SubmissionStore is everything the submission engine persists through.
type SubmissionStore interface {
	CatalogReader
	ResponseStore
	CompletionStore
}

// Observer receives engine outcomes, typically for metrics.
type Observer interface {
	Materialized(path MaterializePath)
	Submission(action, outcome string)
	Upload(outcome string)
}

type nopObserver struct{}

func (nopObserver) Materialized(MaterializePath) {}
func (nopObserver) Submission(string, string)    {}
func (nopObserver) Upload(string)                {}

// SubmissionService hosts open/resume, save, submit and remake.
type SubmissionService struct {
	catalog      CatalogReader
	responses    ResponseStore
	materializer *Materializer
	dispatcher   *Dispatcher
	files        *FileReconciler
	completion   *CompletionTracker
	observer     Observer
}

// NewSubmissionService wires the engine components around one store.
func NewSubmissionService(store SubmissionStore, blobs BlobStore, maxUploadBytes int64) *SubmissionService {
	return NewSubmissionServiceWith(store, store, store, blobs, maxUploadBytes)
}

// NewSubmissionServiceWith allows the catalog to be served by a different
// reader (for instance a cache) than the response and completion stores.
func NewSubmissionServiceWith(catalog CatalogReader, responses ResponseStore, completion CompletionStore, blobs BlobStore, maxUploadBytes int64) *SubmissionService {
	files := NewFileReconciler(responses, blobs, maxUploadBytes)
	return &SubmissionService{
		catalog:      catalog,
		responses:    responses,
		materializer: NewMaterializer(catalog, responses),
		dispatcher:   NewDispatcher(responses, files),
		files:        files,
		completion:   NewCompletionTracker(completion),
		observer:     nopObserver{},
	}
}

// WithObserver sets the outcome observer.
func (s *SubmissionService) WithObserver(o Observer) *SubmissionService {
	if o != nil {
		s.observer = o
	}
	return s
}

// OpenOrResume makes sure the respondent's slots exist and returns the survey
// with the current answers. Existing answers are not touched.
func (s *SubmissionService) OpenOrResume(ctx context.Context, actor Actor, surveyID int64) (*OpenResult, error) {
	if actor.UserID <= 0 {
		return nil, NewInvalidError("respondent required")
	}
	if _, err := s.requireSurvey(ctx, surveyID); err != nil {
		return nil, err
	}
	path, err := s.materializer.EnsureCreated(ctx, surveyID, actor.UserID, actor.IP)
	if err != nil {
		return nil, err
	}
	s.observer.Materialized(path)

	status, err := s.completion.Status(ctx, actor.UserID, surveyID)
	if err != nil {
		return nil, err
	}
	questions, err := s.loadQuestionsWithOptions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	rows, err := s.responses.ListResponses(ctx, actor.UserID, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return &OpenResult{
		SurveyID:  surveyID,
		Status:    status,
		Questions: questions,
		Responses: rows,
		Created:   path == PathCreated,
	}, nil
}

// Submit processes a save, a final submit, or an admin remake.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	action := "submit"
	switch {
	case req.Action == ActionRemake:
		action = "remake"
	case req.IsSave:
		action = "save"
	}
	res, err := s.submit(ctx, req)
	s.observer.Submission(action, outcomeOf(err))
	return res, err
}

func (s *SubmissionService) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.SurveyID <= 0 {
		return nil, NewInvalidError("survey id required")
	}
	if req.Action != "" && req.Action != ActionSubmit && req.Action != ActionRemake {
		return nil, NewInvalidError(fmt.Sprintf("unknown action %q", req.Action))
	}
	if _, err := s.requireSurvey(ctx, req.SurveyID); err != nil {
		return nil, err
	}
	if req.Action == ActionRemake {
		return s.remake(ctx, req)
	}

	userID := req.Actor.UserID
	if userID <= 0 {
		return nil, NewInvalidError("respondent required")
	}
	event := EventSubmit
	if req.IsSave {
		event = EventSave
	}
	// rejects a completed survey before any write
	if _, err := s.completion.Check(ctx, userID, req.SurveyID, event, req.Actor.IsAdmin()); err != nil {
		return nil, err
	}

	questions, err := s.questionMap(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}
	if err := s.files.ValidateAll(req.Files, questions); err != nil {
		s.observer.Upload("rejected")
		return nil, err
	}

	path, err := s.materializer.EnsureInitialized(ctx, req.SurveyID, userID, req.Actor.IP)
	if err != nil {
		return nil, err
	}
	s.observer.Materialized(path)

	scope := Scope{SurveyID: req.SurveyID, UserID: userID, IP: req.Actor.IP, Questions: questions}
	applied, err := s.dispatcher.Apply(ctx, scope, req.Fields)
	if err != nil {
		return nil, err
	}
	stored, rejected, err := s.files.HandleUploads(ctx, scope, req.Files)
	for i := 0; i < stored; i++ {
		s.observer.Upload("stored")
	}
	if err != nil {
		return nil, err
	}

	fieldErrs := append(applied.Errors, rejected...)
	if len(fieldErrs) > 0 {
		return nil, &SubmissionError{Fields: fieldErrs}
	}

	status, err := s.completion.Transition(ctx, userID, req.SurveyID, event, req.Actor.IsAdmin())
	if err != nil {
		return nil, err
	}
	return &SubmitResult{
		SurveyID:      req.SurveyID,
		UserID:        userID,
		Status:        status,
		FieldsApplied: applied.Applied,
		FilesStored:   stored,
	}, nil
}

func (s *SubmissionService) remake(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !req.Actor.IsAdmin() {
		return nil, NewForbiddenError("remake requires an administrator")
	}
	if req.TargetUserID <= 0 {
		return nil, NewInvalidError("target user required for remake")
	}
	status, err := s.completion.Transition(ctx, req.TargetUserID, req.SurveyID, EventRemake, true)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{SurveyID: req.SurveyID, UserID: req.TargetUserID, Status: status}, nil
}

func (s *SubmissionService) requireSurvey(ctx context.Context, surveyID int64) (*models.Survey, error) {
	sv, err := s.catalog.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	return sv, nil
}

func (s *SubmissionService) questionMap(ctx context.Context, surveyID int64) (map[int64]*models.Question, error) {
	qs, err := s.catalog.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	out := make(map[int64]*models.Question, len(qs))
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}

func (s *SubmissionService) loadQuestionsWithOptions(ctx context.Context, surveyID int64) ([]*models.Question, error) {
	qs, err := s.catalog.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	out := make([]*models.Question, 0, len(qs))
	for _, q := range qs {
		opts, err := s.catalog.OptionsOf(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("load options for question %d: %w", q.ID, err)
		}
		cp := *q
		cp.Options = opts
		out = append(out, &cp)
	}
	return out, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return "field_errors"
	}
	if se, ok := AsServiceError(err); ok {
		return string(se.Code)
	}
	return "error"
}
