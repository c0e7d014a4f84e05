package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type statusKey struct{ userID, surveyID int64 }

type stubEngineStore struct {
	surveys   map[int64]*models.Survey
	questions map[int64][]*models.Question
	options   map[int64][]*models.Option
	rows      []*models.Response
	statuses  map[statusKey]*models.UserSurvey
	nextID    int64

	// beforeInsert runs inside InsertSlots ahead of the duplicate check.
	beforeInsert func()
}

func newStubEngineStore() *stubEngineStore {
	return &stubEngineStore{
		surveys:   map[int64]*models.Survey{},
		questions: map[int64][]*models.Question{},
		options:   map[int64][]*models.Option{},
		statuses:  map[statusKey]*models.UserSurvey{},
	}
}

func (s *stubEngineStore) addSurvey(id int64, qs ...*models.Question) {
	s.surveys[id] = &models.Survey{ID: id, Name: fmt.Sprintf("survey %d", id)}
	for _, q := range qs {
		q.SurveyID = id
		s.questions[id] = append(s.questions[id], q)
	}
}

func (s *stubEngineStore) addOptions(qid int64, opts ...*models.Option) {
	for _, o := range opts {
		o.QuestionID = qid
		s.options[qid] = append(s.options[qid], o)
	}
}

func (s *stubEngineStore) GetSurvey(_ context.Context, id int64) (*models.Survey, error) {
	if sv, ok := s.surveys[id]; ok {
		copy := *sv
		return &copy, nil
	}
	return nil, nil
}

func (s *stubEngineStore) QuestionsOf(_ context.Context, surveyID int64) ([]*models.Question, error) {
	out := make([]*models.Question, 0, len(s.questions[surveyID]))
	for _, q := range s.questions[surveyID] {
		copy := *q
		out = append(out, &copy)
	}
	return out, nil
}

func (s *stubEngineStore) OptionsOf(_ context.Context, questionID int64) ([]*models.Option, error) {
	out := make([]*models.Option, 0, len(s.options[questionID]))
	for _, o := range s.options[questionID] {
		copy := *o
		out = append(out, &copy)
	}
	return out, nil
}

func (s *stubEngineStore) HasResponses(_ context.Context, userID, surveyID int64) (bool, error) {
	for _, r := range s.rows {
		if r.UserID == userID && r.SurveyID == surveyID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubEngineStore) InsertSlots(_ context.Context, rows []*models.Response) error {
	if s.beforeInsert != nil {
		hook := s.beforeInsert
		s.beforeInsert = nil
		hook()
	}
	for _, r := range rows {
		if s.findSlot(r.UserID, r.SurveyID, r.QuestionID, r.OptionID, r.RowID, r.ColumnID) != nil {
			return fmt.Errorf("insert slot: %w", ErrDuplicateSlot)
		}
	}
	for _, r := range rows {
		copy := *r
		s.nextID++
		copy.ID = s.nextID
		s.rows = append(s.rows, &copy)
	}
	return nil
}

func (s *stubEngineStore) findSlot(userID, surveyID, qid, oid, row, col int64) *models.Response {
	for _, r := range s.rows {
		if r.FilePath != "" {
			continue
		}
		if r.UserID == userID && r.SurveyID == surveyID && r.QuestionID == qid &&
			r.OptionID == oid && r.RowID == row && r.ColumnID == col {
			return r
		}
	}
	return nil
}

func (s *stubEngineStore) FileResponseIDs(_ context.Context, userID, surveyID int64) ([]int64, error) {
	var ids []int64
	for _, r := range s.rows {
		if r.UserID == userID && r.SurveyID == surveyID && r.FilePath != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (s *stubEngineStore) ResetValidity(_ context.Context, userID, surveyID int64, exceptIDs []int64) (int64, error) {
	skip := map[int64]bool{}
	for _, id := range exceptIDs {
		skip[id] = true
	}
	var n int64
	for _, r := range s.rows {
		if r.UserID == userID && r.SurveyID == surveyID && !skip[r.ID] {
			r.IsValid = false
			n++
		}
	}
	return n, nil
}

func (s *stubEngineStore) UpdateSlot(_ context.Context, u SlotUpdate) (int64, error) {
	r := s.findSlot(u.UserID, u.SurveyID, u.QuestionID, u.OptionID, u.RowID, u.ColumnID)
	if r == nil {
		return 0, nil
	}
	r.IsValid = u.Valid
	r.ResponseData = u.Data
	r.SortOrder = u.SortOrder
	r.IPAddress = u.IP
	r.CreatedAt = u.At
	return 1, nil
}

func (s *stubEngineStore) UpdateOpenAnswer(_ context.Context, u SlotUpdate) (int64, error) {
	var n int64
	for _, r := range s.rows {
		if r.FilePath == "" && r.UserID == u.UserID && r.SurveyID == u.SurveyID &&
			r.OptionID == u.OptionID && r.RowID == 0 && r.ColumnID == 0 {
			r.IsValid = u.Valid
			r.ResponseData = u.Data
			r.IPAddress = u.IP
			r.CreatedAt = u.At
			n++
		}
	}
	return n, nil
}

func (s *stubEngineStore) InsertFileResponse(_ context.Context, r *models.Response) (int64, error) {
	copy := *r
	s.nextID++
	copy.ID = s.nextID
	s.rows = append(s.rows, &copy)
	return copy.ID, nil
}

func (s *stubEngineStore) InvalidateFiles(_ context.Context, userID, surveyID, questionID int64, keptIDs []int64) (int64, error) {
	keep := map[int64]bool{}
	for _, id := range keptIDs {
		keep[id] = true
	}
	var n int64
	for _, r := range s.rows {
		if r.FilePath != "" && r.UserID == userID && r.SurveyID == surveyID &&
			r.QuestionID == questionID && !keep[r.ID] {
			r.IsValid = false
			n++
		}
	}
	return n, nil
}

func (s *stubEngineStore) ListResponses(_ context.Context, userID, surveyID int64) ([]*models.Response, error) {
	var out []*models.Response
	for _, r := range s.rows {
		if r.UserID == userID && r.SurveyID == surveyID {
			copy := *r
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *stubEngineStore) GetUserSurvey(_ context.Context, userID, surveyID int64) (*models.UserSurvey, error) {
	if us, ok := s.statuses[statusKey{userID, surveyID}]; ok {
		copy := *us
		return &copy, nil
	}
	return nil, nil
}

func (s *stubEngineStore) SetStatus(_ context.Context, userID, surveyID int64, status models.CompletionStatus, completedAt *time.Time) error {
	s.statuses[statusKey{userID, surveyID}] = &models.UserSurvey{
		UserID:      userID,
		SurveyID:    surveyID,
		Status:      status,
		CompletedAt: completedAt,
	}
	return nil
}

func (s *stubEngineStore) snapshot() []models.Response {
	out := make([]models.Response, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, *r)
	}
	return out
}

func (s *stubEngineStore) rowsFor(userID, surveyID int64) []*models.Response {
	var out []*models.Response
	for _, r := range s.rows {
		if r.UserID == userID && r.SurveyID == surveyID {
			out = append(out, r)
		}
	}
	return out
}

type memBlobs struct {
	files map[string][]byte
	err   error
}

func newMemBlobs() *memBlobs { return &memBlobs{files: map[string][]byte{}} }

func (m *memBlobs) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.files[name] = b
	return "/uploads/" + name, nil
}

func upload(field, name string, body string) UploadedFile {
	return UploadedFile{Field: field, Filename: name, Size: int64(len(body)), Content: bytes.NewBufferString(body)}
}

var fixedNow = time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC)

func newTestSubmissionService(store *stubEngineStore, blobs *memBlobs) *SubmissionService {
	svc := NewSubmissionService(store, blobs, 0)
	clock := func() time.Time { return fixedNow }
	svc.materializer.now = clock
	svc.dispatcher.now = clock
	svc.files.now = clock
	svc.completion.now = clock
	return svc
}
