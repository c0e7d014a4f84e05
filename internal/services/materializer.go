package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// CatalogReader exposes the read-only question/option catalog.
type CatalogReader interface {
	GetSurvey(ctx context.Context, id int64) (*models.Survey, error)
	QuestionsOf(ctx context.Context, surveyID int64) ([]*models.Question, error)
	OptionsOf(ctx context.Context, questionID int64) ([]*models.Option, error)
}

// SlotUpdate addresses a non-file row and the values to write into it.
// Open answers are addressed by OptionID alone within the (user, survey) scope.
type SlotUpdate struct {
	UserID     int64
	SurveyID   int64
	QuestionID int64
	OptionID   int64
	RowID      int64
	ColumnID   int64
	Data       string
	SortOrder  int
	Valid      bool
	IP         string
	At         time.Time
}

// ResponseStore persists answer rows. Non-file writes are always addressed by
// slot and report the number of rows affected.
type ResponseStore interface {
	HasResponses(ctx context.Context, userID, surveyID int64) (bool, error)
	InsertSlots(ctx context.Context, rows []*models.Response) error
	FileResponseIDs(ctx context.Context, userID, surveyID int64) ([]int64, error)
	ResetValidity(ctx context.Context, userID, surveyID int64, exceptIDs []int64) (int64, error)
	UpdateSlot(ctx context.Context, u SlotUpdate) (int64, error)
	UpdateOpenAnswer(ctx context.Context, u SlotUpdate) (int64, error)
	InsertFileResponse(ctx context.Context, r *models.Response) (int64, error)
	InvalidateFiles(ctx context.Context, userID, surveyID, questionID int64, keptIDs []int64) (int64, error)
	ListResponses(ctx context.Context, userID, surveyID int64) ([]*models.Response, error)
}

// MaterializePath reports which branch EnsureInitialized took.
type MaterializePath string

const (
	PathCreated  MaterializePath = "created"
	PathRearmed  MaterializePath = "rearmed"
	PathExisting MaterializePath = "existing"
)

// Materializer owns the placeholder row set of a (user, survey) pair.
type Materializer struct {
	catalog   CatalogReader
	responses ResponseStore
	now       func() time.Time
}

func NewMaterializer(catalog CatalogReader, responses ResponseStore) *Materializer {
	return &Materializer{
		catalog:   catalog,
		responses: responses,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EnsureInitialized creates every slot on first touch. On a re-visit every row
// except uploaded-file rows is reset to invalid so that the incoming
// submission alone decides which answers are current.
func (m *Materializer) EnsureInitialized(ctx context.Context, surveyID, userID int64, ip string) (MaterializePath, error) {
	return m.ensure(ctx, surveyID, userID, ip, true)
}

// EnsureCreated creates the slots when missing and leaves existing rows alone.
func (m *Materializer) EnsureCreated(ctx context.Context, surveyID, userID int64, ip string) (MaterializePath, error) {
	return m.ensure(ctx, surveyID, userID, ip, false)
}

func (m *Materializer) ensure(ctx context.Context, surveyID, userID int64, ip string, rearm bool) (MaterializePath, error) {
	if userID <= 0 {
		return "", NewInvalidError("respondent required")
	}
	exists, err := m.responses.HasResponses(ctx, userID, surveyID)
	if err != nil {
		return "", fmt.Errorf("check responses: %w", err)
	}
	if !exists {
		rows, err := m.BuildSlots(ctx, surveyID, userID, ip)
		if err != nil {
			return "", err
		}
		err = m.responses.InsertSlots(ctx, rows)
		if err == nil {
			return PathCreated, nil
		}
		if !errors.Is(err, ErrDuplicateSlot) {
			return "", fmt.Errorf("insert slots: %w", err)
		}
		// a concurrent first visit won the insert
	}
	if !rearm {
		return PathExisting, nil
	}
	if err := m.rearm(ctx, surveyID, userID); err != nil {
		return "", err
	}
	return PathRearmed, nil
}

func (m *Materializer) rearm(ctx context.Context, surveyID, userID int64) error {
	fileIDs, err := m.responses.FileResponseIDs(ctx, userID, surveyID)
	if err != nil {
		return fmt.Errorf("list file responses: %w", err)
	}
	if _, err := m.responses.ResetValidity(ctx, userID, surveyID, fileIDs); err != nil {
		return fmt.Errorf("reset validity: %w", err)
	}
	return nil
}

// BuildSlots computes the full placeholder row set without writing it.
func (m *Materializer) BuildSlots(ctx context.Context, surveyID, userID int64, ip string) ([]*models.Response, error) {
	questions, err := m.catalog.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].SortKey < questions[j].SortKey })

	now := m.now()
	var rows []*models.Response
	slot := func(q *models.Question, optionID, rowID, colID int64) *models.Response {
		return &models.Response{
			SurveyID:   surveyID,
			QuestionID: q.ID,
			OptionID:   optionID,
			RowID:      rowID,
			ColumnID:   colID,
			UserID:     userID,
			IPAddress:  ip,
			CreatedAt:  now,
		}
	}

	for _, q := range questions {
		switch q.Type {
		case models.QuestionFreeText:
			rows = append(rows, slot(q, 0, 0, 0))
		case models.QuestionFileUpload:
		case models.QuestionMatrixSingle, models.QuestionMatrixMulti:
			opts, err := m.catalog.OptionsOf(ctx, q.ID)
			if err != nil {
				return nil, fmt.Errorf("load options for question %d: %w", q.ID, err)
			}
			rowOpts := filterRole(opts, models.OptionRow)
			colOpts := filterRole(opts, models.OptionColumn)
			for _, r := range rowOpts {
				for _, c := range colOpts {
					rows = append(rows, slot(q, 0, r.ID, c.ID))
				}
			}
		case models.QuestionSingleChoice, models.QuestionMultiChoice, models.QuestionRating, models.QuestionRanking:
			opts, err := m.catalog.OptionsOf(ctx, q.ID)
			if err != nil {
				return nil, fmt.Errorf("load options for question %d: %w", q.ID, err)
			}
			for _, o := range filterRole(opts, models.OptionNormal) {
				rows = append(rows, slot(q, o.ID, 0, 0))
			}
		default:
			return nil, fmt.Errorf("question %d has unknown type %q", q.ID, q.Type)
		}
	}
	return rows, nil
}

func filterRole(opts []*models.Option, role models.OptionRole) []*models.Option {
	out := make([]*models.Option, 0, len(opts))
	for _, o := range opts {
		if o.Role == role {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortKey < out[j].SortKey })
	return out
}
