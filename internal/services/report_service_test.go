package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type reportStubStore struct {
	*stubEngineStore
	usernames map[int64]string
}

func (s *reportStubStore) CountValidSlots(_ context.Context, surveyID, _ int64) ([]SlotCount, error) {
	type key struct{ q, o, r, c int64 }
	agg := map[key]*SlotCount{}
	var order []key
	for _, r := range s.rows {
		if r.SurveyID != surveyID || !r.IsValid {
			continue
		}
		k := key{r.QuestionID, r.OptionID, r.RowID, r.ColumnID}
		if agg[k] == nil {
			agg[k] = &SlotCount{QuestionID: k.q, OptionID: k.o, RowID: k.r, ColumnID: k.c}
			order = append(order, k)
		}
		agg[k].Count++
		agg[k].SortSum += r.SortOrder
	}
	out := make([]SlotCount, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out, nil
}

func (s *reportStubStore) StatusCounts(_ context.Context, surveyID, _ int64) (map[models.CompletionStatus]int, error) {
	out := map[models.CompletionStatus]int{}
	for k, us := range s.statuses {
		if k.surveyID == surveyID {
			out[us.Status]++
		}
	}
	return out, nil
}

func (s *reportStubStore) CompletionTimes(_ context.Context, surveyID, _ int64) ([]time.Time, error) {
	var out []time.Time
	for k, us := range s.statuses {
		if k.surveyID == surveyID && us.CompletedAt != nil {
			out = append(out, *us.CompletedAt)
		}
	}
	return out, nil
}

func (s *reportStubStore) ListValidResponses(_ context.Context, surveyID int64) ([]LongRow, error) {
	var out []LongRow
	for _, r := range s.rows {
		if r.SurveyID != surveyID || !r.IsValid {
			continue
		}
		out = append(out, LongRow{
			UserID:     r.UserID,
			Username:   s.usernames[r.UserID],
			QuestionID: r.QuestionID,
			OptionID:   r.OptionID,
			RowID:      r.RowID,
			ColumnID:   r.ColumnID,
			Data:       r.ResponseData,
			SortOrder:  r.SortOrder,
			FilePath:   r.FilePath,
		})
	}
	return out, nil
}

// seedReport builds a survey with a single choice, a ranking and a matrix
// question, and has two respondents submit it.
func seedReport(t *testing.T) *reportStubStore {
	t.Helper()
	ctx := context.Background()
	store := &reportStubStore{stubEngineStore: newStubEngineStore(), usernames: map[int64]string{7: "ann", 8: "ben"}}
	store.addSurvey(1,
		&models.Question{ID: 1, Type: models.QuestionSingleChoice, Title: "Pick", SortKey: 1},
		&models.Question{ID: 2, Type: models.QuestionRanking, Title: "Order", SortKey: 2},
		&models.Question{ID: 3, Type: models.QuestionMatrixSingle, Title: "Grid", SortKey: 3},
	)
	store.addOptions(1, &models.Option{ID: 11, Role: models.OptionNormal, SortKey: 1}, &models.Option{ID: 12, Role: models.OptionNormal, SortKey: 2})
	store.addOptions(2, &models.Option{ID: 21, Role: models.OptionNormal, SortKey: 1}, &models.Option{ID: 22, Role: models.OptionNormal, SortKey: 2})
	store.addOptions(3,
		&models.Option{ID: 31, Role: models.OptionRow, SortKey: 1},
		&models.Option{ID: 41, Role: models.OptionColumn, SortKey: 1},
		&models.Option{ID: 42, Role: models.OptionColumn, SortKey: 2},
	)

	svc := newTestSubmissionService(store.stubEngineStore, newMemBlobs())
	answers := map[int64][]FormField{
		7: {
			{Key: "question_1_option_11", Value: "on"},
			{Key: "question_2_option_21", Value: "1"},
			{Key: "question_2_option_22", Value: "2"},
			{Key: "question_3_row_31", Value: "41"},
		},
		8: {
			{Key: "question_1_option_11", Value: "on"},
			{Key: "question_2_option_21", Value: "2"},
			{Key: "question_2_option_22", Value: "1"},
			{Key: "question_3_row_31", Value: "42"},
		},
	}
	for uid, fields := range answers {
		_, err := svc.Submit(ctx, SubmitRequest{SurveyID: 1, Actor: Actor{UserID: uid}, Fields: fields})
		if err != nil {
			t.Fatalf("seed submit for %d: %v", uid, err)
		}
	}
	return store
}

func TestStatisticsCountsValidAnswers(t *testing.T) {
	ctx := context.Background()
	store := seedReport(t)
	svc := NewReportService(store)

	if _, err := svc.Statistics(ctx, Actor{UserID: 7}, 1, 0); !HasCode(err, ErrorForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	stats, err := svc.Statistics(ctx, testAdmin, 1, 0)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Statuses[models.StatusCompleted] != 2 {
		t.Fatalf("statuses = %v", stats.Statuses)
	}
	if len(stats.Timeseries) != 1 || stats.Timeseries[0] != (DailyCount{Date: "2025-09-17", Count: 2}) {
		t.Fatalf("timeseries = %v", stats.Timeseries)
	}
	if len(stats.Questions) != 3 {
		t.Fatalf("questions = %d", len(stats.Questions))
	}

	pick := stats.Questions[0]
	if pick.Options[0].Count != 2 || pick.Options[1].Count != 0 || pick.Answers != 2 {
		t.Fatalf("choice stats = %+v", pick)
	}
	order := stats.Questions[1]
	if order.Options[0].AvgPosition != 1.5 || order.Options[1].AvgPosition != 1.5 {
		t.Fatalf("ranking stats = %+v", order)
	}
	grid := stats.Questions[2]
	if len(grid.Cells) != 2 || grid.Cells[0].Count != 1 || grid.Cells[1].Count != 1 {
		t.Fatalf("matrix stats = %+v", grid)
	}
}

func TestDetailsReturnsValidRowsOnly(t *testing.T) {
	ctx := context.Background()
	store := seedReport(t)
	svc := NewReportService(store)

	d, err := svc.Details(ctx, Actor{UserID: 7}, 1, 0)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d.Status != models.StatusCompleted || d.CompletedAt == nil {
		t.Fatalf("details status = %+v", d)
	}
	// one choice, two ranking positions, one matrix cell
	if len(d.Responses) != 4 {
		t.Fatalf("valid responses = %d, want 4", len(d.Responses))
	}
	if _, err := svc.Details(ctx, Actor{UserID: 7}, 1, 8); !HasCode(err, ErrorForbidden) {
		t.Fatalf("expected forbidden reading another respondent, got %v", err)
	}
	if _, err := svc.Details(ctx, testAdmin, 9, 8); !HasCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found survey, got %v", err)
	}
}

func TestExportCSVFormats(t *testing.T) {
	ctx := context.Background()
	store := seedReport(t)
	svc := NewReportService(store)

	long, err := svc.ExportCSV(ctx, testAdmin, 1, "")
	if err != nil {
		t.Fatalf("ExportCSV long: %v", err)
	}
	if long.Filename != "survey_1_long.csv" || !strings.HasPrefix(long.ContentType, "text/csv") {
		t.Fatalf("unexpected export meta %+v", long)
	}
	if got := strings.Count(strings.TrimSpace(string(long.Data)), "\n"); got != 8 {
		t.Fatalf("long export has %d data lines, want 8", got)
	}

	wide, err := svc.ExportCSV(ctx, testAdmin, 1, "wide")
	if err != nil {
		t.Fatalf("ExportCSV wide: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(wide.Data)), "\n")
	if lines[0] != "user_id,username,q1,q2,q3" {
		t.Fatalf("wide header = %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("wide export lines = %d, want 3", len(lines))
	}

	if _, err := svc.ExportCSV(ctx, testAdmin, 1, "pivot"); !HasCode(err, ErrorInvalid) {
		t.Fatalf("expected invalid format, got %v", err)
	}
	if _, err := svc.ExportCSV(ctx, Actor{UserID: 7}, 1, "long"); !HasCode(err, ErrorForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}
