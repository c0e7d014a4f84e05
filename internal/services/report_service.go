package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type ReportStore interface {
	CatalogReader
	ListResponses(ctx context.Context, userID, surveyID int64) ([]*models.Response, error)
	GetUserSurvey(ctx context.Context, userID, surveyID int64) (*models.UserSurvey, error)
	CountValidSlots(ctx context.Context, surveyID, departmentID int64) ([]SlotCount, error)
	StatusCounts(ctx context.Context, surveyID, departmentID int64) (map[models.CompletionStatus]int, error)
	CompletionTimes(ctx context.Context, surveyID, departmentID int64) ([]time.Time, error)
	ListValidResponses(ctx context.Context, surveyID int64) ([]LongRow, error)
}

// SlotCount is the number of valid rows sharing one slot address across
// respondents. SortSum adds up their sort_order values.
type SlotCount struct {
	QuestionID int64
	OptionID   int64
	RowID      int64
	ColumnID   int64
	Count      int
	SortSum    int
}

type ResponseDetails struct {
	SurveyID    int64                   `json:"survey_id"`
	UserID      int64                   `json:"user_id"`
	Status      models.CompletionStatus `json:"status"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Responses   []*models.Response      `json:"responses"`
}

type OptionStat struct {
	OptionID    int64   `json:"option_id"`
	Description string  `json:"description"`
	Count       int     `json:"count"`
	AvgPosition float64 `json:"avg_position,omitempty"`
}

type CellStat struct {
	RowID    int64 `json:"row_id"`
	ColumnID int64 `json:"column_id"`
	Count    int   `json:"count"`
}

type QuestionStat struct {
	QuestionID int64               `json:"question_id"`
	Title      string              `json:"title"`
	Type       models.QuestionType `json:"type"`
	Options    []OptionStat        `json:"options,omitempty"`
	Cells      []CellStat          `json:"cells,omitempty"`
	Answers    int                 `json:"answers"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type SurveyStatistics struct {
	SurveyID     int64                           `json:"survey_id"`
	DepartmentID int64                           `json:"department_id,omitempty"`
	Statuses     map[models.CompletionStatus]int `json:"statuses"`
	Questions    []QuestionStat                  `json:"questions"`
	Timeseries   []DailyCount                    `json:"timeseries"`
}

type ReportService struct {
	store       ReportStore
	concurrency int
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{store: store, concurrency: 8}
}

// Details returns the valid answers of one respondent. Respondents may read
// their own answers; administrators may read anyone's.
func (s *ReportService) Details(ctx context.Context, actor Actor, surveyID, userID int64) (*ResponseDetails, error) {
	if userID == 0 {
		userID = actor.UserID
	}
	if userID <= 0 {
		return nil, NewInvalidError("user required")
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	rows, err := s.store.ListResponses(ctx, userID, surveyID)
	if err != nil {
		return nil, err
	}
	valid := make([]*models.Response, 0, len(rows))
	for _, r := range rows {
		if r.IsValid {
			valid = append(valid, r)
		}
	}
	out := &ResponseDetails{SurveyID: surveyID, UserID: userID, Status: models.StatusNotStarted, Responses: valid}
	us, err := s.store.GetUserSurvey(ctx, userID, surveyID)
	if err != nil {
		return nil, err
	}
	if us != nil {
		out.Status = us.Status
		out.CompletedAt = us.CompletedAt
	}
	return out, nil
}

// Statistics counts valid answers per option and matrix cell. departmentID 0
// covers every respondent.
func (s *ReportService) Statistics(ctx context.Context, actor Actor, surveyID, departmentID int64) (*SurveyStatistics, error) {
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
	questions, err := s.store.QuestionsOf(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		options  = make(map[int64][]*models.Option, len(questions))
		counts   []SlotCount
		statuses map[models.CompletionStatus]int
		times    []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	g.Go(func() error {
		c, err := s.store.CountValidSlots(gctx, surveyID, departmentID)
		counts = c
		return err
	})
	g.Go(func() error {
		st, err := s.store.StatusCounts(gctx, surveyID, departmentID)
		statuses = st
		return err
	})
	g.Go(func() error {
		ts, err := s.store.CompletionTimes(gctx, surveyID, departmentID)
		times = ts
		return err
	})
	for _, q := range questions {
		if q.Type == models.QuestionFreeText || q.Type == models.QuestionFileUpload {
			continue
		}
		q := q
		g.Go(func() error {
			opts, err := s.store.OptionsOf(gctx, q.ID)
			if err != nil {
				return fmt.Errorf("options of question %d: %w", q.ID, err)
			}
			mu.Lock()
			options[q.ID] = opts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if statuses == nil {
		statuses = map[models.CompletionStatus]int{}
	}
	return &SurveyStatistics{
		SurveyID:     surveyID,
		DepartmentID: departmentID,
		Statuses:     statuses,
		Questions:    buildQuestionStats(questions, options, counts),
		Timeseries:   buildTimeseries(times),
	}, nil
}

func buildQuestionStats(questions []*models.Question, options map[int64][]*models.Option, counts []SlotCount) []QuestionStat {
	byQuestion := map[int64][]SlotCount{}
	for _, c := range counts {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	sorted := append([]*models.Question(nil), questions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortKey < sorted[j].SortKey })

	out := make([]QuestionStat, 0, len(sorted))
	for _, q := range sorted {
		qs := QuestionStat{QuestionID: q.ID, Title: q.Title, Type: q.Type}
		slots := byQuestion[q.ID]
		switch {
		case q.Type.IsMatrix():
			cell := map[[2]int64]int{}
			for _, c := range slots {
				cell[[2]int64{c.RowID, c.ColumnID}] += c.Count
				qs.Answers += c.Count
			}
			opts := options[q.ID]
			for _, r := range filterRole(opts, models.OptionRow) {
				for _, col := range filterRole(opts, models.OptionColumn) {
					qs.Cells = append(qs.Cells, CellStat{RowID: r.ID, ColumnID: col.ID, Count: cell[[2]int64{r.ID, col.ID}]})
				}
			}
		case q.Type == models.QuestionFreeText || q.Type == models.QuestionFileUpload:
			for _, c := range slots {
				qs.Answers += c.Count
			}
		default:
			perOption := map[int64]SlotCount{}
			for _, c := range slots {
				agg := perOption[c.OptionID]
				agg.Count += c.Count
				agg.SortSum += c.SortSum
				perOption[c.OptionID] = agg
				qs.Answers += c.Count
			}
			for _, o := range filterRole(options[q.ID], models.OptionNormal) {
				agg := perOption[o.ID]
				st := OptionStat{OptionID: o.ID, Description: o.Description, Count: agg.Count}
				if q.Type == models.QuestionRanking && agg.Count > 0 {
					st.AvgPosition = float64(agg.SortSum) / float64(agg.Count)
				}
				qs.Options = append(qs.Options, st)
			}
		}
		out = append(out, qs)
	}
	return out
}

func buildTimeseries(times []time.Time) []DailyCount {
	counts := map[string]int{}
	for _, t := range times {
		counts[t.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]DailyCount, 0, len(days))
	for _, d := range days {
		out = append(out, DailyCount{Date: d, Count: counts[d]})
	}
	return out
}

// ExportCSV renders every valid answer of the survey as CSV. format is
// "long" (default) or "wide".
func (s *ReportService) ExportCSV(ctx context.Context, actor Actor, surveyID int64, format string) (*ExportResult, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if format == "" {
		format = "long"
	}
	if format != "long" && format != "wide" {
		return nil, NewInvalidError("unsupported format")
	}
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if sv == nil {
		return nil, NewNotFoundError("survey not found")
	}
	rows, err := s.store.ListValidResponses(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	var data []byte
	if format == "wide" {
		data, err = ExportWideCSV(rows)
	} else {
		data, err = ExportLongCSV(rows)
	}
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("survey_%d_%s.csv", surveyID, format),
		ContentType: contentTypeCSV,
		Data:        data,
	}, nil
}
