package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

// departmentFilter restricts a query aliased with u (users) to one department;
// departmentID 0 matches everyone.
const departmentFilter = `(? = 0 OR u.department_id = ?)`

func (s *SQLiteStore) CountValidSlots(ctx context.Context, surveyID, departmentID int64) ([]services.SlotCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.question_id, r.option_id, r.row_id, r.column_id, COUNT(*), COALESCE(SUM(r.sort_order), 0)
      FROM responses r JOIN users u ON u.id = r.user_id
      WHERE r.survey_id = ? AND r.is_valid = 1 AND `+departmentFilter+`
      GROUP BY r.question_id, r.option_id, r.row_id, r.column_id
      ORDER BY r.question_id, r.option_id, r.row_id, r.column_id`,
		surveyID, departmentID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("count slots: %w", err)
	}
	defer s.closeRows("CountValidSlots", rows)
	out := []services.SlotCount{}
	for rows.Next() {
		var c services.SlotCount
		if err := rows.Scan(&c.QuestionID, &c.OptionID, &c.RowID, &c.ColumnID, &c.Count, &c.SortSum); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) StatusCounts(ctx context.Context, surveyID, departmentID int64) (map[models.CompletionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT us.status, COUNT(*)
      FROM user_surveys us JOIN users u ON u.id = us.user_id
      WHERE us.survey_id = ? AND `+departmentFilter+`
      GROUP BY us.status`,
		surveyID, departmentID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer s.closeRows("StatusCounts", rows)
	out := map[models.CompletionStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[models.CompletionStatus(status)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CompletionTimes(ctx context.Context, surveyID, departmentID int64) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT us.completed_at
      FROM user_surveys us JOIN users u ON u.id = us.user_id
      WHERE us.survey_id = ? AND us.status = ? AND us.completed_at IS NOT NULL AND `+departmentFilter+`
      ORDER BY us.completed_at`,
		surveyID, string(models.StatusCompleted), departmentID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("completion times: %w", err)
	}
	defer s.closeRows("CompletionTimes", rows)
	var out []time.Time
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, parseTime(v))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListValidResponses(ctx context.Context, surveyID int64) ([]services.LongRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.user_id, u.username, r.question_id, r.option_id, r.row_id, r.column_id,
      r.response_data, r.sort_order, r.file_path, us.completed_at
      FROM responses r
      JOIN users u ON u.id = r.user_id
      LEFT JOIN user_surveys us ON us.user_id = r.user_id AND us.survey_id = r.survey_id
      WHERE r.survey_id = ? AND r.is_valid = 1
      ORDER BY r.user_id, r.question_id, r.id`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list valid responses: %w", err)
	}
	defer s.closeRows("ListValidResponses", rows)
	out := []services.LongRow{}
	for rows.Next() {
		var (
			lr        services.LongRow
			file      sql.NullString
			completed sql.NullString
		)
		if err := rows.Scan(&lr.UserID, &lr.Username, &lr.QuestionID, &lr.OptionID, &lr.RowID, &lr.ColumnID,
			&lr.Data, &lr.SortOrder, &file, &completed); err != nil {
			return nil, err
		}
		lr.FilePath = file.String
		if t := parseNullTime(completed); t != nil {
			lr.SubmittedAt = t.Format(time.RFC3339)
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}
