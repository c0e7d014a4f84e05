package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

const responseColumns = `id, survey_id, question_id, option_id, row_id, column_id, user_id,
      ip_address, response_data, sort_order, file_path, is_valid, created_at`

func (s *SQLiteStore) HasResponses(ctx context.Context, userID, surveyID int64) (bool, error) {
	var exists int64
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM responses WHERE user_id = ? AND survey_id = ?)`,
		userID, surveyID).Scan(&exists)
	return exists == 1, err
}

// InsertSlots writes the placeholder rows in one transaction. A collision with
// an existing slot aborts the batch and wraps services.ErrDuplicateSlot.
func (s *SQLiteStore) InsertSlots(ctx context.Context, rows []*models.Response) error {
	if len(rows) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO responses(survey_id, question_id, option_id, row_id, column_id,
      user_id, ip_address, response_data, sort_order, file_path, is_valid, created_at)
      VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { s.logErr("InsertSlots: stmt.Close", stmt.Close()) }()
		for _, r := range rows {
			_, err := stmt.ExecContext(ctx, r.SurveyID, r.QuestionID, r.OptionID, r.RowID, r.ColumnID,
				r.UserID, r.IPAddress, r.ResponseData, r.SortOrder, boolToInt64(r.IsValid), formatTime(r.CreatedAt))
			if isUniqueViolation(err) {
				return fmt.Errorf("insert slot q%d/o%d/r%d/c%d: %w", r.QuestionID, r.OptionID, r.RowID, r.ColumnID, services.ErrDuplicateSlot)
			}
			if err != nil {
				return fmt.Errorf("insert slot: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) FileResponseIDs(ctx context.Context, userID, surveyID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM responses
      WHERE user_id = ? AND survey_id = ? AND file_path IS NOT NULL ORDER BY id`, userID, surveyID)
	if err != nil {
		return nil, err
	}
	defer s.closeRows("FileResponseIDs", rows)
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ResetValidity(ctx context.Context, userID, surveyID int64, exceptIDs []int64) (int64, error) {
	query := `UPDATE responses SET is_valid = 0 WHERE user_id = ? AND survey_id = ?`
	args := []any{userID, surveyID}
	if marks, ids := idList(exceptIDs); marks != "" {
		query += ` AND id NOT IN (` + marks + `)`
		args = append(args, ids...)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset validity: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) UpdateSlot(ctx context.Context, u services.SlotUpdate) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE responses
      SET is_valid = ?, response_data = ?, sort_order = ?, ip_address = ?, created_at = ?
      WHERE user_id = ? AND survey_id = ? AND question_id = ? AND option_id = ? AND row_id = ? AND column_id = ?
        AND file_path IS NULL`,
		boolToInt64(u.Valid), u.Data, u.SortOrder, u.IP, formatTime(u.At),
		u.UserID, u.SurveyID, u.QuestionID, u.OptionID, u.RowID, u.ColumnID)
	if err != nil {
		return 0, fmt.Errorf("update slot: %w", err)
	}
	return res.RowsAffected()
}

// UpdateOpenAnswer addresses the option's own row within the (user, survey)
// pair; the question is implied by the option.
func (s *SQLiteStore) UpdateOpenAnswer(ctx context.Context, u services.SlotUpdate) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE responses
      SET is_valid = ?, response_data = ?, ip_address = ?, created_at = ?
      WHERE user_id = ? AND survey_id = ? AND option_id = ? AND row_id = 0 AND column_id = 0
        AND file_path IS NULL`,
		boolToInt64(u.Valid), u.Data, u.IP, formatTime(u.At),
		u.UserID, u.SurveyID, u.OptionID)
	if err != nil {
		return 0, fmt.Errorf("update open answer: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) InsertFileResponse(ctx context.Context, r *models.Response) (int64, error) {
	if r.FilePath == "" {
		return 0, fmt.Errorf("insert file response: empty file path")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO responses(survey_id, question_id, option_id, row_id, column_id,
      user_id, ip_address, response_data, sort_order, file_path, is_valid, created_at)
      VALUES(?, ?, 0, 0, 0, ?, ?, ?, 0, ?, ?, ?)`,
		r.SurveyID, r.QuestionID, r.UserID, r.IPAddress, r.ResponseData,
		r.FilePath, boolToInt64(r.IsValid), formatTime(r.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert file response: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) InvalidateFiles(ctx context.Context, userID, surveyID, questionID int64, keptIDs []int64) (int64, error) {
	query := `UPDATE responses SET is_valid = 0
      WHERE user_id = ? AND survey_id = ? AND question_id = ? AND file_path IS NOT NULL`
	args := []any{userID, surveyID, questionID}
	if marks, ids := idList(keptIDs); marks != "" {
		query += ` AND id NOT IN (` + marks + `)`
		args = append(args, ids...)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate files: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ListResponses(ctx context.Context, userID, surveyID int64) ([]*models.Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+responseColumns+`
      FROM responses WHERE user_id = ? AND survey_id = ? ORDER BY id`, userID, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer s.closeRows("ListResponses", rows)
	out := []*models.Response{}
	for rows.Next() {
		var (
			r       models.Response
			file    sql.NullString
			valid   int64
			created string
		)
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.QuestionID, &r.OptionID, &r.RowID, &r.ColumnID, &r.UserID,
			&r.IPAddress, &r.ResponseData, &r.SortOrder, &file, &valid, &created); err != nil {
			return nil, err
		}
		r.FilePath = file.String
		r.IsValid = int64ToBool(valid)
		r.CreatedAt = parseTime(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}
