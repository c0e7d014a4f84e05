package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soaringjerry/surveyhub/internal/models"
)

func (s *SQLiteStore) InsertSurvey(ctx context.Context, sv *models.Survey) (*models.Survey, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO surveys(name, description, status, category_id, created_at) VALUES(?, ?, ?, ?, ?)`,
		sv.Name, sv.Description, sv.Status, toNullID(sv.CategoryID), formatTime(sv.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert survey: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *sv
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetSurvey(ctx context.Context, id int64) (*models.Survey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id)
	sv, err := scanSurvey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sv, err
}

func (s *SQLiteStore) ListSurveys(ctx context.Context) ([]*models.Survey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	return s.collectSurveys("ListSurveys", rows)
}

// SurveysInCategory lists the surveys linked to a category, newest first.
func (s *SQLiteStore) SurveysInCategory(ctx context.Context, categoryID int64) ([]*models.Survey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE category_id = ? ORDER BY id DESC`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list category surveys: %w", err)
	}
	return s.collectSurveys("SurveysInCategory", rows)
}

func (s *SQLiteStore) collectSurveys(op string, rows *sql.Rows) ([]*models.Survey, error) {
	defer s.closeRows(op, rows)
	out := []*models.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateSurveyStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE surveys SET status = ? WHERE id = ?`, status, id)
	return err
}

// UpdateSurveyCategory links the survey to a category; 0 unlinks it.
func (s *SQLiteStore) UpdateSurveyCategory(ctx context.Context, id, categoryID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE surveys SET category_id = ? WHERE id = ?`, toNullID(categoryID), id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

const surveyColumns = `id, name, description, status, COALESCE(category_id, 0), created_at`

func scanSurvey(r scanner) (*models.Survey, error) {
	var (
		sv      models.Survey
		created string
	)
	if err := r.Scan(&sv.ID, &sv.Name, &sv.Description, &sv.Status, &sv.CategoryID, &created); err != nil {
		return nil, err
	}
	sv.CreatedAt = parseTime(created)
	return &sv, nil
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *models.Question) (*models.Question, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO questions(survey_id, type, title, is_open, is_skip, sort_key)
      VALUES(?, ?, ?, ?, ?, ?)`,
		q.SurveyID, string(q.Type), q.Title, boolToInt64(q.IsOpen), boolToInt64(q.IsSkip), q.SortKey)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *q
	out.ID = id
	out.Options = nil
	return &out, nil
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, survey_id, type, title, is_open, is_skip, sort_key FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (s *SQLiteStore) QuestionsOf(ctx context.Context, surveyID int64) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, survey_id, type, title, is_open, is_skip, sort_key
      FROM questions WHERE survey_id = ? ORDER BY sort_key, id`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer s.closeRows("QuestionsOf", rows)
	out := []*models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuestion(r scanner) (*models.Question, error) {
	var (
		q            models.Question
		typ          string
		isOpen, skip int64
	)
	if err := r.Scan(&q.ID, &q.SurveyID, &typ, &q.Title, &isOpen, &skip, &q.SortKey); err != nil {
		return nil, err
	}
	q.Type = models.QuestionType(typ)
	q.IsOpen = int64ToBool(isOpen)
	q.IsSkip = int64ToBool(skip)
	return &q, nil
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.db.ExecContext(ctx, `UPDATE questions SET type = ?, title = ?, is_open = ?, is_skip = ?, sort_key = ? WHERE id = ?`,
		string(q.Type), q.Title, boolToInt64(q.IsOpen), boolToInt64(q.IsSkip), q.SortKey, q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// DeleteQuestion removes the question together with its options.
func (s *SQLiteStore) DeleteQuestion(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE question_id = ?`, id); err != nil {
			return fmt.Errorf("delete question options: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		return nil
	})
}

// QuestionResponseCount counts response rows of any kind under the question.
func (s *SQLiteStore) QuestionResponseCount(ctx context.Context, questionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE question_id = ?`, questionID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) InsertOption(ctx context.Context, o *models.Option) (*models.Option, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO options(question_id, role, description, sort_key, is_open, is_skip)
      VALUES(?, ?, ?, ?, ?, ?)`,
		o.QuestionID, string(o.Role), o.Description, o.SortKey, boolToInt64(o.IsOpen), boolToInt64(o.IsSkip))
	if err != nil {
		return nil, fmt.Errorf("insert option: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *o
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) OptionsOf(ctx context.Context, questionID int64) ([]*models.Option, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, question_id, role, description, sort_key, is_open, is_skip
      FROM options WHERE question_id = ? ORDER BY sort_key, id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer s.closeRows("OptionsOf", rows)
	out := []*models.Option{}
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetOption(ctx context.Context, id int64) (*models.Option, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, question_id, role, description, sort_key, is_open, is_skip FROM options WHERE id = ?`, id)
	o, err := scanOption(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (s *SQLiteStore) UpdateOption(ctx context.Context, o *models.Option) error {
	_, err := s.db.ExecContext(ctx, `UPDATE options SET role = ?, description = ?, sort_key = ?, is_open = ?, is_skip = ? WHERE id = ?`,
		string(o.Role), o.Description, o.SortKey, boolToInt64(o.IsOpen), boolToInt64(o.IsSkip), o.ID)
	if err != nil {
		return fmt.Errorf("update option: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteOption(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE id = ?`, id)
	return err
}

// OptionResponseCount counts response rows that address the option as a
// choice, a matrix row or a matrix column.
func (s *SQLiteStore) OptionResponseCount(ctx context.Context, optionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE option_id = ? OR row_id = ? OR column_id = ?`,
		optionID, optionID, optionID).Scan(&n)
	return n, err
}

func scanOption(r scanner) (*models.Option, error) {
	var (
		o            models.Option
		role         string
		isOpen, skip int64
	)
	if err := r.Scan(&o.ID, &o.QuestionID, &role, &o.Description, &o.SortKey, &isOpen, &skip); err != nil {
		return nil, err
	}
	o.Role = models.OptionRole(role)
	o.IsOpen = int64ToBool(isOpen)
	o.IsSkip = int64ToBool(skip)
	return &o, nil
}
