package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

// --- Users & departments ---

func (s *SQLiteStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var (
		u       models.User
		dept    sql.NullInt64
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, username, display_name, pass_hash, role, department_id, created_at
      FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PassHash, &u.Role, &dept, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.DepartmentID = dept.Int64
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteStore) AddUser(ctx context.Context, u *models.User) (*models.User, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username, display_name, pass_hash, role, department_id, created_at)
      VALUES(?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PassHash, u.Role, toNullID(u.DepartmentID), formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return nil, services.NewConflictError("username exists")
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *u
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetDepartment(ctx context.Context, id int64) (*models.Department, error) {
	var d models.Department
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM departments WHERE id = ?`, id).Scan(&d.ID, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) AddDepartment(ctx context.Context, d *models.Department) (*models.Department, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO departments(name) VALUES(?)`, d.Name)
	if isUniqueViolation(err) {
		return nil, services.NewConflictError("department exists")
	}
	if err != nil {
		return nil, fmt.Errorf("insert department: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Department{ID: id, Name: d.Name}, nil
}

func (s *SQLiteStore) ListDepartments(ctx context.Context) ([]*models.Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer s.closeRows("ListDepartments", rows)
	out := []*models.Department{}
	for rows.Next() {
		var d models.Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// --- Completion records ---

func (s *SQLiteStore) GetUserSurvey(ctx context.Context, userID, surveyID int64) (*models.UserSurvey, error) {
	var (
		us        models.UserSurvey
		status    string
		assigned  string
		completed sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT user_id, survey_id, status, assigned_at, completed_at
      FROM user_surveys WHERE user_id = ? AND survey_id = ?`, userID, surveyID).
		Scan(&us.UserID, &us.SurveyID, &status, &assigned, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user survey: %w", err)
	}
	us.Status = models.CompletionStatus(status)
	us.AssignedAt = parseTime(assigned)
	us.CompletedAt = parseNullTime(completed)
	return &us, nil
}

// SetStatus upserts the completion record. A record created here is treated
// as assigned at the moment of the first write.
func (s *SQLiteStore) SetStatus(ctx context.Context, userID, surveyID int64, status models.CompletionStatus, completedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_surveys(user_id, survey_id, status, assigned_at, completed_at)
      VALUES(?, ?, ?, ?, ?)
      ON CONFLICT(user_id, survey_id) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at`,
		userID, surveyID, string(status), formatTime(time.Now()), formatNullTime(completedAt))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// --- Assignment ---

func (s *SQLiteStore) DepartmentAssigned(ctx context.Context, surveyID, departmentID int64) (bool, error) {
	var exists int64
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM department_surveys WHERE survey_id = ? AND department_id = ?)`,
		surveyID, departmentID).Scan(&exists)
	return exists == 1, err
}

// AssignSurveyToDepartment records the department assignment and creates a
// not-started record for every current member, returning how many were created.
func (s *SQLiteStore) AssignSurveyToDepartment(ctx context.Context, surveyID, departmentID int64, at time.Time) (int, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO department_surveys(department_id, survey_id, assigned_at) VALUES(?, ?, ?)`,
			departmentID, surveyID, formatTime(at)); err != nil {
			if isUniqueViolation(err) {
				return services.NewConflictError("survey already assigned to this department")
			}
			return fmt.Errorf("assign department: %w", err)
		}
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_surveys(user_id, survey_id, status, assigned_at)
      SELECT id, ?, ?, ? FROM users WHERE department_id = ?`,
			surveyID, string(models.StatusNotStarted), formatTime(at), departmentID)
		if err != nil {
			return fmt.Errorf("assign members: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *SQLiteStore) DepartmentSurveyIDs(ctx context.Context, departmentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT survey_id FROM department_surveys WHERE department_id = ? ORDER BY survey_id`, departmentID)
	if err != nil {
		return nil, err
	}
	defer s.closeRows("DepartmentSurveyIDs", rows)
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

func (s *SQLiteStore) AssignUser(ctx context.Context, userID int64, surveyIDs []int64, at time.Time) (int, error) {
	total := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, sid := range surveyIDs {
			res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_surveys(user_id, survey_id, status, assigned_at)
      VALUES(?, ?, ?, ?)`, userID, sid, string(models.StatusNotStarted), formatTime(at))
			if err != nil {
				return fmt.Errorf("assign user: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLiteStore) ListUserSurveys(ctx context.Context, userID int64, keyword string, page services.Page) ([]*services.UserSurveyView, int, error) {
	where := `us.user_id = ? AND (? = '' OR sv.name LIKE '%' || ? || '%')`
	args := []any{userID, keyword, keyword}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_surveys us JOIN surveys sv ON sv.id = us.survey_id WHERE `+where,
		args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user surveys: %w", err)
	}
	limit, offset := pageArgs(page.Size, page.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT sv.id, sv.name, us.status, us.assigned_at, us.completed_at
      FROM user_surveys us JOIN surveys sv ON sv.id = us.survey_id
      WHERE `+where+`
      ORDER BY us.assigned_at DESC, sv.id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list user surveys: %w", err)
	}
	defer s.closeRows("ListUserSurveys", rows)
	out := []*services.UserSurveyView{}
	for rows.Next() {
		var (
			v         services.UserSurveyView
			status    string
			assigned  string
			completed sql.NullString
		)
		if err := rows.Scan(&v.SurveyID, &v.SurveyName, &status, &assigned, &completed); err != nil {
			return nil, 0, err
		}
		v.Status = models.CompletionStatus(status)
		v.AssignedAt = parseTime(assigned)
		v.CompletedAt = parseNullTime(completed)
		out = append(out, &v)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) ListUnfinished(ctx context.Context, surveyID, departmentID int64, page services.Page) ([]*services.UnfinishedUser, int, error) {
	where := `us.survey_id = ? AND us.status <> ? AND (? = 0 OR u.department_id = ?)`
	args := []any{surveyID, string(models.StatusCompleted), departmentID, departmentID}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_surveys us JOIN users u ON u.id = us.user_id WHERE `+where,
		args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count unfinished: %w", err)
	}
	limit, offset := pageArgs(page.Size, page.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT u.id, u.username, u.display_name, COALESCE(u.department_id, 0), COALESCE(d.name, ''), us.status
      FROM user_surveys us
      JOIN users u ON u.id = us.user_id
      LEFT JOIN departments d ON d.id = u.department_id
      WHERE `+where+`
      ORDER BY d.name, u.username LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list unfinished: %w", err)
	}
	defer s.closeRows("ListUnfinished", rows)
	out := []*services.UnfinishedUser{}
	for rows.Next() {
		var (
			u      services.UnfinishedUser
			status string
		)
		if err := rows.Scan(&u.UserID, &u.Username, &u.DisplayName, &u.DepartmentID, &u.DepartmentName, &status); err != nil {
			return nil, 0, err
		}
		u.Status = models.CompletionStatus(status)
		out = append(out, &u)
	}
	return out, total, rows.Err()
}
