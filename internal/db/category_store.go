package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

const categoryColumns = `id, name, COALESCE(parent_id, 0), description, created_at, updated_at`

func (s *SQLiteStore) InsertCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories(name, parent_id, description, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		c.Name, toNullID(c.ParentID), c.Description, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *c
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	_, err := s.db.ExecContext(ctx, `UPDATE categories SET name = ?, parent_id = ?, description = ?, updated_at = ? WHERE id = ?`,
		c.Name, toNullID(c.ParentID), c.Description, formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	return err
}

// CategoryUsage reports how many child categories and linked surveys point
// at the category.
func (s *SQLiteStore) CategoryUsage(ctx context.Context, id int64) (children, surveys int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
      (SELECT COUNT(*) FROM categories WHERE parent_id = ?),
      (SELECT COUNT(*) FROM surveys WHERE category_id = ?)`, id, id).Scan(&children, &surveys)
	return children, surveys, err
}

// ListCategories pages through categories whose name contains keyword.
func (s *SQLiteStore) ListCategories(ctx context.Context, keyword string, page services.Page) ([]*models.Category, int, error) {
	where := `(? = '' OR name LIKE '%' || ? || '%')`
	args := []any{keyword, keyword}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count categories: %w", err)
	}
	limit, offset := pageArgs(page.Size, page.Offset())
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where+`
      ORDER BY id LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	out, err := s.collectCategories("ListCategories", rows)
	return out, total, err
}

// ParentCategories lists the top-level categories.
func (s *SQLiteStore) ParentCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE parent_id IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list parent categories: %w", err)
	}
	return s.collectCategories("ParentCategories", rows)
}

func (s *SQLiteStore) AllCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return s.collectCategories("AllCategories", rows)
}

func (s *SQLiteStore) collectCategories(op string, rows *sql.Rows) ([]*models.Category, error) {
	defer s.closeRows(op, rows)
	out := []*models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(r scanner) (*models.Category, error) {
	var (
		c                models.Category
		created, updated string
	)
	if err := r.Scan(&c.ID, &c.Name, &c.ParentID, &c.Description, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}
