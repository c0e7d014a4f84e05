package services

import (
	"context"
	"strings"

	"github.com/soaringjerry/surveyhub/internal/models"
)

type CategoryStore interface {
	InsertCategory(ctx context.Context, c *models.Category) (*models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CategoryUsage(ctx context.Context, id int64) (children, surveys int, err error)
	ListCategories(ctx context.Context, keyword string, page Page) ([]*models.Category, int, error)
	ParentCategories(ctx context.Context) ([]*models.Category, error)
	AllCategories(ctx context.Context) ([]*models.Category, error)
}

type CategoryPage struct {
	Items []*models.Category `json:"items"`
	Total int                `json:"total"`
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor Actor, c *models.Category) (*models.Category, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if c == nil {
		return nil, NewInvalidError("category required")
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, NewInvalidError("name required")
	}
	if c.ParentID != 0 {
		if _, err := s.requireCategory(ctx, c.ParentID); err != nil {
			return nil, err
		}
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	return s.store.InsertCategory(ctx, c)
}

// UpdateCategory renames or re-parents a category. A category may not end up
// beneath itself.
func (s *CatalogService) UpdateCategory(ctx context.Context, actor Actor, c *models.Category) (*models.Category, error) {
	if !actor.IsAdmin() {
		return nil, NewForbiddenError("forbidden")
	}
	if c == nil {
		return nil, NewInvalidError("category required")
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	cur, err := s.requireCategory(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	for p := c.ParentID; p != 0; {
		if p == cur.ID {
			return nil, NewInvalidError("category cannot be its own ancestor")
		}
		parent, err := s.requireCategory(ctx, p)
		if err != nil {
			return nil, err
		}
		p = parent.ParentID
	}
	upd := *cur
	upd.Name = name
	upd.ParentID = c.ParentID
	upd.Description = c.Description
	upd.UpdatedAt = s.now()
	if err := s.store.UpdateCategory(ctx, &upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

// DeleteCategory refuses while child categories or surveys still point at it.
func (s *CatalogService) DeleteCategory(ctx context.Context, actor Actor, id int64) error {
	if !actor.IsAdmin() {
		return NewForbiddenError("forbidden")
	}
	if _, err := s.requireCategory(ctx, id); err != nil {
		return err
	}
	children, surveys, err := s.store.CategoryUsage(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return NewConflictError("category has subcategories")
	}
	if surveys > 0 {
		return NewConflictError("category has surveys")
	}
	return s.store.DeleteCategory(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context, keyword string, page Page) (*CategoryPage, error) {
	items, total, err := s.store.ListCategories(ctx, strings.TrimSpace(keyword), normalizePage(page, 10))
	if err != nil {
		return nil, err
	}
	return &CategoryPage{Items: items, Total: total}, nil
}

func (s *CatalogService) ParentCategories(ctx context.Context) ([]*models.Category, error) {
	return s.store.ParentCategories(ctx)
}

func (s *CatalogService) AllCategories(ctx context.Context) ([]*models.Category, error) {
	return s.store.AllCategories(ctx)
}

// SetSurveyCategory links a survey to a category; categoryID 0 unlinks it.
func (s *CatalogService) SetSurveyCategory(ctx context.Context, actor Actor, surveyID, categoryID int64) error {
	if !actor.IsAdmin() {
		return NewForbiddenError("forbidden")
	}
	if _, err := s.requireSurvey(ctx, surveyID); err != nil {
		return err
	}
	if categoryID != 0 {
		if _, err := s.requireCategory(ctx, categoryID); err != nil {
			return err
		}
	}
	if err := s.store.UpdateSurveyCategory(ctx, surveyID, categoryID); err != nil {
		return err
	}
	s.invalidateSurvey(ctx, surveyID)
	return nil
}

func (s *CatalogService) CategorySurveys(ctx context.Context, categoryID int64) ([]*models.Survey, error) {
	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	return s.store.SurveysInCategory(ctx, categoryID)
}

func (s *CatalogService) requireCategory(ctx context.Context, id int64) (*models.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, NewNotFoundError("category not found")
	}
	return c, nil
}
