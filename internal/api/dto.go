package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/soaringjerry/surveyhub/internal/models"
)

const maxJSONBytes = 1 << 20

type credentialsRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=64"`
	Password     string `json:"password" validate:"required,min=8,max=128"`
	DisplayName  string `json:"display_name" validate:"max=128"`
	DepartmentID int64  `json:"department_id" validate:"gte=0"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createUserRequest struct {
	credentialsRequest
	Role string `json:"role" validate:"omitempty,oneof=admin user"`
}

type departmentRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type surveyRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
}

type surveyStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type questionRequest struct {
	Type    string `json:"type" validate:"required"`
	Title   string `json:"title" validate:"required"`
	IsOpen  bool   `json:"is_open"`
	IsSkip  bool   `json:"is_skip"`
	SortKey int    `json:"sort_key"`
}

func (q questionRequest) model(surveyID int64) *models.Question {
	return &models.Question{
		SurveyID: surveyID,
		Type:     models.QuestionType(q.Type),
		Title:    q.Title,
		IsOpen:   q.IsOpen,
		IsSkip:   q.IsSkip,
		SortKey:  q.SortKey,
	}
}

type optionRequest struct {
	Role        string `json:"role" validate:"omitempty,oneof=normal row column"`
	Description string `json:"description" validate:"required"`
	SortKey     int    `json:"sort_key"`
	IsOpen      bool   `json:"is_open"`
	IsSkip      bool   `json:"is_skip"`
}

func (o optionRequest) model(questionID int64) *models.Option {
	role := models.OptionRole(o.Role)
	if role == "" {
		role = models.OptionNormal
	}
	return &models.Option{
		QuestionID:  questionID,
		Role:        role,
		Description: o.Description,
		SortKey:     o.SortKey,
		IsOpen:      o.IsOpen,
		IsSkip:      o.IsSkip,
	}
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	ParentID    int64  `json:"parent_id" validate:"gte=0"`
	Description string `json:"description" validate:"max=1000"`
}

func (c categoryRequest) model(id int64) *models.Category {
	return &models.Category{ID: id, Name: c.Name, ParentID: c.ParentID, Description: c.Description}
}

type surveyCategoryRequest struct {
	CategoryID int64 `json:"category_id" validate:"gte=0"`
}

type assignRequest struct {
	DepartmentID int64 `json:"department_id" validate:"required,gt=0"`
}

type userStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=not_started saved completed"`
}

// decode reads a JSON body into v and runs its validation tags.
func (rt *Router) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json body")
	}
	return rt.validate.Struct(v)
}
