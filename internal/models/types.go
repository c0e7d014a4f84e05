package models

import "time"

// QuestionType determines the answer shape of a question and therefore which
// placeholder slots are materialized for it.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiChoice  QuestionType = "multi_choice"
	QuestionRating       QuestionType = "rating"
	QuestionMatrixSingle QuestionType = "matrix_single"
	QuestionMatrixMulti  QuestionType = "matrix_multi"
	QuestionFreeText     QuestionType = "free_text"
	QuestionRanking      QuestionType = "ranking"
	QuestionFileUpload   QuestionType = "file_upload"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionRating, QuestionMatrixSingle,
		QuestionMatrixMulti, QuestionFreeText, QuestionRanking, QuestionFileUpload:
		return true
	}
	return false
}

// IsMatrix reports whether answers are addressed by (row, column) cells.
func (t QuestionType) IsMatrix() bool {
	return t == QuestionMatrixSingle || t == QuestionMatrixMulti
}

// OptionRole separates ordinary choices from matrix row/column headers.
type OptionRole string

const (
	OptionNormal OptionRole = "normal"
	OptionRow    OptionRole = "row"
	OptionColumn OptionRole = "column"
)

func (r OptionRole) Valid() bool {
	return r == OptionNormal || r == OptionRow || r == OptionColumn
}

// CompletionStatus is the per (user, survey) progress marker.
type CompletionStatus string

const (
	StatusNotStarted        CompletionStatus = "not_started"
	StatusSavedNotSubmitted CompletionStatus = "saved"
	StatusCompleted         CompletionStatus = "completed"
)

func (s CompletionStatus) Valid() bool {
	return s == StatusNotStarted || s == StatusSavedNotSubmitted || s == StatusCompleted
}

// Roles recognised by the platform.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Survey struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CategoryID  int64     `json:"category_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Category groups surveys. ParentID 0 marks a top-level category.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ParentID    int64     `json:"parent_id,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Question struct {
	ID       int64        `json:"id"`
	SurveyID int64        `json:"survey_id"`
	Type     QuestionType `json:"type"`
	Title    string       `json:"title"`
	IsOpen   bool         `json:"is_open,omitempty"`
	IsSkip   bool         `json:"is_skip,omitempty"`
	SortKey  int          `json:"sort_key"`
	Options  []*Option    `json:"options,omitempty"`
}

type Option struct {
	ID          int64      `json:"id"`
	QuestionID  int64      `json:"question_id"`
	Role        OptionRole `json:"role"`
	Description string     `json:"description"`
	SortKey     int        `json:"sort_key"`
	IsOpen      bool       `json:"is_open,omitempty"`
	IsSkip      bool       `json:"is_skip,omitempty"`
}

// UserSurvey tracks a respondent's progress through an assigned survey.
type UserSurvey struct {
	UserID      int64            `json:"user_id"`
	SurveyID    int64            `json:"survey_id"`
	Status      CompletionStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Response is one answer slot. Non-file rows are addressed by
// (question, option, row, column) within a (user, survey) pair; file rows carry
// a non-empty FilePath and are only ever invalidated, never removed.
type Response struct {
	ID           int64     `json:"id"`
	SurveyID     int64     `json:"survey_id"`
	QuestionID   int64     `json:"question_id"`
	OptionID     int64     `json:"option_id"`
	RowID        int64     `json:"row_id"`
	ColumnID     int64     `json:"column_id"`
	UserID       int64     `json:"user_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	ResponseData string    `json:"response_data"`
	SortOrder    int       `json:"sort_order"`
	FilePath     string    `json:"file_path,omitempty"`
	IsValid      bool      `json:"is_valid"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsFile reports whether the row records an uploaded attachment.
func (r *Response) IsFile() bool { return r.FilePath != "" }

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	PassHash     []byte    `json:"-"`
	Role         string    `json:"role"`
	DepartmentID int64     `json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
