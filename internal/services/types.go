package services

import (
	"io"
	"strings"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// Actor is the authenticated caller of an engine operation, resolved by the
// transport layer and passed explicitly into every call.
type Actor struct {
	UserID int64
	Role   string
	IP     string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// FormField is one submitted key/value pair. Order is significant.
type FormField struct {
	Key   string
	Value string
}

// UploadedFile is a multipart file part already separated from the form fields.
// Field is the multipart field name, e.g. "file_12".
type UploadedFile struct {
	Field    string
	Filename string
	Size     int64
	Content  io.Reader
}

// Ext returns the lower-cased extension of the original filename without the dot.
func (f UploadedFile) Ext() string {
	name := f.Filename
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

type SubmitAction string

const (
	ActionSubmit SubmitAction = "submit"
	ActionRemake SubmitAction = "remake"
)

// SubmitRequest carries one save, final submit, or remake request.
type SubmitRequest struct {
	SurveyID     int64
	Actor        Actor
	Fields       []FormField
	Files        []UploadedFile
	IsSave       bool
	Action       SubmitAction
	TargetUserID int64
}

// SubmitResult describes the state after a successful request.
type SubmitResult struct {
	SurveyID      int64                   `json:"survey_id"`
	UserID        int64                   `json:"user_id"`
	Status        models.CompletionStatus `json:"status"`
	FieldsApplied int                     `json:"fields_applied"`
	FilesStored   int                     `json:"files_stored"`
}

// OpenResult is returned by OpenOrResume.
type OpenResult struct {
	SurveyID  int64                   `json:"survey_id"`
	Status    models.CompletionStatus `json:"status"`
	Questions []*models.Question      `json:"questions"`
	Responses []*models.Response      `json:"responses"`
	Created   bool                    `json:"created"`
}
