package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// DefaultMaxUploadBytes caps a single attachment.
const DefaultMaxUploadBytes int64 = 20 << 20

// AllowedUploadExts is the attachment allow-list.
var AllowedUploadExts = []string{"jpg", "jpeg", "png", "gif", "pdf", "docx", "xlsx"}

// BlobStore persists attachment bytes under name and returns the public path
// recorded on the response row.
type BlobStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileReconciler maps uploads to file rows and invalidates attachments the
// respondent removed.
type FileReconciler struct {
	responses ResponseStore
	blobs     BlobStore
	maxBytes  int64
	allowed   map[string]struct{}
	now       func() time.Time
}

func NewFileReconciler(responses ResponseStore, blobs BlobStore, maxBytes int64) *FileReconciler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	allowed := make(map[string]struct{}, len(AllowedUploadExts))
	for _, ext := range AllowedUploadExts {
		allowed[ext] = struct{}{}
	}
	return &FileReconciler{
		responses: responses,
		blobs:     blobs,
		maxBytes:  maxBytes,
		allowed:   allowed,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MaxBytes returns the per-file size limit.
func (f *FileReconciler) MaxBytes() int64 { return f.maxBytes }

// Validate checks one upload against the survey without writing anything and
// returns the question it belongs to.
func (f *FileReconciler) Validate(file UploadedFile, questions map[int64]*models.Question) (int64, error) {
	qid, err := FileQuestionID(file.Field)
	if err != nil {
		return 0, NewInvalidError(err.Error())
	}
	q, ok := questions[qid]
	if !ok {
		return 0, NewUnknownSlotError(fmt.Sprintf("question %d is not part of this survey", qid))
	}
	if q.Type != models.QuestionFileUpload {
		return 0, NewInvalidError(fmt.Sprintf("question %d does not accept files", qid))
	}
	if _, ok := f.allowed[file.Ext()]; !ok {
		return 0, NewInvalidError(fmt.Sprintf("file type %q is not allowed", file.Ext()))
	}
	if file.Size > f.maxBytes {
		return 0, NewInvalidError(fmt.Sprintf("file exceeds %d MB", f.maxBytes>>20))
	}
	return qid, nil
}

// ValidateAll checks every upload and aggregates the failures.
func (f *FileReconciler) ValidateAll(files []UploadedFile, questions map[int64]*models.Question) error {
	var errs []*FieldError
	for _, file := range files {
		if file.Filename == "" {
			continue
		}
		if _, err := f.Validate(file, questions); err != nil {
			errs = append(errs, &FieldError{Field: file.Field, Err: err})
		}
	}
	if len(errs) > 0 {
		return &SubmissionError{Fields: errs}
	}
	return nil
}

// HandleUploads stores each file and inserts a valid file row for it. Files
// that fail validation are skipped and leave no row and no blob behind.
func (f *FileReconciler) HandleUploads(ctx context.Context, scope Scope, files []UploadedFile) (int, []*FieldError, error) {
	stored := 0
	var rejected []*FieldError
	for _, file := range files {
		if file.Filename == "" {
			continue
		}
		qid, err := f.Validate(file, scope.Questions)
		if err != nil {
			rejected = append(rejected, &FieldError{Field: file.Field, Err: err})
			continue
		}
		now := f.now()
		original := cleanFilename(file.Filename)
		name := strconv.FormatInt(now.UnixMilli(), 10) + "_" + original
		filePath, err := f.blobs.Save(ctx, name, io.LimitReader(file.Content, f.maxBytes+1))
		if err != nil {
			return stored, rejected, fmt.Errorf("store upload %s: %w", file.Field, err)
		}
		row := &models.Response{
			SurveyID:     scope.SurveyID,
			QuestionID:   qid,
			UserID:       scope.UserID,
			IPAddress:    scope.IP,
			ResponseData: original,
			FilePath:     filePath,
			IsValid:      true,
			CreatedAt:    now,
		}
		if _, err := f.responses.InsertFileResponse(ctx, row); err != nil {
			return stored, rejected, fmt.Errorf("record upload %s: %w", file.Field, err)
		}
		stored++
	}
	return stored, rejected, nil
}

// ReconcileExisting invalidates every file row of the question for this
// respondent whose id is not in keptIDs. Rows and blobs are never removed.
func (f *FileReconciler) ReconcileExisting(ctx context.Context, surveyID, userID, questionID int64, keptIDs []int64) error {
	if userID <= 0 {
		return NewInvalidError("respondent required")
	}
	if _, err := f.responses.InvalidateFiles(ctx, userID, surveyID, questionID, keptIDs); err != nil {
		return fmt.Errorf("invalidate files: %w", err)
	}
	return nil
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
