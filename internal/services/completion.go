package services

import (
	"context"
	"fmt"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// CompletionStore keeps the per (user, survey) status record. GetUserSurvey
// returns nil, nil when no record exists.
type CompletionStore interface {
	GetUserSurvey(ctx context.Context, userID, surveyID int64) (*models.UserSurvey, error)
	SetStatus(ctx context.Context, userID, surveyID int64, status models.CompletionStatus, completedAt *time.Time) error
}

type CompletionEvent string

const (
	EventSave   CompletionEvent = "save"
	EventSubmit CompletionEvent = "submit"
	EventRemake CompletionEvent = "remake"
)

// NextStatus is the completion state machine:
//
//	not_started ─save─▶ saved ─submit─▶ completed
//	completed ─remake (admin)─▶ saved
func NextStatus(current models.CompletionStatus, event CompletionEvent, admin bool) (models.CompletionStatus, error) {
	switch event {
	case EventRemake:
		if !admin {
			return current, NewForbiddenError("remake requires an administrator")
		}
		return models.StatusSavedNotSubmitted, nil
	case EventSave, EventSubmit:
		if current == models.StatusCompleted {
			return current, NewAlreadySubmittedError("survey already submitted")
		}
		if event == EventSave {
			return models.StatusSavedNotSubmitted, nil
		}
		return models.StatusCompleted, nil
	}
	return current, NewInvalidError(fmt.Sprintf("unknown completion event %q", event))
}

// CompletionTracker applies NextStatus against a CompletionStore.
type CompletionTracker struct {
	store CompletionStore
	now   func() time.Time
}

func NewCompletionTracker(store CompletionStore) *CompletionTracker {
	return &CompletionTracker{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Status returns the current status; a missing record counts as not started.
func (t *CompletionTracker) Status(ctx context.Context, userID, surveyID int64) (models.CompletionStatus, error) {
	us, err := t.store.GetUserSurvey(ctx, userID, surveyID)
	if err != nil {
		return "", fmt.Errorf("load user survey: %w", err)
	}
	if us == nil || !us.Status.Valid() {
		return models.StatusNotStarted, nil
	}
	return us.Status, nil
}

// Check validates event against the current status without writing.
func (t *CompletionTracker) Check(ctx context.Context, userID, surveyID int64, event CompletionEvent, admin bool) (models.CompletionStatus, error) {
	cur, err := t.Status(ctx, userID, surveyID)
	if err != nil {
		return "", err
	}
	return NextStatus(cur, event, admin)
}

// Transition validates and records event. completed_at is set on submit and
// cleared otherwise.
func (t *CompletionTracker) Transition(ctx context.Context, userID, surveyID int64, event CompletionEvent, admin bool) (models.CompletionStatus, error) {
	next, err := t.Check(ctx, userID, surveyID, event, admin)
	if err != nil {
		return "", err
	}
	var completedAt *time.Time
	if next == models.StatusCompleted {
		now := t.now()
		completedAt = &now
	}
	if err := t.store.SetStatus(ctx, userID, surveyID, next, completedAt); err != nil {
		return "", fmt.Errorf("set status: %w", err)
	}
	return next, nil
}
