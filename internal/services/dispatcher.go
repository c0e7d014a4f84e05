package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// Scope identifies whose answers a submission writes and which questions it may touch.
type Scope struct {
	SurveyID  int64
	UserID    int64
	IP        string
	Questions map[int64]*models.Question
}

// ApplyResult summarises a dispatch run.
type ApplyResult struct {
	Applied int
	Errors  []*FieldError
}

// Dispatcher turns submitted fields into slot writes.
type Dispatcher struct {
	responses ResponseStore
	files     *FileReconciler
	now       func() time.Time
}

func NewDispatcher(responses ResponseStore, files *FileReconciler) *Dispatcher {
	return &Dispatcher{
		responses: responses,
		files:     files,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply writes fields in submission order. Open answers run after the base
// fields, since selecting an option clears its text, and existing-files
// directives run last. A field that cannot be parsed or addresses no row is
// recorded in the result and the remaining fields are still applied; store
// failures abort the run.
func (d *Dispatcher) Apply(ctx context.Context, scope Scope, fields []FormField) (*ApplyResult, error) {
	res := &ApplyResult{}
	var directives []ExistingFilesDirective
	var directiveKeys []string
	var deferred []keyedRef
	at := d.now()

	apply := func(key string, ref SlotRef) error {
		n, err := d.write(ctx, scope, ref, at)
		if err != nil {
			return fmt.Errorf("apply %s: %w", key, err)
		}
		if n == 0 {
			res.Errors = append(res.Errors, &FieldError{Field: key, Err: NewUnknownSlotError("no answer slot matches " + key)})
			return nil
		}
		res.Applied++
		return nil
	}

	for _, f := range fields {
		ref, err := ParseSlotRef(f, scope.Questions)
		if err != nil {
			res.Errors = append(res.Errors, &FieldError{Field: f.Key, Err: err})
			continue
		}
		if ref == nil {
			continue
		}
		if dir, ok := ref.(ExistingFilesDirective); ok {
			directives = append(directives, dir)
			directiveKeys = append(directiveKeys, f.Key)
			continue
		}
		if _, ok := ref.(OpenAnswerSlot); ok {
			deferred = append(deferred, keyedRef{key: f.Key, ref: ref})
			continue
		}
		if err := apply(f.Key, ref); err != nil {
			return nil, err
		}
	}
	for _, kr := range deferred {
		if err := apply(kr.key, kr.ref); err != nil {
			return nil, err
		}
	}

	for i, dir := range directives {
		if err := d.files.ReconcileExisting(ctx, scope.SurveyID, scope.UserID, dir.QuestionID, dir.KeptIDs); err != nil {
			if _, ok := AsServiceError(err); ok {
				res.Errors = append(res.Errors, &FieldError{Field: directiveKeys[i], Err: err})
				continue
			}
			return nil, err
		}
		res.Applied++
	}
	return res, nil
}

type keyedRef struct {
	key string
	ref SlotRef
}

func (d *Dispatcher) write(ctx context.Context, scope Scope, ref SlotRef, at time.Time) (int64, error) {
	u := SlotUpdate{
		UserID:   scope.UserID,
		SurveyID: scope.SurveyID,
		Valid:    true,
		IP:       scope.IP,
		At:       at,
	}
	switch r := ref.(type) {
	case OptionSlot:
		u.QuestionID, u.OptionID = r.QuestionID, r.OptionID
	case RankingSlot:
		u.QuestionID, u.OptionID = r.QuestionID, r.OptionID
		u.SortOrder = r.Position
	case MatrixCellSlot:
		u.QuestionID, u.RowID, u.ColumnID = r.QuestionID, r.RowID, r.ColumnID
	case FreeTextSlot:
		u.QuestionID = r.QuestionID
		u.Data = r.Text
	case RatingSlot:
		u.QuestionID, u.OptionID = r.QuestionID, r.OptionID
		u.Data = r.Value
	case OpenAnswerSlot:
		u.OptionID = r.OptionID
		u.Data = r.Text
		u.Valid = strings.TrimSpace(r.Text) != ""
		return d.responses.UpdateOpenAnswer(ctx, u)
	default:
		return 0, fmt.Errorf("unsupported slot %T", ref)
	}
	return d.responses.UpdateSlot(ctx, u)
}
