package services

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalid          ErrorCode = "invalid"
	ErrorUnknownSlot      ErrorCode = "unknown_slot"
	ErrorAlreadySubmitted ErrorCode = "already_submitted"
	ErrorForbidden        ErrorCode = "forbidden"
	ErrorNotFound         ErrorCode = "not_found"
	ErrorConflict         ErrorCode = "conflict"
	ErrorUnauthorized     ErrorCode = "unauthorized"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewUnknownSlotError(msg string) error {
	return &ServiceError{Code: ErrorUnknownSlot, Message: msg}
}

func NewAlreadySubmittedError(msg string) error {
	return &ServiceError{Code: ErrorAlreadySubmitted, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err is, or wraps, a ServiceError carrying code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

// ErrDuplicateSlot is returned by response stores when a slot insert collides
// with an existing (user, survey, question, option, row, column) row.
var ErrDuplicateSlot = errors.New("duplicate response slot")

// FieldError ties a failure to the submitted form field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

// SubmissionError aggregates the per-field failures of one submission. Fields
// that did not fail were still applied.
type SubmissionError struct {
	Fields []*FieldError
}

func (e *SubmissionError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("%d field(s) rejected: %s", len(e.Fields), strings.Join(parts, "; "))
}

func (e *SubmissionError) Unwrap() []error {
	out := make([]error, 0, len(e.Fields))
	for _, fe := range e.Fields {
		out = append(out, fe)
	}
	return out
}
