package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/soaringjerry/surveyhub/internal/middleware"
	"github.com/soaringjerry/surveyhub/internal/services"
	"github.com/soaringjerry/surveyhub/internal/utils"
)

type errorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Detail  string       `json:"detail,omitempty"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnknownSlot:
		return http.StatusUnprocessableEntity
	case services.ErrorAlreadySubmitted, services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError maps service errors onto HTTP statuses with a localized message.
// Anything that is not a service error is logged and reported as a 500.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())

	var subErr *services.SubmissionError
	if errors.As(err, &subErr) {
		body := errorBody{Code: "field_errors", Message: utils.T(locale, "error.fields")}
		for _, fe := range subErr.Fields {
			code := services.ErrorInvalid
			if se, ok := services.AsServiceError(fe.Err); ok {
				code = se.Code
			}
			body.Fields = append(body.Fields, fieldError{Field: fe.Field, Code: string(code), Message: fe.Err.Error()})
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body := errorBody{Code: string(services.ErrorInvalid), Message: utils.T(locale, "error.invalid")}
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fieldError{Field: fe.Field(), Code: fe.Tag(), Message: fe.Error()})
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}

	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), errorBody{
			Code:    string(se.Code),
			Message: utils.T(locale, "error."+string(se.Code)),
			Detail:  se.Message,
		})
		return
	}

	rt.Log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: utils.T(locale, "error.internal")})
}

func badRequest(msg string) error { return services.NewInvalidError(msg) }

func writeFile(w http.ResponseWriter, res *services.ExportResult) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(res.Filename)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}
