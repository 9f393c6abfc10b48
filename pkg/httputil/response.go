// Package httputil writes the {data, error} JSON envelope returned by every
// storefront endpoint.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// CodeValidation marks a body that decoded but failed field validation.
const CodeValidation = "VALIDATION_ERROR"

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope. RequestID echoes the
// correlation ID so support can find the matching log line.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps data in the envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Data: data})
}

// Problem maps err to a status and an error envelope. Internal details never
// reach the body.
func Problem(r *http.Request, err error) (int, Response) {
	body := &ErrorResponse{RequestID: logger.CorrelationIDFromContext(r.Context())}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body.Code = CodeValidation
		body.Message = "request validation failed"
		body.Fields = valErr.Fields()
		return http.StatusBadRequest, Response{Error: body}
	}

	body.Code, body.Message = apperrors.Public(err)
	return apperrors.HTTPStatus(err), Response{Error: body}
}

// WriteError writes the envelope for err and logs server-side failures with
// the request logger, or fallback when the request carries none.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, resp := Problem(r, err)
	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status),
			slog.String("code", resp.Error.Code),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes and validates the request body. Decoding problems become
// INVALID_INPUT; an oversized body is reported as 413.
func DecodeJSON(r *http.Request, dst any) error {
	err := validator.DecodeAndValidate(r, dst)
	var valErr *validator.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.As(err, &valErr):
		return err
	case errors.Is(err, validator.ErrEmptyBody):
		return apperrors.InvalidInput("request body is required")
	case errors.As(err, &tooLarge):
		e := apperrors.InvalidInput("request body is too large")
		e.Status = http.StatusRequestEntityTooLarge
		return e
	default:
		return apperrors.InvalidInput("request body must be valid JSON")
	}
}
