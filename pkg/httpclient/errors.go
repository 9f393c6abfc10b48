package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// genericFailureMessage is shown when the backend returns no usable message.
const genericFailureMessage = "the request could not be completed, please try again"

// BackendErrorBody is the error body returned by the storefront REST backend:
// {"error": "message", "code": "OPTIONAL_CODE"}. Some endpoints nest the pair as
// {"error": {"code": "...", "message": "..."}}; both shapes are accepted.
type BackendErrorBody struct {
	Message string
	Code    string
}

// UnmarshalJSON accepts both the flat and the nested error shape.
func (b *BackendErrorBody) UnmarshalJSON(data []byte) error {
	var raw struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Code = raw.Code
	b.Message = raw.Message

	if len(raw.Error) == 0 {
		return nil
	}
	var flat string
	if err := json.Unmarshal(raw.Error, &flat); err == nil {
		b.Message = flat
		return nil
	}
	var nested struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw.Error, &nested); err != nil {
		return err
	}
	if nested.Message != "" {
		b.Message = nested.Message
	}
	if nested.Code != "" {
		b.Code = nested.Code
	}
	return nil
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. A structured message is surfaced verbatim; otherwise a
// generic fallback is used. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var body BackendErrorBody
	if json.Unmarshal(bodyBytes, &body) != nil {
		body = BackendErrorBody{}
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = genericFailureMessage
	}

	return mapBackendError(resp.StatusCode, body.Code, message, serviceName)
}

// mapBackendError translates a status code and optional error code into an AppError.
// Explicit codes win over the status mapping.
func mapBackendError(status int, code, message, serviceName string) error {
	switch strings.ToUpper(code) {
	case apperrors.CodeEmailNotVerified:
		return apperrors.EmailNotVerified(message)
	case apperrors.CodeInvalidCredentials:
		return apperrors.InvalidCredentials(message)
	case apperrors.CodeOutOfStock:
		return apperrors.New(apperrors.ErrOutOfStock, message)
	}

	switch {
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(message)
	case status == http.StatusServiceUnavailable, status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return apperrors.ServiceUnavailable(message, fmt.Errorf("%s returned status %d", serviceName, status))
	case status >= 500:
		return apperrors.Internal(fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message))
	default:
		if code == "" {
			code = "BACKEND_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: message, Status: status}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
