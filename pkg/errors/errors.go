// Package errors defines the storefront error kinds and their HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInternal             = errors.New("internal error")
	ErrConflict             = errors.New("conflict")
	ErrServiceUnavail       = errors.New("service unavailable")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrOutOfStock           = errors.New("out of stock")
	ErrConfirmationRequired = errors.New("confirmation required")
)

// Error codes shared with the storefront UI, which switches on them to pick
// an affordance such as a "resend verification email" link.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
	CodeConflict             = "CONFLICT"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeOutOfStock           = "OUT_OF_STOCK"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

type kind struct {
	sentinel error
	code     string
	status   int
	message  string
}

// kinds is ordered; the first sentinel matched by errors.Is wins.
var kinds = []kind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound, "resource not found"},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest, "invalid input"},
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized, "invalid email or password"},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized, "authentication required"},
	{ErrEmailNotVerified, CodeEmailNotVerified, http.StatusForbidden, "email address has not been verified"},
	{ErrForbidden, CodeForbidden, http.StatusForbidden, "you are not allowed to do this"},
	{ErrOutOfStock, CodeOutOfStock, http.StatusConflict, "not enough stock"},
	{ErrConflict, CodeConflict, http.StatusConflict, "conflict"},
	{ErrConfirmationRequired, CodeConfirmationRequired, http.StatusPreconditionRequired, "confirmation required"},
	{ErrServiceUnavail, CodeServiceUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
}

var internalKind = kind{ErrInternal, CodeInternal, http.StatusInternalServerError, "an internal error occurred"}

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError is an error with a UI code, a user-facing message and an HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError of the kind identified by sentinel. An empty
// message falls back to the kind's default.
func New(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	if message == "" {
		message = k.message
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return New(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError { return New(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return New(ErrUnauthorized, message) }

func Forbidden(message string) *AppError { return New(ErrForbidden, message) }

func Conflict(message string) *AppError { return New(ErrConflict, message) }

// EmailNotVerified rejects a login against an unverified account.
func EmailNotVerified(message string) *AppError { return New(ErrEmailNotVerified, message) }

// InvalidCredentials rejects a login.
func InvalidCredentials(message string) *AppError { return New(ErrInvalidCredentials, message) }

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	e := New(ErrInternal, "")
	e.Err = err
	return e
}

// ServiceUnavailable reports a failure to reach the backend. err may be nil.
func ServiceUnavailable(message string, err error) *AppError {
	e := New(ErrServiceUnavail, message)
	if err != nil {
		e.Err = fmt.Errorf("%w: %w", ErrServiceUnavail, err)
	}
	return e
}

// OutOfStock reports a cart quantity above the available stock.
func OutOfStock(productID string, stock int) *AppError {
	return New(ErrOutOfStock, fmt.Sprintf("product %s has only %d item(s) in stock", productID, stock))
}

// ConfirmationRequired rejects a destructive action sent without confirmation.
func ConfirmationRequired(action string) *AppError {
	return New(ErrConfirmationRequired, action+" must be confirmed")
}

// HTTPStatus returns the status for err. AppErrors keep their own status.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return kindOf(err).status
}

// Public returns the code and user-facing message for err. Errors that are
// not AppErrors get their kind's default message, never err.Error().
func Public(err error) (code, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	k := kindOf(err)
	return k.code, k.message
}

// IsUnauthorized reports whether err represents an invalid or missing session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
