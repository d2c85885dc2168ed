package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API clients.
const (
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeAlreadyConnected = "ALREADY_CONNECTED"
	CodeInvitePending    = "INVITE_PENDING"
	CodeInvalidTarget    = "INVALID_TARGET"
	CodeNotAuthorized    = "NOT_AUTHORIZED"
	CodeInvalidState     = "INVALID_STATE"
	CodeTransportError   = "TRANSPORT_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against the sentinels below
// regardless of message or wrapped cause.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrUserNotFound     = &AppError{Code: CodeUserNotFound, Message: "User not found"}
	ErrAlreadyConnected = &AppError{Code: CodeAlreadyConnected, Message: "Already connected"}
	ErrInvitePending    = &AppError{Code: CodeInvitePending, Message: "Invitation pending"}
	ErrInvalidTarget    = &AppError{Code: CodeInvalidTarget, Message: "Cannot invite yourself"}
	ErrNotAuthorized    = &AppError{Code: CodeNotAuthorized, Message: "Not authorized"}
	ErrInvalidState     = &AppError{Code: CodeInvalidState, Message: "Invalid state"}
	ErrTransport        = &AppError{Code: CodeTransportError, Message: "Upstream unavailable"}
	ErrNotFound         = &AppError{Code: CodeNotFound, Message: "Not found"}
	ErrValidation       = &AppError{Code: CodeValidation, Message: "Validation failed"}
	ErrUnauthorized     = &AppError{Code: CodeUnauthorized, Message: "Unauthorized"}
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewUserNotFoundError(email string) *AppError {
	return &AppError{
		Code:    CodeUserNotFound,
		Message: fmt.Sprintf("No user registered with email %s", email),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewNotAuthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeNotAuthorized,
		Message: message,
	}
}

func NewInvalidStateError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: message,
	}
}

// NewTransportError wraps a failure talking to the database, cache or broker.
func NewTransportError(op string, err error) *AppError {
	return &AppError{
		Code:    CodeTransportError,
		Message: op + " failed",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeUserNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyConnected, CodeInvitePending, CodeInvalidState:
		return http.StatusConflict
	case CodeInvalidTarget, CodeValidation:
		return http.StatusBadRequest
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTransportError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response. A zero status
// derives it from the error.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	if status == 0 {
		status = HTTPStatus(err)
	}

	var response ErrorResponse
	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Internal causes stay in the logs.
		if appErr.Err != nil && appErr.Code != CodeInternal && appErr.Code != CodeTransportError {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: "Internal server error",
			Code:  CodeInternal,
		}
	}

	return c.Status(status).JSON(response)
}
