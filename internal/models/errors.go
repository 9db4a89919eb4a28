package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to API clients.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUsernameTaken   = "USERNAME_TAKEN"
	CodeAccountExists   = "ACCOUNT_EXISTS"
	CodeStorage         = "STORAGE_ERROR"
	CodeWrite           = "WRITE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUnavailable     = "UNAVAILABLE"
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

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthenticatedError() *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: "Not authenticated",
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewUsernameTakenError(username string) *AppError {
	return &AppError{
		Code:    CodeUsernameTaken,
		Message: "Username is already taken.",
		Err:     fmt.Errorf("username %q is held by another profile", username),
	}
}

func NewAccountExistsError() *AppError {
	return &AppError{
		Code:    CodeAccountExists,
		Message: "An account with this email already exists",
	}
}

// NewStorageError wraps a blob store failure.
func NewStorageError(err error) *AppError {
	return &AppError{
		Code:    CodeStorage,
		Message: "Failed to store profile image",
		Err:     err,
	}
}

// NewWriteError wraps a failed document or attribute write. what names the write.
func NewWriteError(what string, err error) *AppError {
	return &AppError{
		Code:    CodeWrite,
		Message: fmt.Sprintf("Failed to update %s", what),
		Err:     err,
	}
}

// NewRateLimitedError reports that action was attempted too often.
func NewRateLimitedError(action string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: fmt.Sprintf("Too many %s requests, try again later", strings.ReplaceAll(action, "_", " ")),
	}
}

func NewUnavailableError(message string) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// ErrorCode returns the code of the first AppError in err's chain, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Internal causes stay in the logs.
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
