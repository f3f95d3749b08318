// Package errors holds the planner's client-facing errors. REST handlers
// render an APIError as {"error": {...}} with its Status; the tool gateway
// folds it into a JSON-RPC internal error.
package errors

import (
	stderrors "errors"
	"net/http"
)

// Codes shared by more than one planner surface.
const (
	CodeInternal        = "internal_error"
	CodeInvalidDate     = "invalid_date"
	CodeInvalidMarkdown = "invalid_markdown"
	CodePlannerNotFound = "planner_not_found"
	CodeTaskNotFound    = "task_not_found"
	CodeAPIKeyNotFound  = "api_key_not_found"
)

type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// HasCode reports whether err wraps an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return stderrors.As(err, &apiErr) && apiErr != nil && apiErr.Code == code
}

func New(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

func withDetails(status int, code, message string, details interface{}) *APIError {
	err := New(status, code, message)
	err.Details = details
	return err
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, CodeInternal, message)
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(message string) *APIError {
	if message == "" {
		message = "unauthorized"
	}
	return New(http.StatusUnauthorized, "unauthorized", message)
}

// Forbidden is what an API key gets when its permissions lack the action.
func Forbidden(message string) *APIError {
	if message == "" {
		message = "forbidden"
	}
	return New(http.StatusForbidden, "forbidden", message)
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string, details interface{}) *APIError {
	return withDetails(http.StatusConflict, code, message, details)
}

// Unprocessable rejects well-formed input the planner cannot apply, such
// as markdown with line errors listed in details.
func Unprocessable(code, message string, details interface{}) *APIError {
	return withDetails(http.StatusUnprocessableEntity, code, message, details)
}
