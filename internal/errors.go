package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden     ErrorType = "FORBIDDEN"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeInternal      ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidDescription ErrorCode = "INVALID_DESCRIPTION"
	ErrCodeInvalidCurrency    ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidDate        ErrorCode = "INVALID_DATE"
	ErrCodeInvalidRule        ErrorCode = "INVALID_RULE"
	ErrCodeInvalidFlow        ErrorCode = "INVALID_FLOW"

	ErrCodeExpenseNotFound    ErrorCode = "EXPENSE_NOT_FOUND"
	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeFlowNotFound       ErrorCode = "FLOW_NOT_FOUND"
	ErrCodeRuleNotFound       ErrorCode = "RULE_NOT_FOUND"
	ErrCodeDepartmentNotFound ErrorCode = "DEPARTMENT_NOT_FOUND"
	ErrCodeCompanyNotFound    ErrorCode = "COMPANY_NOT_FOUND"
	ErrCodeUnauthorizedAccess ErrorCode = "UNAUTHORIZED_ACCESS"
	ErrCodeNotAssignedToActor ErrorCode = "NOT_ASSIGNED_TO_ACTOR"
	ErrCodeMissingActor       ErrorCode = "MISSING_ACTOR"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"

	// approval engine
	ErrCodeNoMatchingFlow    ErrorCode = "NO_MATCHING_FLOW"
	ErrCodeAmbiguousFlow     ErrorCode = "AMBIGUOUS_FLOW"
	ErrCodeNoManagerAssigned ErrorCode = "NO_MANAGER_ASSIGNED"
	ErrCodeEmptyFlow         ErrorCode = "EMPTY_FLOW"
	ErrCodeInvalidFlowSteps  ErrorCode = "INVALID_FLOW_STEPS"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
	ErrCodeUnknownApproval   ErrorCode = "UNKNOWN_APPROVAL"
	ErrCodeFlowExhausted     ErrorCode = "FLOW_EXHAUSTED"
	ErrCodeExpenseBusy       ErrorCode = "EXPENSE_BUSY"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that copies produced by WithCause/WithDetails still
// compare equal to the sentinel they were derived from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e carrying cause. Sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessagef returns a copy of e with a more specific message.
func (e *AppError) WithMessagef(format string, args ...interface{}) *AppError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewConfigurationError reports a flow/rule authoring defect. The request was
// well formed but the catalog cannot serve it.
func NewConfigurationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

var (
	ErrExpenseNotFound    = NewNotFoundError("expense not found", ErrCodeExpenseNotFound)
	ErrUserNotFound       = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrFlowNotFound       = NewNotFoundError("approval flow not found", ErrCodeFlowNotFound)
	ErrRuleNotFound       = NewNotFoundError("approval rule not found", ErrCodeRuleNotFound)
	ErrDepartmentNotFound = NewNotFoundError("department not found", ErrCodeDepartmentNotFound)
	ErrCompanyNotFound    = NewNotFoundError("company not found", ErrCodeCompanyNotFound)
	ErrUnauthorizedAccess = NewForbiddenError("unauthorized access", ErrCodeUnauthorizedAccess)
	ErrNotAssignedToActor = NewForbiddenError("approval is assigned to another approver", ErrCodeNotAssignedToActor)
	ErrMissingActor       = NewUnauthorizedError("acting user is required", ErrCodeMissingActor)
	ErrInvalidToken       = NewUnauthorizedError("invalid bearer token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("bearer token has expired", ErrCodeTokenExpired)

	ErrNoMatchingFlow    = NewConfigurationError("no approval flow matches the expense", ErrCodeNoMatchingFlow)
	ErrAmbiguousFlow     = NewConfigurationError("more than one approval flow matches the expense", ErrCodeAmbiguousFlow)
	ErrNoManagerAssigned = NewConfigurationError("employee has no manager for a manager step", ErrCodeNoManagerAssigned)
	ErrEmptyFlow         = NewConfigurationError("approval flow has no steps", ErrCodeEmptyFlow)
	ErrInvalidFlowSteps  = NewConfigurationError("approval flow steps are not contiguous from 1", ErrCodeInvalidFlowSteps)
	ErrFlowExhausted     = NewConfigurationError("approval flow ended without a verdict", ErrCodeFlowExhausted)
	ErrInvalidState      = NewConflictError("operation not allowed in current state", ErrCodeInvalidState)
	ErrUnknownApproval   = NewNotFoundError("approval does not belong to expense", ErrCodeUnknownApproval)
	ErrExpenseBusy       = NewConflictError("expense is being modified, retry later", ErrCodeExpenseBusy)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
