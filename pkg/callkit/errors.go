package callkit

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound сессия с указанным идентификатором не найдена
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists сессия с указанным идентификатором уже зарегистрирована
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidArgument нарушен контракт входных данных
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClosed координатор закрыт
	ErrClosed = errors.New("coordinator closed")
)

// ErrorCategory категория ошибки координатора
type ErrorCategory string

const (
	ErrorCategorySession    ErrorCategory = "SESSION"
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryLifecycle  ErrorCategory = "LIFECYCLE"
	ErrorCategoryPlatform   ErrorCategory = "PLATFORM"
)

// CallError структурированная ошибка операции над звонком
type CallError struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	Category  ErrorCategory `json:"category"`
	SessionID string        `json:"session_id,omitempty"`
	Cause     error         `json:"-"`
}

// Error реализует интерфейс error
func (e *CallError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("[%s:%s] %s (session: %s)", e.Category, e.Code, e.Message, e.SessionID)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *CallError) Unwrap() error {
	return e.Cause
}

func newNotFoundError(id string) error {
	return &CallError{
		Code:      "SESSION_NOT_FOUND",
		Message:   "unknown session",
		Category:  ErrorCategorySession,
		SessionID: id,
		Cause:     ErrSessionNotFound,
	}
}

func newExistsError(id string) error {
	return &CallError{
		Code:      "SESSION_EXISTS",
		Message:   "session already registered",
		Category:  ErrorCategorySession,
		SessionID: id,
		Cause:     ErrSessionExists,
	}
}

func newInvalidError(id, message string) error {
	return &CallError{
		Code:      "INVALID_ARGUMENT",
		Message:   message,
		Category:  ErrorCategoryValidation,
		SessionID: id,
		Cause:     ErrInvalidArgument,
	}
}

func newClosedError() error {
	return &CallError{
		Code:     "CLOSED",
		Message:  "coordinator is closed",
		Category: ErrorCategoryLifecycle,
		Cause:    ErrClosed,
	}
}
