// Package errors defines the structured error type shared by quotagate components.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies an AppError
type ErrorType string

const (
	ErrTypeConnection ErrorType = "connection"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeInternal   ErrorType = "internal"
	ErrTypeTimeout    ErrorType = "timeout"
	ErrTypeRateLimit  ErrorType = "rate_limit"

	// ErrTypeNotConfigured means no quota record exists for the client or its default
	ErrTypeNotConfigured ErrorType = "not_configured"
	// ErrTypePublish is a failed enqueue of a throttle event
	ErrTypePublish ErrorType = "publish_failure"
	// ErrTypeStoreWrite is a failed write of a merged quota record
	ErrTypeStoreWrite ErrorType = "store_write_failure"
	// ErrTypePartialDelete means some messages of a batch could not be removed
	ErrTypePartialDelete ErrorType = "partial_delete_failure"
	// ErrTypeParse is a malformed queue message body
	ErrTypeParse ErrorType = "parse"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, len(keys))
		for i, k := range keys {
			kv[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(kv, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key to the error context and returns e
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode sets the error code and returns e
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func ConnectionError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeConnection, Message: msg, Cause: cause}
}

func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

func TimeoutError(operation string) *AppError {
	return &AppError{Type: ErrTypeTimeout, Message: fmt.Sprintf("timeout during %s", operation)}
}

func RateLimitError(resource string) *AppError {
	return &AppError{Type: ErrTypeRateLimit, Message: fmt.Sprintf("rate limit exceeded for %s", resource)}
}

// NotConfiguredError reports that neither the client nor the default client has a quota for hashKey
func NotConfiguredError(hashKey, clientID string) *AppError {
	return (&AppError{
		Type:    ErrTypeNotConfigured,
		Message: fmt.Sprintf("no quota configured for %s", hashKey),
	}).WithContext("client_id", clientID)
}

func PublishError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypePublish, Message: msg, Cause: cause}
}

func StoreWriteError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeStoreWrite, Message: msg, Cause: cause}
}

// PartialDeleteError reports how many of total deletes failed
func PartialDeleteError(failed, total int) *AppError {
	return (&AppError{
		Type:    ErrTypePartialDelete,
		Message: fmt.Sprintf("%d of %d messages not deleted", failed, total),
	}).WithContext("failed", failed)
}

func ParseError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeParse, Message: msg, Cause: cause}
}

// IsType reports whether err, or any error it wraps, is an AppError of errType
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// GetType returns the type of the first AppError in err's chain,
// ErrTypeInternal for other errors and "" for nil.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeInternal
	}
	return appErr.Type
}
