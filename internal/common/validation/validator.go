// Package validation accumulates configuration and input validation errors.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validator accumulates validation errors
type Validator struct {
	errors []error
	prefix string
}

func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithPrefix creates a validator whose messages start with prefix
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

// RequireString validates that a string is not blank
func (v *Validator) RequireString(value, name string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.addError("%s is required", name)
	}
	return v
}

func (v *Validator) RequirePositive(value int, name string) *Validator {
	if value <= 0 {
		v.addError("%s must be positive", name)
	}
	return v
}

func (v *Validator) RequirePositiveFloat(value float64, name string) *Validator {
	if !(value > 0) {
		v.addError("%s must be positive", name)
	}
	return v
}

func (v *Validator) RequirePositiveDuration(value time.Duration, name string) *Validator {
	if value <= 0 {
		v.addError("%s must be a positive duration", name)
	}
	return v
}

func (v *Validator) RequireRange(value, min, max int, name string) *Validator {
	if value < min || value > max {
		v.addError("%s must be between %d and %d", name, min, max)
	}
	return v
}

// RequireURL validates that value is an absolute URL
func (v *Validator) RequireURL(value, name string) *Validator {
	if value == "" {
		v.addError("%s is required", name)
		return v
	}
	u, err := url.Parse(value)
	if err != nil {
		v.addError("%s must be a valid URL: %v", name, err)
		return v
	}
	if u.Scheme == "" || u.Host == "" {
		v.addError("%s must be a complete URL with scheme and host", name)
	}
	return v
}

// RequireOneOf validates that value is one of allowed
func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.addError("%s must be one of: %s", name, strings.Join(allowed, ", "))
	return v
}

// ValidateIf runs fn when condition holds and records its error
func (v *Validator) ValidateIf(condition bool, fn func() error) *Validator {
	if !condition {
		return v
	}
	if err := fn(); err != nil {
		v.errors = append(v.errors, err)
	}
	return v
}

// Add records err when it is non-nil
func (v *Validator) Add(err error) *Validator {
	if err != nil {
		v.errors = append(v.errors, err)
	}
	return v
}

func (v *Validator) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = v.prefix + ": " + msg
	}
	v.errors = append(v.errors, fmt.Errorf("%s", msg))
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns nil, the single error, or all errors joined
func (v *Validator) Error() error {
	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return v.errors[0]
	}
	parts := make([]string, len(v.errors))
	for i, err := range v.errors {
		parts[i] = err.Error()
	}
	return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
}
