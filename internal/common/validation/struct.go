package validation

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"quotagate/internal/common/errors"
)

var (
	structValidator *validator.Validate
	structOnce      sync.Once
)

func getStructValidator() *validator.Validate {
	structOnce.Do(func() {
		v := validator.New()

		// report fields by their environment variable when they have one
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if name := fld.Tag.Get("env"); name != "" && name != "-" {
				return name
			}
			return fld.Name
		})

		_ = v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
			_, err := cron.ParseStandard(fl.Field().String())
			return err == nil
		})

		structValidator = v
	})
	return structValidator
}

// ValidateStruct checks s against its `validate` tags and returns a
// validation AppError listing every failing field.
func ValidateStruct(s interface{}) error {
	err := getStructValidator().Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ValidationError(err.Error())
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.ValidationError(strings.Join(msgs, "; "))
}

func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Sprintf("%s is required", err.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	case "ip":
		return fmt.Sprintf("%s must be a valid IP address", err.Field())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", err.Field())
	case "cron_expression":
		return fmt.Sprintf("%s must be a valid cron expression", err.Field())
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}
