package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate

	paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validator validates inbound fleet payloads.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator instance
func New() *Validator {
	once.Do(func() {
		validate = validator.New()

		_ = validate.RegisterValidation("param_name", validateParamName)

		// Use JSON tag names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})

	return &Validator{validate: validate}
}

// Struct validates a struct by its validate tags
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return fmt.Errorf("invalid validation error: %w", err)
		}

		var errMsgs []string
		for _, err := range err.(validator.ValidationErrors) {
			errMsgs = append(errMsgs, formatError(err))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errMsgs, "; "))
	}
	return nil
}

// Var validates a single variable against a tag
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// validateParamName accepts identifiers usable as substitution tokens.
func validateParamName(fl validator.FieldLevel) bool {
	return paramNamePattern.MatchString(fl.Field().String())
}

// formatError formats a validation error
func formatError(err validator.FieldError) string {
	field := err.Field()
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, err.Param())
	case "param_name":
		return fmt.Sprintf("%s is not a valid parameter name", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}
