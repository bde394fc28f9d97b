package utils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/edupath/attempt-engine/internal/errors"
)

// Validator wraps go-playground struct validation with the engine's
// custom tags and json field naming.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the shared validator instance.
func NewValidator() *Validator {
	v := validator.New()
	RegisterCustomValidators(v)
	return &Validator{validate: v}
}

// Validate checks struct tags and converts failures into the shared
// ValidationErrors type.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if ve := apperrors.ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

// Custom validation functions

// ValidateAnswerAction accepts the capture actions the answer editors
// understand.
func ValidateAnswerAction(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "select", "toggle", "blank", "match_left", "match_right", "unmatch", "move_up", "move_down":
		return true
	}
	return false
}

// ValidateNavDirection accepts the two navigation directions.
func ValidateNavDirection(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "next", "previous":
		return true
	}
	return false
}

// RegisterCustomValidators registers all custom validators.
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("answer_action", ValidateAnswerAction)
	validate.RegisterValidation("nav_direction", ValidateNavDirection)

	// Report json field names in error messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
