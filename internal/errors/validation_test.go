package errors

import (
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("question_id", "is required", nil)

	if err.Field != "question_id" {
		t.Errorf("Expected field to be 'question_id', got '%s'", err.Field)
	}

	expected := "validation error on field 'question_id': is required"
	if err.Error() != expected {
		t.Errorf("Expected error message to be '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Errorf("Expected 'validation failed' for empty errors, got '%s'", errs.Error())
	}

	errs = append(errs, *NewValidationError("action", "must be next or previous", "sideways"))
	expected := "validation failed: action must be next or previous"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for single error, got '%s'", expected, errs.Error())
	}

	errs = append(errs, *NewValidationError("quiz_id", "is required", nil))
	expected = "validation failed: 2 field errors"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for multiple errors, got '%s'", expected, errs.Error())
	}
}
