package shared

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// FormErrors maps a form field to the message shown next to it.
type FormErrors map[string]string

// ValidationErrors converts the result of validator.Struct into FormErrors.
// Errors that did not come from the validator are reported under "general".
func ValidationErrors(err error) FormErrors {
	out := FormErrors{}
	if err == nil {
		return out
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range fieldErrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "eqfield":
		return "Does not match"
	case "gt", "gte":
		return fmt.Sprintf("Must be at least %s", fe.Param())
	default:
		return fe.Error()
	}
}
