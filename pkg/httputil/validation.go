package httputil

import (
	"github.com/go-playground/validator/v10"

	"github.com/docuflow/ocr-service/pkg/errors"
)

// Shared validator instance. Details keys use Go field names, so slice
// elements show up as e.g. "URLs[0]".
var validate = validator.New()

// Validate runs struct tag validation on v and converts failures into a
// field-keyed Validation error.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// validator returns *InvalidValidationError when v is not a struct
		return errors.Internal(err.Error())
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return errors.Validation(details)
}

// message renders a failed tag as the client-facing string. Tags used by
// the request types are covered explicitly; anything else degrades to a
// generic message.
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "url":
		return "must be a valid URL"
	case "min":
		return "must contain at least " + fe.Param() + " items"
	case "max":
		return "must contain at most " + fe.Param() + " items"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "invalid value"
}
