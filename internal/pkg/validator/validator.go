// Package validator provides the single go-playground/validator/v10
// instance shared by every HTTP handler in the module, plus a field-error
// map helper for turning a validation failure into a response body.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// requeststatus checks against the request/ticket lifecycle's five
	// states without importing the request package (pkg must not depend
	// on domain).
	validate.RegisterValidation("requeststatus", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "open", "approved", "denied", "cancelled", "closed":
			return true
		default:
			return false
		}
	})
}

// New returns the shared validator instance.
func New() *validator.Validate {
	return validate
}

// FieldErrors validates s and returns a map of field name to a readable
// message, or nil if s is valid.
func FieldErrors(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	for _, fe := range err.(validator.ValidationErrors) {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			errs[field] = "This field is required"
		case "min":
			errs[field] = "Value is too short (min: " + fe.Param() + ")"
		case "max":
			errs[field] = "Value is too long (max: " + fe.Param() + ")"
		case "gte":
			errs[field] = "Value must be at least " + fe.Param()
		case "lte":
			errs[field] = "Value must be at most " + fe.Param()
		case "requeststatus":
			errs[field] = "Invalid status. Must be: open, approved, denied, cancelled, or closed"
		default:
			errs[field] = "Invalid value"
		}
	}

	return errs
}
