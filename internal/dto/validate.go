package dto

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validate is the shared validator for every request DTO. Handlers use it
// through bindAndValidate; the bulk sync path validates entries one by one.
var Validate = validator.New()

func init() {
	// decimal.Decimal is validated as a number so that tags like min=0 work
	// instead of panicking with "Bad field type decimal.Decimal".
	Validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// FieldErrors flattens validator errors into field → failed tag.
func FieldErrors(err error) map[string]string {
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields
}
