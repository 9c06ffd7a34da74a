package validation

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var entryValidator = newEntryValidator()

func newEntryValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the invariants every incoming entry must satisfy before
// it can enter the store: a positive id and a non-negative amount.
func (e Entry) Validate() error {
	if err := entryValidator.Struct(e); err != nil {
		return NewDomainError(CodeInvalidInput, fmt.Sprintf("invalid entry %s: %v", e.ID, err))
	}
	return nil
}
