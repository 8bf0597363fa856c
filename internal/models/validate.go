package models

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMalformedRecord   = errors.New("malformed record")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
			return v.Interface().(decimal.Decimal).InexactFloat64()
		}, decimal.Decimal{})
		validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
			nd := v.Interface().(decimal.NullDecimal)
			if !nd.Valid {
				return nil
			}
			return nd.Decimal.InexactFloat64()
		}, decimal.NullDecimal{})
	})
	return validate
}

// Validate checks a record decoded from a remote or persisted source against
// its struct tags. Shape mismatches are reported as ErrMalformedRecord.
func Validate(v any) error {
	if err := validatorInstance().Struct(v); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrMalformedRecord, v, err)
	}
	return nil
}
