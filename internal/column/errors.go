package column

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novapage/internal/record"
)

var (
	ErrTypeMismatch    = errors.New("column: value cannot be coerced to column type")
	ErrValueOverflow   = errors.New("column: value out of range for column type")
	ErrUnsupportedType = errors.New("column: no encoder registered for column type")
)

func mismatch(col record.Column, v any) error {
	return fmt.Errorf("%w: column %q (%s) got %T", ErrTypeMismatch, col.Name, col.Type, v)
}

func overflow(col record.Column, v any) error {
	return fmt.Errorf("%w: column %q (%s) got %v", ErrValueOverflow, col.Name, col.Type, v)
}
