package record

import (
	"errors"
	"fmt"
)

var ErrSchemaMismatch = errors.New("record: schema/values mismatch")

// Record holds one value per schema column; nil is SQL-style null.
type Record []any

// CheckShape reports ErrSchemaMismatch when r does not have one value per column.
func (r Record) CheckShape(s *Schema) error {
	if len(r) != s.ColumnCount() {
		return fmt.Errorf("%w: got %d values, schema has %d columns", ErrSchemaMismatch, len(r), s.ColumnCount())
	}
	return nil
}
