package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOutOfRange      = errors.New("record: column index out of range")
	ErrUnknownColumn   = errors.New("record: unknown column")
	ErrDuplicateColumn = errors.New("record: duplicate column name")
	ErrUnknownType     = errors.New("record: unknown column type")
)

type ColumnType uint8

const (
	ColBoolean ColumnType = iota
	ColLong
	ColDouble
	ColString
	ColTimestamp
	ColJSON
)

func (t ColumnType) String() string {
	switch t {
	case ColBoolean:
		return "boolean"
	case ColLong:
		return "long"
	case ColDouble:
		return "double"
	case ColString:
		return "string"
	case ColTimestamp:
		return "timestamp"
	case ColJSON:
		return "json"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// FixedSize is the payload width of a non-null value, or -1 for
// length-prefixed types.
func (t ColumnType) FixedSize() int {
	switch t {
	case ColBoolean:
		return 1
	case ColLong, ColDouble:
		return 8
	case ColTimestamp:
		return 12
	default:
		return -1
	}
}

func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boolean", "bool":
		return ColBoolean, nil
	case "long", "int", "int64":
		return ColLong, nil
	case "double", "float", "float64":
		return ColDouble, nil
	case "string", "text":
		return ColString, nil
	case "timestamp":
		return ColTimestamp, nil
	case "json":
		return ColJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

type Column struct {
	Index int
	Name  string
	Type  ColumnType
}

func (c Column) String() string {
	return fmt.Sprintf("%d:%s(%s)", c.Index, c.Name, c.Type)
}

// ColumnSpec describes a column before it is placed in a Schema.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// Schema is an ordered, immutable list of columns.
type Schema struct {
	cols   []Column
	byName map[string]int
}

func NewSchema(specs ...ColumnSpec) (*Schema, error) {
	s := &Schema{
		cols:   make([]Column, 0, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	for i, sp := range specs {
		if _, ok := s.byName[sp.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, sp.Name)
		}
		s.byName[sp.Name] = i
		s.cols = append(s.cols, Column{Index: i, Name: sp.Name, Type: sp.Type})
	}
	return s, nil
}

// MustSchema is NewSchema for static schemas; it panics on duplicate names.
func MustSchema(specs ...ColumnSpec) *Schema {
	s, err := NewSchema(specs...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) ColumnCount() int { return len(s.cols) }

func (s *Schema) ColumnAt(i int) (Column, error) {
	if i < 0 || i >= len(s.cols) {
		return Column{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(s.cols))
	}
	return s.cols[i], nil
}

func (s *Schema) ColumnByName(name string) (Column, error) {
	i, ok := s.byName[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return s.cols[i], nil
}

// Columns returns a copy of the column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.cols))
	copy(out, s.cols)
	return out
}

func (s *Schema) String() string {
	parts := make([]string, len(s.cols))
	for i, c := range s.cols {
		parts[i] = c.Name + " " + c.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
