package column

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

// Registry maps column types to encoders.
type Registry struct {
	encoders map[record.ColumnType]Encoder
	opts     Options
	times    sync.Map // column name -> TimeFormat
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		encoders: make(map[record.ColumnType]Encoder),
		opts:     opts,
	}
}

// DefaultRegistry has an encoder for every built-in column type.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry(opts)
	r.Register(record.ColBoolean, BooleanEncoder)
	r.Register(record.ColLong, LongEncoder)
	r.Register(record.ColDouble, DoubleEncoder)
	r.Register(record.ColString, StringEncoder)
	r.Register(record.ColTimestamp, TimestampEncoder)
	r.Register(record.ColJSON, JSONEncoder)
	return r
}

func (r *Registry) Register(t record.ColumnType, e Encoder) {
	r.encoders[t] = e
}

func (r *Registry) Options() Options { return r.opts }

// SetValue encodes v into the column slot of the record staged in buf.
// A nil value (or nil pointer) is written as null.
func (r *Registry) SetValue(col record.Column, buf *storage.Buffer, v any) error {
	if IsNull(v) {
		return r.SetNull(col, buf)
	}
	enc, ok := r.encoders[col.Type]
	if !ok {
		return fmt.Errorf("%w: %s for column %q", ErrUnsupportedType, col.Type, col.Name)
	}
	tf, err := r.timeFormat(col.Name)
	if err != nil {
		return err
	}
	return enc.Encode(Target{Column: col, Time: tf}, buf, v)
}

// timeFormat resolves the column's TimeFormat once. Failures are not cached.
func (r *Registry) timeFormat(name string) (TimeFormat, error) {
	if tf, ok := r.times.Load(name); ok {
		return tf.(TimeFormat), nil
	}
	tf, err := r.opts.TimeFormatFor(name)
	if err != nil {
		return TimeFormat{}, err
	}
	actual, _ := r.times.LoadOrStore(name, tf)
	return actual.(TimeFormat), nil
}

// SetNull marks the column null. Null is a flag in the record's null map,
// so it does not depend on an encoder being registered.
func (r *Registry) SetNull(col record.Column, buf *storage.Buffer) error {
	return buf.PutNull(col.Index)
}

// Bind resolves one Setter per schema column so that per-value dispatch is
// a slice index.
func (r *Registry) Bind(s *record.Schema) (*Binding, error) {
	cols := s.Columns()
	b := &Binding{setters: make([]Setter, len(cols))}
	for i, c := range cols {
		tf, err := r.timeFormat(c.Name)
		if err != nil {
			return nil, err
		}
		b.setters[i] = Setter{
			target: Target{Column: c, Time: tf},
			enc:    r.encoders[c.Type],
		}
	}
	return b, nil
}

// Binding holds the resolved setters of a schema, in schema order.
type Binding struct {
	setters []Setter
}

func (b *Binding) Len() int { return len(b.setters) }

// At returns the setter of column i; i must be in range.
func (b *Binding) At(i int) *Setter { return &b.setters[i] }

// Setter writes values of one column.
type Setter struct {
	target Target
	enc    Encoder
}

func (s *Setter) Column() record.Column { return s.target.Column }

func (s *Setter) Set(buf *storage.Buffer, v any) error {
	if IsNull(v) {
		return s.SetNull(buf)
	}
	if s.enc == nil {
		return fmt.Errorf("%w: %s for column %q", ErrUnsupportedType, s.target.Column.Type, s.target.Column.Name)
	}
	return s.enc.Encode(s.target, buf, v)
}

func (s *Setter) SetNull(buf *storage.Buffer) error {
	return buf.PutNull(s.target.Column.Index)
}

// IsNull reports whether v is nil or holds a nil pointer, map or slice.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
