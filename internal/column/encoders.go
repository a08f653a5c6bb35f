package column

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

// Target is the column an encoder writes to, with its resolved options.
type Target struct {
	Column record.Column
	Time   TimeFormat
}

// Encoder serializes a non-null value for one column type into the
// record staged in buf.
type Encoder interface {
	Encode(t Target, buf *storage.Buffer, v any) error
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(t Target, buf *storage.Buffer, v any) error

func (f EncoderFunc) Encode(t Target, buf *storage.Buffer, v any) error { return f(t, buf, v) }

var (
	BooleanEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		b, err := asBool(v)
		if err != nil {
			return wrap(t.Column, v, err)
		}
		return buf.PutBool(t.Column.Index, b)
	})

	LongEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		n, err := asInt64(v)
		if err != nil {
			return wrap(t.Column, v, err)
		}
		return buf.PutInt64(t.Column.Index, n)
	})

	DoubleEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		f, err := asFloat64(v)
		if err != nil {
			return wrap(t.Column, v, err)
		}
		return buf.PutFloat64(t.Column.Index, f)
	})

	StringEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		s, err := asString(v, t.Time)
		if err != nil {
			return wrap(t.Column, v, err)
		}
		return buf.PutBytes(t.Column.Index, []byte(s))
	})

	TimestampEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		ts, err := asTime(v, t.Time)
		if err != nil {
			return wrap(t.Column, v, err)
		}
		return buf.PutTime(t.Column.Index, ts)
	})

	// JSONEncoder stores the value tree as msgpack. Strings holding JSON
	// text are stored as the parsed tree.
	JSONEncoder = EncoderFunc(func(t Target, buf *storage.Buffer, v any) error {
		v = asJSONTree(v)
		if err := checkTree(reflect.ValueOf(v), 0); err != nil {
			return wrap(t.Column, v, err)
		}
		b, err := msgpack.Marshal(v)
		if err != nil {
			return mismatch(t.Column, v)
		}
		return buf.PutBytes(t.Column.Index, b)
	})
)
