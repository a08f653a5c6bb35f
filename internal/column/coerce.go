package column

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/tuannm99/novapage/internal/record"
)

// wrap attaches column context to a bare ErrTypeMismatch/ErrValueOverflow.
func wrap(col record.Column, v any, err error) error {
	switch {
	case errors.Is(err, ErrValueOverflow):
		return overflow(col, v)
	default:
		return mismatch(col, v)
	}
}

var boolWords = map[string]bool{
	"yes": true, "y": true, "on": true,
	"no": false, "n": false, "off": false,
}

func asBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if b, ok := boolWords[s]; ok {
			return b, nil
		}
		// 1, t, true, 0, f, false
		b, err := cast.ToBoolE(s)
		if err != nil {
			return false, ErrTypeMismatch
		}
		return b, nil
	case float32, float64:
		return false, ErrTypeMismatch
	}
	if n, ok := integer(v); ok {
		switch n {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	}
	return false, ErrTypeMismatch
}

// integer handles the signed and small unsigned kinds that always fit int64.
func integer(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) {
		return 0, ErrTypeMismatch
	}
	r := math.Round(f)
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive
	if r < math.MinInt64 || r >= math.MaxInt64 {
		return 0, ErrValueOverflow
	}
	return int64(r), nil
}

func asInt64(v any) (int64, error) {
	if n, ok := integer(v); ok {
		return n, nil
	}
	switch x := v.(type) {
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, ErrValueOverflow
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, ErrValueOverflow
		}
		return int64(x), nil
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case string:
		s := strings.TrimSpace(x)
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrValueOverflow
		}
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			if errors.Is(ferr, strconv.ErrRange) {
				return 0, ErrValueOverflow
			}
			return 0, ErrTypeMismatch
		}
		return floatToInt64(f)
	case time.Time:
		return x.Unix(), nil
	case json.Number:
		return asInt64(x.String())
	}
	return 0, ErrTypeMismatch
}

func asFloat64(v any) (float64, error) {
	if n, ok := integer(v); ok {
		return float64(n), nil
	}
	switch x := v.(type) {
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, ErrValueOverflow
			}
			return 0, ErrTypeMismatch
		}
		return f, nil
	case time.Time:
		return float64(x.Unix()) + float64(x.Nanosecond())/1e9, nil
	case json.Number:
		return asFloat64(x.String())
	}
	return 0, ErrTypeMismatch
}

func asString(v any, tf TimeFormat) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return tf.Format(x), nil
	case *time.Time:
		return tf.Format(*x), nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Func, reflect.Chan:
		// only Stringers among composite kinds have a defined string form
		if _, ok := v.(interface{ String() string }); !ok {
			return "", ErrTypeMismatch
		}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", ErrTypeMismatch
	}
	return s, nil
}

func asTime(v any, tf TimeFormat) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		return *x, nil
	case string:
		t, err := tf.Parse(strings.TrimSpace(x))
		if err != nil {
			return time.Time{}, ErrTypeMismatch
		}
		return t, nil
	case float32, float64:
		f, _ := asFloat64(x)
		if math.IsNaN(f) {
			return time.Time{}, ErrTypeMismatch
		}
		sec := math.Floor(f)
		if sec < math.MinInt64 || sec >= math.MaxInt64 {
			return time.Time{}, ErrValueOverflow
		}
		nsec := math.Round((f - sec) * 1e9)
		return time.Unix(int64(sec), int64(nsec)).UTC(), nil
	case bool:
		return time.Time{}, ErrTypeMismatch
	}
	n, err := asInt64(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

// checkTree accepts nil, scalars, strings, byte slices and slices/maps of
// those; map keys must be strings.
func checkTree(v reflect.Value, depth int) error {
	if depth > maxTreeDepth {
		return ErrTypeMismatch
	}
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return checkTree(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkTree(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return ErrTypeMismatch
		}
		it := v.MapRange()
		for it.Next() {
			if err := checkTree(it.Value(), depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return ErrTypeMismatch
}

const maxTreeDepth = 64

// asJSONTree parses strings holding JSON text. Anything else, and strings
// that are not a single JSON value, are returned unchanged.
func asJSONTree(v any) any {
	var text []byte
	switch x := v.(type) {
	case string:
		text = []byte(x)
	case json.RawMessage:
		text = x
	default:
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return v
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return v
	}
	return Numbers(tree)
}

// Numbers replaces json.Number values in a decoded tree with int64 when
// exact and float64 otherwise.
func Numbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return string(x)
	case map[string]any:
		for k, e := range x {
			x[k] = Numbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = Numbers(e)
		}
	}
	return v
}
