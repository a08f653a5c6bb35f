package column

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novapage/internal/pagereader"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

// roundTrip encodes v into a one-column page of type typ and decodes it back.
func roundTrip(t *testing.T, reg *Registry, typ record.ColumnType, v any) (any, error) {
	t.Helper()
	schema := record.MustSchema(record.ColumnSpec{Name: "c", Type: typ})
	col, err := schema.ColumnAt(0)
	require.NoError(t, err)

	buf, err := storage.NewBuffer(storage.HeapAllocator{}, 1)
	require.NoError(t, err)
	defer buf.Release()

	require.NoError(t, buf.BeginRecord())
	if err := reg.SetValue(col, buf, v); err != nil {
		buf.AbandonRecord()
		return nil, err
	}
	require.NoError(t, buf.CommitRecord())

	page, err := buf.Drain()
	require.NoError(t, err)
	defer page.Release()

	recs, err := pagereader.New(schema).ReadAll(page)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0][0], nil
}

func TestSetValue_Coercions(t *testing.T) {
	reg := DefaultRegistry(Options{})
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)

	cases := []struct {
		name string
		typ  record.ColumnType
		in   any
		want any
	}{
		{"bool", record.ColBoolean, true, true},
		{"bool from yes", record.ColBoolean, "Yes", true},
		{"bool from false string", record.ColBoolean, "FALSE", false},
		{"bool from 1", record.ColBoolean, 1, true},
		{"bool from int64 0", record.ColBoolean, int64(0), false},

		{"long", record.ColLong, int64(-7), int64(-7)},
		{"long from int32", record.ColLong, int32(12), int64(12)},
		{"long from uint64", record.ColLong, uint64(99), int64(99)},
		{"long from float rounds", record.ColLong, 2.5, int64(3)},
		{"long from string", record.ColLong, " 42 ", int64(42)},
		{"long from float string", record.ColLong, "1.4", int64(1)},
		{"long from json number", record.ColLong, json.Number("17"), int64(17)},
		{"long from time", record.ColLong, ts, ts.Unix()},

		{"double", record.ColDouble, 3.25, 3.25},
		{"double from int", record.ColDouble, 3, 3.0},
		{"double from string", record.ColDouble, "1e3", 1000.0},
		{"double from float32", record.ColDouble, float32(0.5), 0.5},

		{"string", record.ColString, "hello", "hello"},
		{"string from int", record.ColString, 42, "42"},
		{"string from float", record.ColString, 1.5, "1.5"},
		{"string from bool", record.ColString, true, "true"},
		{"string from bytes", record.ColString, []byte("raw"), "raw"},
		{"string from time", record.ColString, ts, "2024-03-01 12:30:45.123456"},
		{"empty string", record.ColString, "", ""},

		{"timestamp", record.ColTimestamp, ts, ts},
		{"timestamp from pointer", record.ColTimestamp, &ts, ts},
		{"timestamp from epoch", record.ColTimestamp, int64(1700000000), time.Unix(1700000000, 0).UTC()},
		{"timestamp from float epoch", record.ColTimestamp, 1.5, time.Unix(1, 500000000).UTC()},
		{"timestamp from string", record.ColTimestamp, "2024-03-01 12:30:45.123456", ts},
		{"timestamp from rfc3339", record.ColTimestamp, "2024-03-01T12:30:45.123456Z", ts},

		{"json string", record.ColJSON, "leaf", "leaf"},
		{"json text", record.ColJSON, `{"a": [1, 2.5, "x"], "b": null}`,
			map[string]any{"a": []any{int64(1), 2.5, "x"}, "b": nil}},
		{"json text scalar", record.ColJSON, " true ", true},
		{"json text truncated", record.ColJSON, `{"a": 1`, `{"a": 1`},
		{"json text trailing", record.ColJSON, `1 2`, `1 2`},
		{"json bool", record.ColJSON, false, false},
		{"json tree", record.ColJSON,
			map[string]any{"a": []any{"x", true}, "b": map[string]any{"c": "d"}},
			map[string]any{"a": []any{"x", true}, "b": map[string]any{"c": "d"}}},
		{"json float", record.ColJSON, []any{1.5}, []any{1.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := roundTrip(t, reg, tc.typ, tc.in)
			require.NoError(t, err)
			if want, ok := tc.want.(time.Time); ok {
				require.IsType(t, time.Time{}, got)
				assert.True(t, want.Equal(got.(time.Time)), "want %v got %v", want, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSetValue_Nulls(t *testing.T) {
	reg := DefaultRegistry(Options{})
	var nilTime *time.Time

	for _, typ := range []record.ColumnType{
		record.ColBoolean, record.ColLong, record.ColDouble,
		record.ColString, record.ColTimestamp, record.ColJSON,
	} {
		got, err := roundTrip(t, reg, typ, nil)
		require.NoError(t, err, typ.String())
		assert.Nil(t, got)
	}

	got, err := roundTrip(t, reg, record.ColTimestamp, nilTime)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetValue_TypeMismatch(t *testing.T) {
	reg := DefaultRegistry(Options{})

	cases := []struct {
		name string
		typ  record.ColumnType
		in   any
	}{
		{"bool from word", record.ColBoolean, "maybe"},
		{"bool from 2", record.ColBoolean, 2},
		{"bool from float", record.ColBoolean, 1.0},
		{"long from text", record.ColLong, "abc"},
		{"long from bool", record.ColLong, true},
		{"long from NaN", record.ColLong, math.NaN()},
		{"long from map", record.ColLong, map[string]any{}},
		{"double from text", record.ColDouble, "1.2.3"},
		{"double from bool", record.ColDouble, false},
		{"string from map", record.ColString, map[string]any{"a": 1}},
		{"string from slice", record.ColString, []any{1}},
		{"timestamp from bad string", record.ColTimestamp, "yesterday"},
		{"timestamp from bool", record.ColTimestamp, true},
		{"json from chan", record.ColJSON, make(chan int)},
		{"json from int keys", record.ColJSON, map[int]string{1: "a"}},
		{"json from struct", record.ColJSON, struct{ A int }{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := roundTrip(t, reg, tc.typ, tc.in)
			require.ErrorIs(t, err, ErrTypeMismatch)
			assert.Contains(t, err.Error(), `"c"`)
		})
	}
}

func TestSetValue_Overflow(t *testing.T) {
	reg := DefaultRegistry(Options{})

	cases := []struct {
		name string
		typ  record.ColumnType
		in   any
	}{
		{"long from big uint64", record.ColLong, uint64(math.MaxUint64)},
		{"long from big float", record.ColLong, 1e30},
		{"long from inf", record.ColLong, math.Inf(1)},
		{"long from big string", record.ColLong, "99999999999999999999"},
		{"double from huge string", record.ColDouble, "1e400"},
		{"timestamp from huge float", record.ColTimestamp, 1e300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := roundTrip(t, reg, tc.typ, tc.in)
			require.ErrorIs(t, err, ErrValueOverflow)
		})
	}
}

func TestSetValue_UnsupportedType(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Register(record.ColLong, LongEncoder)

	_, err := roundTrip(t, reg, record.ColString, "x")
	require.ErrorIs(t, err, ErrUnsupportedType)

	// null needs no encoder
	got, err := roundTrip(t, reg, record.ColString, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBind_DispatchesPerColumn(t *testing.T) {
	schema := record.MustSchema(
		record.ColumnSpec{Name: "id", Type: record.ColLong},
		record.ColumnSpec{Name: "at", Type: record.ColTimestamp},
		record.ColumnSpec{Name: "tag", Type: record.ColumnType(200)},
	)
	reg := DefaultRegistry(Options{
		ColumnOptions: map[string]ColumnOption{
			"at": {TimestampFormat: "%d/%m/%Y %H:%M", Timezone: "Asia/Tokyo"},
		},
	})

	b, err := reg.Bind(schema)
	require.NoError(t, err)
	require.Equal(t, 3, b.Len())
	assert.Equal(t, "at", b.At(1).Column().Name)

	buf, err := storage.NewBuffer(storage.HeapAllocator{}, 3)
	require.NoError(t, err)
	require.NoError(t, buf.BeginRecord())

	require.NoError(t, b.At(0).Set(buf, 5))
	require.NoError(t, b.At(1).Set(buf, "02/01/2024 09:00"))
	require.ErrorIs(t, b.At(2).Set(buf, "x"), ErrUnsupportedType)
	require.NoError(t, b.At(2).SetNull(buf))
	require.NoError(t, buf.CommitRecord())

	page, err := buf.Drain()
	require.NoError(t, err)
	recs, err := pagereader.New(schema).ReadAll(page)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, int64(5), recs[0][0])
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, tokyo)
	assert.True(t, want.Equal(recs[0][1].(time.Time)))
	assert.Nil(t, recs[0][2])
}

func TestBind_BadTimezone(t *testing.T) {
	schema := record.MustSchema(record.ColumnSpec{Name: "at", Type: record.ColTimestamp})
	reg := DefaultRegistry(Options{DefaultTimezone: "Not/AZone"})

	_, err := reg.Bind(schema)
	require.Error(t, err)
}

func TestRegistry_ResolvesTimeFormatOnce(t *testing.T) {
	reg := DefaultRegistry(Options{DefaultTimezone: "Asia/Tokyo"})

	first, err := reg.timeFormat("at")
	require.NoError(t, err)
	second, err := reg.timeFormat("at")
	require.NoError(t, err)
	assert.Same(t, first.Location, second.Location)

	bad := DefaultRegistry(Options{DefaultTimezone: "Not/AZone"})
	_, err = bad.timeFormat("at")
	require.Error(t, err)
	_, err = bad.timeFormat("at")
	require.Error(t, err)
}

func TestIsNull(t *testing.T) {
	var (
		p *int
		m map[string]any
		s []any
	)
	for _, v := range []any{nil, p, m, s} {
		assert.True(t, IsNull(v), "%#v", v)
	}
	for _, v := range []any{0, "", false, []any{}, map[string]any{}, new(int)} {
		assert.False(t, IsNull(v), "%#v", v)
	}
}

func TestTimeFormatFor_Defaults(t *testing.T) {
	tf, err := Options{}.TimeFormatFor("any")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimestampFormat, tf.Layout)
	assert.Equal(t, time.UTC, tf.Location)
}
