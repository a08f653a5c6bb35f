package sink

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novapage/internal/bufferpool"
	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/pagereader"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

var testSchema = record.MustSchema(
	record.ColumnSpec{Name: "id", Type: record.ColLong},
	record.ColumnSpec{Name: "name", Type: record.ColString},
	record.ColumnSpec{Name: "at", Type: record.ColTimestamp},
	record.ColumnSpec{Name: "doc", Type: record.ColJSON},
)

// makePage encodes rows through the default registry.
func makePage(t *testing.T, alloc storage.Allocator, seq int, rows ...record.Record) *storage.Page {
	t.Helper()
	b, err := column.DefaultRegistry(column.Options{}).Bind(testSchema)
	require.NoError(t, err)

	buf, err := storage.NewBuffer(alloc, testSchema.ColumnCount())
	require.NoError(t, err)
	t.Cleanup(buf.Release)

	for i := 0; i <= seq; i++ {
		for _, row := range rows {
			require.NoError(t, buf.BeginRecord())
			for c, v := range row {
				require.NoError(t, b.At(c).Set(buf, v))
			}
			require.NoError(t, buf.CommitRecord())
		}
		p, err := buf.Drain()
		require.NoError(t, err)
		if i == seq {
			return p
		}
		p.Release()
	}
	return nil
}

var at = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestMemory_CopiesAndReleases(t *testing.T) {
	pool := bufferpool.NewPool(storage.PageSize, 4)
	m := NewMemory()

	p := makePage(t, pool, 0, record.Record{int64(1), "a", at, nil})
	require.NoError(t, m.Accept(p))
	// the buffer still holds its working region
	assert.Equal(t, 1, pool.InUse())

	require.NoError(t, m.Complete())
	assert.Equal(t, 1, m.Completed())
	require.Len(t, m.Pages(), 1)
	assert.Equal(t, 1, m.RecordCount())

	recs, err := pagereader.New(testSchema).ReadAll(m.Pages()[0])
	require.NoError(t, err)
	assert.Equal(t, record.Record{int64(1), "a", at, nil}, recs[0])
}

func TestCSV_WritesLines(t *testing.T) {
	var out bytes.Buffer
	c, err := NewCSV(&out, testSchema, column.Options{}, true)
	require.NoError(t, err)

	p := makePage(t, storage.HeapAllocator{}, 0,
		record.Record{int64(1), "a,b", at, map[string]any{"k": "v"}},
		record.Record{nil, nil, nil, nil},
	)
	require.NoError(t, c.Accept(p))
	p2 := makePage(t, storage.HeapAllocator{}, 1, record.Record{int64(2), "c", nil, []any{true}})
	require.NoError(t, c.Accept(p2))
	require.NoError(t, c.Complete())

	want := "id,name,at,doc\n" +
		`1,"a,b",2024-05-06 07:08:09.000000,"{""k"":""v""}"` + "\n" +
		",,,\n" +
		"2,c,,[true]\n"
	assert.Equal(t, want, out.String())
}

func TestCSV_BadTimezone(t *testing.T) {
	_, err := NewCSV(&bytes.Buffer{}, testSchema, column.Options{DefaultTimezone: "Mars/Olympus"}, false)
	require.Error(t, err)
}

func TestPebble_SpoolAndRead(t *testing.T) {
	s, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rows := []record.Record{
		{int64(1), "a", at, map[string]any{"n": "x"}},
		{int64(2), nil, nil, nil},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Accept(makePage(t, storage.HeapAllocator{}, i, rows...)))
	}

	pages, complete, err := s.ReadStream(s.Stream())
	require.NoError(t, err)
	assert.False(t, complete)
	require.Len(t, pages, 3)

	require.NoError(t, s.Complete())
	pages, complete, err = s.ReadStream(s.Stream())
	require.NoError(t, err)
	assert.True(t, complete)

	r := pagereader.New(testSchema)
	for i, p := range pages {
		assert.Equal(t, uint64(i), p.Seq())
		recs, err := r.ReadAll(p)
		require.NoError(t, err)
		assert.Equal(t, rows, recs)
	}
}

func TestPebble_UnknownStream(t *testing.T) {
	s, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.ReadStream(uuid.New())
	require.ErrorIs(t, err, ErrStreamNotFound)
}

func TestPebble_StreamsAreSeparate(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenPebble(dir)
	require.NoError(t, err)
	require.NoError(t, s.Accept(makePage(t, storage.HeapAllocator{}, 0, record.Record{int64(1), "a", nil, nil})))
	require.NoError(t, s.Complete())
	first := s.Stream()
	require.NoError(t, s.Close())

	s, err = OpenPebble(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.NotEqual(t, first, s.Stream())

	pages, complete, err := s.ReadStream(first)
	require.NoError(t, err)
	assert.True(t, complete)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].RecordCount())

	_, _, err = s.ReadStream(s.Stream())
	require.ErrorIs(t, err, ErrStreamNotFound)
}

type errSink struct{ err error }

func (e errSink) Accept(p *storage.Page) error { p.Release(); return e.err }
func (e errSink) Complete() error              { return e.err }

func TestTee_SharesPage(t *testing.T) {
	pool := bufferpool.NewPool(storage.PageSize, 4)
	mem := NewMemory()
	var out bytes.Buffer
	c, err := NewCSV(&out, testSchema, column.Options{}, false)
	require.NoError(t, err)

	tee := NewTee(mem, c)
	require.NoError(t, tee.Accept(makePage(t, pool, 0, record.Record{int64(7), "x", nil, nil})))
	require.NoError(t, tee.Complete())

	assert.Equal(t, 1, pool.InUse())
	assert.Equal(t, 1, mem.RecordCount())
	assert.Equal(t, 1, mem.Completed())
	assert.Equal(t, "7,x,,\n", out.String())
}

func TestTee_JoinsErrors(t *testing.T) {
	pool := bufferpool.NewPool(storage.PageSize, 4)
	boom := errors.New("boom")
	mem := NewMemory()

	tee := NewTee(errSink{boom}, mem)
	err := tee.Accept(makePage(t, pool, 0, record.Record{int64(1), "a", nil, nil}))
	require.ErrorIs(t, err, boom)
	// the healthy sink still got its copy
	assert.Equal(t, 1, mem.RecordCount())
	assert.Equal(t, 1, pool.InUse())
	require.ErrorIs(t, tee.Complete(), boom)

	require.NoError(t, NewTee().Accept(makePage(t, pool, 0, record.Record{int64(1), "a", nil, nil})))
}
