package pagebuilder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/sink"
	"github.com/tuannm99/novapage/internal/storage"
)

func TestAccessor_StrictLookups(t *testing.T) {
	b := newBuilder(t, storage.HeapAllocator{}, sink.NewMemory())

	_, err := b.Column(5)
	require.ErrorIs(t, err, record.ErrOutOfRange)
	_, err = b.Column(-1)
	require.ErrorIs(t, err, record.ErrOutOfRange)
	_, err = b.LookupColumn("x")
	require.ErrorIs(t, err, record.ErrUnknownColumn)

	a, err := b.LookupColumn("name")
	require.NoError(t, err)
	col, ok := a.Column()
	require.True(t, ok)
	assert.Equal(t, 1, col.Index)
	assert.Equal(t, record.ColString, col.Type)
}

func TestAccessor_OrSkip(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	for _, a := range []Accessor{b.ColumnOrSkip(9), b.LookupColumnOrSkip("x")} {
		assert.Equal(t, Skip, a)
		_, ok := a.Column()
		assert.False(t, ok)
		require.NoError(t, a.Set("anything"))
		require.NoError(t, a.SetNull())
	}
	// writes to the skip accessor never start a record
	assert.False(t, b.Pending())
	require.NoError(t, b.Commit())
	assert.Equal(t, 0, b.Buffered())

	_, ok := b.LookupColumnOrSkip("id").Column()
	assert.True(t, ok)
}

func TestAccessor_AssembleAndCommit(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	require.NoError(t, b.LookupColumnOrSkip("name").Set("first"))
	require.NoError(t, b.ColumnOrSkip(0).Set("7"))
	require.NoError(t, b.LookupColumnOrSkip("extra").Set("ignored"))
	require.NoError(t, b.Commit())

	// id never written: null
	require.NoError(t, b.ColumnOrSkip(1).Set("second"))
	require.NoError(t, b.Commit())

	require.NoError(t, b.ColumnOrSkip(0).SetNull())
	require.NoError(t, b.ColumnOrSkip(1).SetNull())
	require.NoError(t, b.Commit())

	require.NoError(t, b.Finish())
	assert.Equal(t, []record.Record{
		{int64(7), "first"},
		{nil, "second"},
		{nil, nil},
	}, readAll(t, b.Schema(), mem.Pages()))
}

func TestAccessor_FailedSetKeepsColumn(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	id := b.ColumnOrSkip(0)
	require.NoError(t, id.Set(1))
	require.ErrorIs(t, id.Set("one"), column.ErrTypeMismatch)
	require.NoError(t, b.ColumnOrSkip(1).Set("a"))
	require.NoError(t, b.Commit())
	require.NoError(t, b.Flush())

	assert.Equal(t, []record.Record{{int64(1), "a"}}, readAll(t, b.Schema(), mem.Pages()))
}

func TestAccessor_FailedFirstSetStartsNoRecord(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	require.NoError(t, b.AddRecord(record.Record{int64(1), "a"}))
	require.ErrorIs(t, b.ColumnOrSkip(0).Set("not a number"), column.ErrTypeMismatch)
	assert.False(t, b.Pending())

	require.NoError(t, b.Commit())
	assert.Equal(t, 1, b.Buffered())
	require.NoError(t, b.Finish())

	assert.Equal(t, []record.Record{{int64(1), "a"}}, readAll(t, b.Schema(), mem.Pages()))
	assert.Equal(t, int64(1), b.Stats().Records)
	assert.Equal(t, int64(1), b.Stats().Rejected)
}

func TestAccessor_AddRecordReplacesPartialRecord(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	require.NoError(t, b.ColumnOrSkip(1).Set("partial"))
	require.NoError(t, b.AddRecord(record.Record{int64(2), "whole"}))
	assert.False(t, b.Pending())
	require.NoError(t, b.Commit())
	require.NoError(t, b.Finish())

	assert.Equal(t, []record.Record{{int64(2), "whole"}}, readAll(t, b.Schema(), mem.Pages()))
}

func TestAccessor_FinishDropsUncommitted(t *testing.T) {
	mem := sink.NewMemory()
	b := newBuilder(t, storage.HeapAllocator{}, mem)

	require.NoError(t, b.AddRecord(record.Record{int64(1), "a"}))
	require.NoError(t, b.ColumnOrSkip(0).Set(2))
	require.NoError(t, b.Finish())

	assert.Equal(t, 1, mem.RecordCount())
}

func TestSynchronized_Build(t *testing.T) {
	mem := sink.NewMemory()
	s := NewSynchronized(newBuilder(t, storage.HeapAllocator{}, mem))

	require.NoError(t, s.Build(func(b *Builder) error {
		if err := b.LookupColumnOrSkip("id").Set(1); err != nil {
			return err
		}
		return b.LookupColumnOrSkip("name").Set("kept")
	}))
	boom := errors.New("boom")
	require.ErrorIs(t, s.Build(func(b *Builder) error {
		_ = b.LookupColumnOrSkip("id").Set(2)
		return boom
	}), boom)
	// the failed write is ignored and nothing else was written
	require.NoError(t, s.Build(func(b *Builder) error {
		_ = b.LookupColumnOrSkip("id").Set("three")
		return nil
	}))
	require.NoError(t, s.Finish())

	assert.Equal(t, 1, mem.RecordCount())
	assert.Equal(t, int64(1), s.Stats().Records)
}
