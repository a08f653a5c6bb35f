package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/tuannm99/novapage/internal/alias/bx"
)

type slot struct {
	set  bool
	null bool
	off  int // into scratch
	n    int
}

// Buffer accumulates committed records in a fixed-capacity region and
// stages the record currently being assembled. The staged record lives
// outside the region until CommitRecord copies it in, so a failed or
// abandoned record never touches committed bytes.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	alloc   Allocator
	columns int

	region  []byte
	used    int
	records int
	seq     uint64

	inRecord bool
	slots    []slot
	scratch  []byte
}

func NewBuffer(alloc Allocator, columns int) (*Buffer, error) {
	if columns > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d columns", ErrBadColumn, columns)
	}
	need := HeaderSize + RecordLen + nullmapLen(columns)
	if alloc.PageSize() < need || alloc.PageSize() > MaxPageSize {
		return nil, fmt.Errorf("%w: page size %d, need at least %d", ErrPageTooSmall, alloc.PageSize(), need)
	}
	return &Buffer{
		alloc:   alloc,
		columns: columns,
		used:    HeaderSize,
		slots:   make([]slot, columns),
	}, nil
}

func (b *Buffer) minRecordSize() int { return RecordLen + nullmapLen(b.columns) }

func (b *Buffer) capacity() int { return b.alloc.PageSize() }

func (b *Buffer) ensureRegion() error {
	if b.region != nil {
		return nil
	}
	region, err := b.alloc.Allocate()
	if err != nil {
		return fmt.Errorf("storage: allocate page: %w", err)
	}
	b.region = region
	b.used = HeaderSize
	return nil
}

// BeginRecord starts a new staged record, dropping any record in progress.
func (b *Buffer) BeginRecord() error {
	if err := b.ensureRegion(); err != nil {
		return err
	}
	if b.IsFull() {
		return ErrCapacityExceeded
	}
	b.resetStage()
	b.inRecord = true
	return nil
}

// AbandonRecord discards the staged record.
func (b *Buffer) AbandonRecord() {
	b.resetStage()
	b.inRecord = false
}

func (b *Buffer) resetStage() {
	for i := range b.slots {
		b.slots[i] = slot{}
	}
	b.scratch = b.scratch[:0]
}

func (b *Buffer) InRecord() bool { return b.inRecord }

// PendingSize is the encoded size of the staged record.
func (b *Buffer) PendingSize() int {
	n := b.minRecordSize()
	for _, s := range b.slots {
		if s.set && !s.null {
			n += s.n
		}
	}
	return n
}

// Fits reports whether the staged record fits in the remaining region.
func (b *Buffer) Fits() bool {
	return b.used+b.PendingSize() <= b.capacity()
}

// FitsEmpty reports whether the staged record would fit in an empty page.
func (b *Buffer) FitsEmpty() bool {
	return HeaderSize+b.PendingSize() <= b.capacity()
}

// CommitRecord appends the staged record to the region. Unset columns are
// committed as null. It is a no-op when no record is in progress. When the
// record does not fit, nothing is written, the record stays staged and
// ErrCapacityExceeded is returned.
func (b *Buffer) CommitRecord() error {
	if !b.inRecord {
		return nil
	}
	if err := b.ensureRegion(); err != nil {
		return err
	}
	size := b.PendingSize()
	if b.used+size > b.capacity() {
		return ErrCapacityExceeded
	}

	out := b.region[b.used : b.used+size]
	bx.PutU32(out, uint32(size))
	nullmap := out[RecordLen : RecordLen+nullmapLen(b.columns)]
	for i := range nullmap {
		nullmap[i] = 0
	}
	pos := RecordLen + len(nullmap)
	for i, s := range b.slots {
		if !s.set || s.null {
			nullmap[i/8] |= 1 << (uint(i) & 7) // bit=1 => NULL
			continue
		}
		pos += copy(out[pos:], b.scratch[s.off:s.off+s.n])
	}

	b.used += size
	b.records++
	b.AbandonRecord()
	return nil
}

// IsFull reports whether the region cannot take even a minimal record.
func (b *Buffer) IsFull() bool {
	return b.capacity()-b.used < b.minRecordSize()
}

// Len is the number of committed records not yet drained.
func (b *Buffer) Len() int { return b.records }

func (b *Buffer) Empty() bool { return b.records == 0 }

// Used is the number of region bytes holding header and committed records.
func (b *Buffer) Used() int { return b.used }

// Drain hands the committed records over as a Page and continues with a
// fresh region of the same capacity. The staged record, if any, is kept.
// When allocation of the fresh region fails the buffer is left untouched.
func (b *Buffer) Drain() (*Page, error) {
	if b.region == nil || b.records == 0 {
		return nil, nil
	}
	next, err := b.alloc.Allocate()
	if err != nil {
		return nil, fmt.Errorf("storage: allocate page: %w", err)
	}

	full := b.region
	bx.PutU16At(full, offMagic, PageMagic)
	bx.PutU16At(full, offColumns, uint16(b.columns))
	bx.PutU32At(full, offRecords, uint32(b.records))
	bx.PutU32At(full, offUsed, uint32(b.used))

	alloc := b.alloc
	p := newPage(b.seq, full[:b.used:b.used], func() { alloc.Free(full) })

	b.seq++
	b.region = next
	b.used = HeaderSize
	b.records = 0
	return p, nil
}

// Release gives the region back to the allocator and drops every
// committed and staged record. Safe to call more than once.
func (b *Buffer) Release() {
	if b.region != nil {
		b.alloc.Free(b.region)
		b.region = nil
	}
	b.used = HeaderSize
	b.records = 0
	b.AbandonRecord()
}

// ---- slot writers, called by column encoders ----

func (b *Buffer) stage(col int, n int) ([]byte, error) {
	if !b.inRecord {
		return nil, ErrNoRecordInProgress
	}
	if col < 0 || col >= b.columns {
		return nil, fmt.Errorf("%w: %d", ErrBadColumn, col)
	}
	off := len(b.scratch)
	b.scratch = append(b.scratch, make([]byte, n)...)
	b.slots[col] = slot{set: true, off: off, n: n}
	return b.scratch[off : off+n], nil
}

func (b *Buffer) PutNull(col int) error {
	if !b.inRecord {
		return ErrNoRecordInProgress
	}
	if col < 0 || col >= b.columns {
		return fmt.Errorf("%w: %d", ErrBadColumn, col)
	}
	b.slots[col] = slot{set: true, null: true}
	return nil
}

func (b *Buffer) PutBool(col int, v bool) error {
	dst, err := b.stage(col, 1)
	if err != nil {
		return err
	}
	if v {
		dst[0] = 1
	}
	return nil
}

func (b *Buffer) PutInt64(col int, v int64) error {
	dst, err := b.stage(col, 8)
	if err != nil {
		return err
	}
	bx.PutI64(dst, v)
	return nil
}

func (b *Buffer) PutFloat64(col int, v float64) error {
	dst, err := b.stage(col, 8)
	if err != nil {
		return err
	}
	bx.PutF64(dst, v)
	return nil
}

func (b *Buffer) PutTime(col int, v time.Time) error {
	dst, err := b.stage(col, TimeSize)
	if err != nil {
		return err
	}
	bx.PutI64(dst, v.Unix())
	bx.PutU32(dst[8:], uint32(v.Nanosecond()))
	return nil
}

// PutBytes stages a length-prefixed payload (string and json columns).
func (b *Buffer) PutBytes(col int, v []byte) error {
	if uint64(len(v)) > math.MaxUint32 {
		return ErrVarTooLong
	}
	dst, err := b.stage(col, VarLen+len(v))
	if err != nil {
		return err
	}
	bx.PutU32(dst, uint32(len(v)))
	copy(dst[VarLen:], v)
	return nil
}
