package storage

import (
	"errors"
)

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576

	PageSize    = 1 << 13 // 8,192 (8 KiB), default page capacity
	MaxPageSize = OneMB * 64
	HeaderSize  = 12 // magic u16 | columnCount u16 | recordCount u32 | used u32
	RecordLen   = 4  // u32 length prefix of each record
	VarLen      = 4  // u32 length prefix of string/json payloads
	TimeSize    = 12 // seconds i64 + nanos u32

	PageMagic uint16 = 0x4E50 // "NP"
)

// Header offsets
const (
	offMagic   = 0
	offColumns = 2
	offRecords = 4
	offUsed    = 8
)

var (
	ErrCapacityExceeded   = errors.New("storage: page capacity exceeded")
	ErrNoRecordInProgress = errors.New("storage: no record in progress")
	ErrPageTooSmall       = errors.New("storage: page size cannot hold a single record")
	ErrBadPage            = errors.New("storage: malformed page")
	ErrBadColumn          = errors.New("storage: column slot out of range")
	ErrVarTooLong         = errors.New("storage: variable length exceeds u32")
)

// Allocator hands out fixed-capacity memory regions for page buffers.
// Every region returned by Allocate must be handed back through Free.
type Allocator interface {
	Allocate() ([]byte, error)
	Free(buf []byte)
	PageSize() int
}

// HeapAllocator allocates a fresh slice per request and lets the GC reclaim it.
type HeapAllocator struct {
	Size int
}

func (h HeapAllocator) Allocate() ([]byte, error) {
	return make([]byte, h.PageSize()), nil
}

func (h HeapAllocator) Free([]byte) {}

func (h HeapAllocator) PageSize() int {
	if h.Size <= 0 {
		return PageSize
	}
	return h.Size
}

func nullmapLen(columns int) int { return (columns + 7) / 8 }
