package storage

import (
	"fmt"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/tuannm99/novapage/internal/alias/bx"
	locking "github.com/tuannm99/novapage/internal/lock"
)

// +---------------------------+ 0
// | magic | ncols | nrec | used | HeaderSize
// +---------------------------+
// | len | nullmap | payloads   | record 0
// | len | nullmap | payloads   | record 1
// | ...                        |
// +---------------------------+ used
// |  unused                    |
// +---------------------------+ capacity
//
// Page is a drained, immutable run of committed records. Ownership passes
// to whoever receives it; the receiver calls Release when done. Retain
// hands out further handles to the same bytes.
type Page struct {
	id      ksuid.KSUID
	seq     uint64
	data    []byte
	records int
	columns int

	once sync.Once
	refs *locking.RefCount
	free func()
}

func newPage(seq uint64, data []byte, free func()) *Page {
	return &Page{
		id:      ksuid.New(),
		seq:     seq,
		data:    data,
		records: int(bx.U32At(data, offRecords)),
		columns: int(bx.U16At(data, offColumns)),
		refs:    locking.NewRefCount(),
		free:    free,
	}
}

// LoadPage wraps bytes produced by Page.Bytes, e.g. after a round trip
// through a spool. The returned page does not own pooled memory.
func LoadPage(seq uint64, data []byte) (*Page, error) {
	if err := checkHeader(data); err != nil {
		return nil, err
	}
	return newPage(seq, data, nil), nil
}

func checkHeader(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than header", ErrBadPage, len(data))
	}
	if m := bx.U16At(data, offMagic); m != PageMagic {
		return fmt.Errorf("%w: magic 0x%04x", ErrBadPage, m)
	}
	if used := int(bx.U32At(data, offUsed)); used != len(data) {
		return fmt.Errorf("%w: header says %d bytes, have %d", ErrBadPage, used, len(data))
	}
	return nil
}

func (p *Page) ID() ksuid.KSUID  { return p.id }
func (p *Page) Seq() uint64      { return p.seq }
func (p *Page) RecordCount() int { return p.records }
func (p *Page) ColumnCount() int { return p.columns }
func (p *Page) Size() int        { return len(p.data) }

// Bytes exposes the encoded page. Callers must not modify it and must not
// use it after Release.
func (p *Page) Bytes() []byte { return p.data }

// Retain returns a new handle sharing this page's bytes. Each handle is
// released on its own; the memory is freed with the last one. Retain on a
// released handle returns nil.
func (p *Page) Retain() *Page {
	if p.data == nil {
		return nil
	}
	p.refs.Inc()
	return &Page{
		id:      p.id,
		seq:     p.seq,
		data:    p.data,
		records: p.records,
		columns: p.columns,
		refs:    p.refs,
		free:    p.free,
	}
}

// Release drops this handle and returns the page memory to its allocator
// once no handle is left. Safe to call more than once.
func (p *Page) Release() {
	p.once.Do(func() {
		if p.refs.Dec() && p.free != nil {
			p.free()
		}
		p.data = nil
	})
}

// Walk calls fn with the raw bytes of every record (nullmap followed by
// payloads, without the length prefix) in commit order.
func (p *Page) Walk(fn func(i int, rec []byte) error) error {
	data := p.data
	if data == nil {
		return fmt.Errorf("%w: page released", ErrBadPage)
	}
	pos := HeaderSize
	for i := 0; i < p.records; i++ {
		if pos+RecordLen > len(data) {
			return fmt.Errorf("%w: record %d header past end", ErrBadPage, i)
		}
		n := int(bx.U32(data[pos:]))
		if n < RecordLen || pos+n > len(data) {
			return fmt.Errorf("%w: record %d length %d", ErrBadPage, i, n)
		}
		if err := fn(i, data[pos+RecordLen:pos+n]); err != nil {
			return err
		}
		pos += n
	}
	if pos != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrBadPage, len(data)-pos)
	}
	return nil
}
