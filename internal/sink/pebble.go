package sink

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/tuannm99/novapage/internal/alias/bx"
	"github.com/tuannm99/novapage/internal/storage"
)

// Key layout, all under the 16-byte stream id:
//
//	<stream> 'p' <seq u64 BE>  page bytes
//	<stream> 'n'               page count u64 BE
//	<stream> 'c'               present once the stream is complete
const (
	tagPage     = 'p'
	tagCount    = 'n'
	tagComplete = 'c'
)

var ErrStreamNotFound = errors.New("sink: stream not found")

// Pebble spools pages of one stream into a pebble store so that a later
// stage can read them back in order.
type Pebble struct {
	db     *pebble.DB
	stream uuid.UUID
	next   uint64
}

// OpenPebble opens (or creates) the store in dir and starts a new stream.
func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("sink: open pebble: %w", err)
	}
	return &Pebble{db: db, stream: uuid.New()}, nil
}

func (s *Pebble) Stream() uuid.UUID { return s.stream }

func streamKey(stream uuid.UUID, tag byte, extra int) []byte {
	k := make([]byte, 17, 17+extra)
	copy(k, stream[:])
	k[16] = tag
	return k
}

func pageKey(stream uuid.UUID, seq uint64) []byte {
	k := streamKey(stream, tagPage, 8)
	k = k[:25]
	bx.PutU64BE(k[17:], seq)
	return k
}

func (s *Pebble) Accept(p *storage.Page) error {
	defer p.Release()

	var count [8]byte
	bx.PutU64BE(count[:], s.next+1)

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(pageKey(s.stream, s.next), p.Bytes(), nil); err != nil {
		return err
	}
	if err := b.Set(streamKey(s.stream, tagCount, 0), count[:], nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("sink: spool page %d: %w", s.next, err)
	}
	s.next++
	return nil
}

func (s *Pebble) Complete() error {
	return s.db.Set(streamKey(s.stream, tagComplete, 0), []byte{1}, pebble.Sync)
}

func (s *Pebble) Close() error {
	return s.db.Close()
}

// ReadStream loads every spooled page of stream in order and reports
// whether the stream was completed.
func (s *Pebble) ReadStream(stream uuid.UUID) ([]*storage.Page, bool, error) {
	raw, err := s.get(streamKey(stream, tagCount, 0))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrStreamNotFound, stream)
	}
	if err != nil {
		return nil, false, err
	}
	n := bx.U64BE(raw)

	pages := make([]*storage.Page, 0, n)
	for seq := uint64(0); seq < n; seq++ {
		data, err := s.get(pageKey(stream, seq))
		if err != nil {
			return nil, false, fmt.Errorf("sink: read page %d: %w", seq, err)
		}
		p, err := storage.LoadPage(seq, data)
		if err != nil {
			return nil, false, err
		}
		pages = append(pages, p)
	}

	_, err = s.get(streamKey(stream, tagComplete, 0))
	switch {
	case err == nil:
		return pages, true, nil
	case errors.Is(err, pebble.ErrNotFound):
		return pages, false, nil
	default:
		return nil, false, err
	}
}

// get copies the value out, pebble only guarantees it until closer.Close.
func (s *Pebble) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}
