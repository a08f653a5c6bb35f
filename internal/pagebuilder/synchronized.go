package pagebuilder

import (
	"sync"

	"github.com/tuannm99/novapage/internal/record"
)

// Synchronized serializes access to a Builder so several producers can
// feed one stream.
type Synchronized struct {
	mu sync.Mutex
	b  *Builder
}

func NewSynchronized(b *Builder) *Synchronized {
	return &Synchronized{b: b}
}

func (s *Synchronized) AddRecord(rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.AddRecord(rec)
}

// Build runs fn with exclusive use of the builder, for records assembled
// through accessors. The record is committed when fn succeeds and
// dropped otherwise.
func (s *Synchronized) Build(fn func(b *Builder) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.b); err != nil {
		s.b.Abandon()
		return err
	}
	return s.b.Commit()
}

func (s *Synchronized) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Flush()
}

func (s *Synchronized) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Finish()
}

func (s *Synchronized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Close()
}

func (s *Synchronized) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Stats()
}
