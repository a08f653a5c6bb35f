// Package sink holds the consumers that receive pages from a page builder.
package sink

import (
	"sync"

	"github.com/tuannm99/novapage/internal/storage"
)

// Memory keeps a private copy of every accepted page. The received page is
// released as soon as it has been copied.
type Memory struct {
	mu        sync.Mutex
	pages     []*storage.Page
	completed int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Accept(p *storage.Page) error {
	defer p.Release()

	cp := make([]byte, p.Size())
	copy(cp, p.Bytes())
	kept, err := storage.LoadPage(p.Seq(), cp)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pages = append(m.pages, kept)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Complete() error {
	m.mu.Lock()
	m.completed++
	m.mu.Unlock()
	return nil
}

// Pages returns the accepted pages in arrival order.
func (m *Memory) Pages() []*storage.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.Page, len(m.pages))
	copy(out, m.pages)
	return out
}

// Completed is the number of end-of-stream signals received.
func (m *Memory) Completed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// RecordCount sums the records of all accepted pages.
func (m *Memory) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pages {
		n += p.RecordCount()
	}
	return n
}
