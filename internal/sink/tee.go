package sink

import (
	"errors"

	"github.com/tuannm99/novapage/internal/storage"
)

// PageSink is the consumer side of a page builder.
type PageSink interface {
	Accept(p *storage.Page) error
	Complete() error
}

// Tee hands every page to several sinks. Each sink gets its own handle,
// so the page memory is freed once the slowest of them releases it.
type Tee struct {
	sinks []PageSink
}

func NewTee(sinks ...PageSink) *Tee {
	return &Tee{sinks: sinks}
}

func (t *Tee) Sinks() []PageSink { return t.sinks }

// Accept delivers p to every sink even when one of them fails and
// returns the joined errors.
func (t *Tee) Accept(p *storage.Page) error {
	if len(t.sinks) == 0 {
		p.Release()
		return nil
	}
	handles := make([]*storage.Page, len(t.sinks))
	handles[0] = p
	for i := 1; i < len(handles); i++ {
		handles[i] = p.Retain()
	}
	var errs []error
	for i, s := range t.sinks {
		if err := s.Accept(handles[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) Complete() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Complete(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
