package pagebuilder

import (
	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/record"
)

// Accessor writes one column of the record being assembled. The first
// write after a commit starts a new record; Builder.Commit adds it.
type Accessor interface {
	Set(v any) error
	SetNull() error
	// Column reports the bound column; false for the skip accessor.
	Column() (record.Column, bool)
}

type columnAccessor struct {
	b      *Builder
	setter *column.Setter
}

// start begins a record unless one is being assembled and reports whether
// it did.
func (a columnAccessor) start() (bool, error) {
	if err := a.b.writable(); err != nil {
		return false, err
	}
	if a.b.buf.InRecord() {
		return false, nil
	}
	return true, a.b.begin()
}

// Set coerces v into the column. A failed Set leaves the column as it was,
// and a failed first write leaves no record in progress.
func (a columnAccessor) Set(v any) error {
	started, err := a.start()
	if err != nil {
		return err
	}
	if err := a.setter.Set(a.b.buf, v); err != nil {
		if started {
			a.b.buf.AbandonRecord()
		}
		a.b.reject(err)
		return err
	}
	return nil
}

func (a columnAccessor) SetNull() error {
	started, err := a.start()
	if err != nil {
		return err
	}
	if err := a.setter.SetNull(a.b.buf); err != nil {
		if started {
			a.b.buf.AbandonRecord()
		}
		return err
	}
	return nil
}

func (a columnAccessor) Column() (record.Column, bool) {
	return a.setter.Column(), true
}

type skipAccessor struct{}

func (skipAccessor) Set(any) error                 { return nil }
func (skipAccessor) SetNull() error                { return nil }
func (skipAccessor) Column() (record.Column, bool) { return record.Column{}, false }

// Skip accepts and drops every write.
var Skip Accessor = skipAccessor{}

// Column returns the accessor for the column at index i.
func (b *Builder) Column(i int) (Accessor, error) {
	col, err := b.schema.ColumnAt(i)
	if err != nil {
		return nil, err
	}
	return columnAccessor{b: b, setter: b.binding.At(col.Index)}, nil
}

// LookupColumn returns the accessor for the column called name.
func (b *Builder) LookupColumn(name string) (Accessor, error) {
	col, err := b.schema.ColumnByName(name)
	if err != nil {
		return nil, err
	}
	return columnAccessor{b: b, setter: b.binding.At(col.Index)}, nil
}

// ColumnOrSkip is Column that returns Skip for an unknown index.
func (b *Builder) ColumnOrSkip(i int) Accessor {
	a, err := b.Column(i)
	if err != nil {
		return Skip
	}
	return a
}

// LookupColumnOrSkip is LookupColumn that returns Skip for an unknown name.
func (b *Builder) LookupColumnOrSkip(name string) Accessor {
	a, err := b.LookupColumn(name)
	if err != nil {
		return Skip
	}
	return a
}
