// Package pagereader decodes pages produced by the page builder back into
// records, either as values or by driving a Visitor per column.
package pagereader

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tuannm99/novapage/internal/alias/bx"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

// Visitor receives the columns of one record in schema order.
type Visitor interface {
	SetNull(col record.Column)
	SetBoolean(col record.Column, v bool)
	SetLong(col record.Column, v int64)
	SetDouble(col record.Column, v float64)
	SetString(col record.Column, v string)
	SetTimestamp(col record.Column, v time.Time)
	SetJSON(col record.Column, v any)
}

type Reader struct {
	schema *record.Schema
	cols   []record.Column
}

func New(schema *record.Schema) *Reader {
	return &Reader{schema: schema, cols: schema.Columns()}
}

func (r *Reader) Schema() *record.Schema { return r.schema }

// Cursor iterates over the records of p in commit order.
func (r *Reader) Cursor(p *storage.Page) (*Cursor, error) {
	if p.ColumnCount() != len(r.cols) {
		return nil, fmt.Errorf("%w: page has %d columns, schema has %d",
			record.ErrSchemaMismatch, p.ColumnCount(), len(r.cols))
	}
	c := &Cursor{r: r, pos: -1}
	err := p.Walk(func(_ int, rec []byte) error {
		c.raw = append(c.raw, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ReadAll decodes every record of p.
func (r *Reader) ReadAll(p *storage.Page) ([]record.Record, error) {
	c, err := r.Cursor(p)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(c.raw))
	for c.Next() {
		rec, err := c.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Consume feeds every record of p to v.
func (r *Reader) Consume(p *storage.Page, v Visitor) error {
	c, err := r.Cursor(p)
	if err != nil {
		return err
	}
	for c.Next() {
		if err := c.Visit(v); err != nil {
			return err
		}
	}
	return nil
}

type Cursor struct {
	r   *Reader
	raw [][]byte
	pos int
}

func (c *Cursor) Next() bool {
	if c.pos+1 >= len(c.raw) {
		c.pos = len(c.raw)
		return false
	}
	c.pos++
	return true
}

// Len is the number of records in the page.
func (c *Cursor) Len() int { return len(c.raw) }

func (c *Cursor) Record() (record.Record, error) {
	rv := &recordVisitor{rec: make(record.Record, len(c.r.cols))}
	if err := c.Visit(rv); err != nil {
		return nil, err
	}
	return rv.rec, nil
}

// Visit decodes the current record into v.
func (c *Cursor) Visit(v Visitor) error {
	if c.pos < 0 || c.pos >= len(c.raw) {
		return fmt.Errorf("%w: cursor not on a record", storage.ErrBadPage)
	}
	buf := c.raw[c.pos]
	nb := (len(c.r.cols) + 7) / 8
	if len(buf) < nb {
		return fmt.Errorf("%w: record %d shorter than null map", storage.ErrBadPage, c.pos)
	}
	nullmap := buf[:nb]
	i := nb

	need := func(n int) error {
		if i+n > len(buf) {
			return fmt.Errorf("%w: record %d truncated", storage.ErrBadPage, c.pos)
		}
		return nil
	}

	for idx, col := range c.r.cols {
		if (nullmap[idx/8]>>(uint(idx)&7))&1 == 1 {
			v.SetNull(col)
			continue
		}
		switch col.Type {
		case record.ColBoolean:
			if err := need(1); err != nil {
				return err
			}
			v.SetBoolean(col, buf[i] != 0)
			i++
		case record.ColLong:
			if err := need(8); err != nil {
				return err
			}
			v.SetLong(col, bx.I64(buf[i:]))
			i += 8
		case record.ColDouble:
			if err := need(8); err != nil {
				return err
			}
			v.SetDouble(col, bx.F64(buf[i:]))
			i += 8
		case record.ColTimestamp:
			if err := need(storage.TimeSize); err != nil {
				return err
			}
			v.SetTimestamp(col, time.Unix(bx.I64(buf[i:]), int64(bx.U32(buf[i+8:]))).UTC())
			i += storage.TimeSize
		case record.ColString, record.ColJSON:
			if err := need(storage.VarLen); err != nil {
				return err
			}
			l := int(bx.U32(buf[i:]))
			i += storage.VarLen
			if err := need(l); err != nil {
				return err
			}
			data := buf[i : i+l]
			i += l
			if col.Type == record.ColString {
				v.SetString(col, string(data))
				continue
			}
			tree, err := decodeJSON(data)
			if err != nil {
				return fmt.Errorf("%w: record %d column %q: %v", storage.ErrBadPage, c.pos, col.Name, err)
			}
			v.SetJSON(col, tree)
		default:
			return fmt.Errorf("%w: column %q has unknown type %s", storage.ErrBadPage, col.Name, col.Type)
		}
	}
	if i != len(buf) {
		return fmt.Errorf("%w: record %d has %d trailing bytes", storage.ErrBadPage, c.pos, len(buf)-i)
	}
	return nil
}

func decodeJSON(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	// integers as int64/uint64, floats as float64
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

type recordVisitor struct {
	rec record.Record
}

func (r *recordVisitor) SetNull(col record.Column)                   { r.rec[col.Index] = nil }
func (r *recordVisitor) SetBoolean(col record.Column, v bool)        { r.rec[col.Index] = v }
func (r *recordVisitor) SetLong(col record.Column, v int64)          { r.rec[col.Index] = v }
func (r *recordVisitor) SetDouble(col record.Column, v float64)      { r.rec[col.Index] = v }
func (r *recordVisitor) SetString(col record.Column, v string)       { r.rec[col.Index] = v }
func (r *recordVisitor) SetTimestamp(col record.Column, v time.Time) { r.rec[col.Index] = v }
func (r *recordVisitor) SetJSON(col record.Column, v any)            { r.rec[col.Index] = v }
