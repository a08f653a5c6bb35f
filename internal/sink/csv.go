package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/pagereader"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

// CSV formats every record of every accepted page as one CSV line.
// Nulls become empty fields, timestamps use the column's time format and
// json values are written as JSON text.
type CSV struct {
	reader  *pagereader.Reader
	w       *csv.Writer
	formats []column.TimeFormat
	header  bool
	wrote   bool
}

func NewCSV(w io.Writer, schema *record.Schema, opts column.Options, header bool) (*CSV, error) {
	cols := schema.Columns()
	formats := make([]column.TimeFormat, len(cols))
	for i, c := range cols {
		tf, err := opts.TimeFormatFor(c.Name)
		if err != nil {
			return nil, err
		}
		formats[i] = tf
	}
	return &CSV{
		reader:  pagereader.New(schema),
		w:       csv.NewWriter(w),
		formats: formats,
		header:  header,
	}, nil
}

func (c *CSV) Accept(p *storage.Page) error {
	defer p.Release()

	if c.header && !c.wrote {
		cols := c.reader.Schema().Columns()
		names := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.Name
		}
		if err := c.w.Write(names); err != nil {
			return err
		}
	}
	c.wrote = true

	v := &csvLine{fields: make([]string, c.reader.Schema().ColumnCount()), formats: c.formats}
	cur, err := c.reader.Cursor(p)
	if err != nil {
		return err
	}
	for cur.Next() {
		if err := cur.Visit(v); err != nil {
			return err
		}
		if v.err != nil {
			return v.err
		}
		if err := c.w.Write(v.fields); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Complete() error {
	c.w.Flush()
	return c.w.Error()
}

type csvLine struct {
	fields  []string
	formats []column.TimeFormat
	err     error
}

func (l *csvLine) SetNull(col record.Column) { l.fields[col.Index] = "" }
func (l *csvLine) SetBoolean(col record.Column, v bool) {
	l.fields[col.Index] = strconv.FormatBool(v)
}
func (l *csvLine) SetLong(col record.Column, v int64) {
	l.fields[col.Index] = strconv.FormatInt(v, 10)
}
func (l *csvLine) SetDouble(col record.Column, v float64) {
	l.fields[col.Index] = strconv.FormatFloat(v, 'g', -1, 64)
}
func (l *csvLine) SetString(col record.Column, v string) { l.fields[col.Index] = v }
func (l *csvLine) SetTimestamp(col record.Column, v time.Time) {
	l.fields[col.Index] = l.formats[col.Index].Format(v)
}
func (l *csvLine) SetJSON(col record.Column, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		l.err = fmt.Errorf("sink: column %q: %w", col.Name, err)
		return
	}
	l.fields[col.Index] = string(b)
}
