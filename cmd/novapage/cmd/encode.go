package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/novapage/internal"
	"github.com/tuannm99/novapage/internal/alias/util"
	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/metrics"
	"github.com/tuannm99/novapage/internal/pagebuilder"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/sink"
	"github.com/tuannm99/novapage/internal/storage"
)

const (
	formatJSONL = "jsonl"
	formatCSV   = "csv"
)

// row is one decoded input line keyed by column name.
type row struct {
	line   int
	fields map[string]any
}

type encodeOpts struct {
	format string
	output string
	strict bool
}

func newEncodeCmd(a *app) *cobra.Command {
	o := encodeOpts{}
	c := &cobra.Command{
		Use:   "encode [input]",
		Short: "Encode JSON lines or CSV into pages",
		Long: `Reads records from input (stdin when omitted or "-") and feeds them
through a page builder into the configured sink. Fields are matched to
columns by name; unknown fields are ignored and missing ones are null.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer util.CloseLogged(a.log, args[0], f)
				in = f
			}
			return a.encode(cmd, in, o)
		},
	}
	c.Flags().StringVarP(&o.format, "format", "f", formatJSONL, "Input format: jsonl or csv")
	c.Flags().StringVarP(&o.output, "output", "o", "", "Output file for the csv sink (default stdout)")
	c.Flags().BoolVar(&o.strict, "strict", false, "Stop at the first rejected record")
	return c
}

func (a *app) encode(cmd *cobra.Command, in io.Reader, o encodeOpts) error {
	schema, err := a.schema()
	if err != nil {
		return err
	}

	var decode func(context.Context, io.Reader, chan<- row) error
	switch o.format {
	case formatJSONL:
		decode = decodeJSONLines
	case formatCSV:
		decode = decodeCSV
	default:
		return fmt.Errorf("unknown input format %q", o.format)
	}

	out := cmd.OutOrStdout()
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer util.CloseLogged(a.log, o.output, f)
		out = f
	}

	s, done, err := a.openSink(out, schema)
	if err != nil {
		return err
	}
	defer done()

	b, err := pagebuilder.New(schema, a.cfg.Allocator(), s,
		pagebuilder.WithColumnOptions(a.cfg.ColumnOptions()),
		pagebuilder.WithLogger(a.log),
		pagebuilder.WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	if err != nil {
		return err
	}
	defer b.Close()

	rows := make(chan row, 64)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		defer close(rows)
		return decode(ctx, in, rows)
	})
	g.Go(func() error {
		return consume(rows, b, o.strict, a.log)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := b.Finish(); err != nil {
		return err
	}

	st := b.Stats()
	w := cmd.ErrOrStderr()
	color.New(color.FgGreen, color.Bold).Fprintf(w, "encoded %d records into %d pages (%d bytes)\n",
		st.Records, st.Pages, st.Bytes)
	if st.Rejected > 0 {
		color.New(color.FgYellow).Fprintf(w, "rejected %d records\n", st.Rejected)
	}
	for _, p := range pebbles(s) {
		color.New(color.FgCyan).Fprintf(w, "stream %s\n", p.Stream())
	}
	return nil
}

// openSink builds the configured sinks, tee'd together when there are
// several, and a function that releases them.
func (a *app) openSink(out io.Writer, schema *record.Schema) (pagebuilder.Sink, func(), error) {
	var (
		sinks  []sink.PageSink
		closes []func()
	)
	done := func() {
		for _, c := range closes {
			c()
		}
	}
	for _, kind := range a.cfg.SinkKinds() {
		switch kind {
		case internal.SinkCSV:
			s, err := sink.NewCSV(out, schema, a.cfg.ColumnOptions(), a.cfg.Sink.CSVHeader)
			if err != nil {
				done()
				return nil, nil, err
			}
			sinks = append(sinks, s)
		case internal.SinkPebble:
			s, err := sink.OpenPebble(a.cfg.Sink.PebbleDir)
			if err != nil {
				done()
				return nil, nil, err
			}
			sinks = append(sinks, s)
			closes = append(closes, func() { util.CloseLogged(a.log, "pebble", s) })
		default:
			sinks = append(sinks, sink.NewMemory())
		}
	}
	if len(sinks) == 1 {
		return sinks[0], done, nil
	}
	return sink.NewTee(sinks...), done, nil
}

func consume(rows <-chan row, b *pagebuilder.Builder, strict bool, log *slog.Logger) error {
	for r := range rows {
		err := addFields(b, r.fields)
		if err == nil {
			continue
		}
		if strict || !pagebuilder.IsRecordError(err) {
			return fmt.Errorf("line %d: %w", r.line, err)
		}
		log.Warn("record rejected", "line", r.line, "err", err)
	}
	return nil
}

func addFields(b *pagebuilder.Builder, fields map[string]any) error {
	for name, v := range fields {
		if err := b.LookupColumnOrSkip(name).Set(v); err != nil {
			b.Abandon()
			return err
		}
	}
	if !b.Pending() {
		// no known column in the row
		return b.AddRecord(make(record.Record, b.Schema().ColumnCount()))
	}
	return b.Commit()
}

func send(ctx context.Context, out chan<- row, r row) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeJSONLines(ctx context.Context, in io.Reader, out chan<- row) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*storage.OneKB), storage.MaxPageSize)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		for k, v := range fields {
			fields[k] = column.Numbers(v)
		}
		if err := send(ctx, out, row{line: line, fields: fields}); err != nil {
			return err
		}
	}
	return sc.Err()
}

// decodeCSV takes column names from the header row. Empty fields are null.
func decodeCSV(ctx context.Context, in io.Reader, out chan<- row) error {
	cr := csv.NewReader(in)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	header = append([]string(nil), header...)

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		fields := make(map[string]any, len(header))
		for i, name := range header {
			if rec[i] == "" {
				fields[name] = nil
				continue
			}
			fields[name] = rec[i]
		}
		if err := send(ctx, out, row{line: line, fields: fields}); err != nil {
			return err
		}
	}
}

func pebbles(s pagebuilder.Sink) []*sink.Pebble {
	switch x := s.(type) {
	case *sink.Pebble:
		return []*sink.Pebble{x}
	case *sink.Tee:
		var out []*sink.Pebble
		for _, inner := range x.Sinks() {
			out = append(out, pebbles(inner)...)
		}
		return out
	}
	return nil
}
