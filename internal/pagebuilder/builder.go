package pagebuilder

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novapage/internal/column"
	"github.com/tuannm99/novapage/internal/metrics"
	"github.com/tuannm99/novapage/internal/record"
	"github.com/tuannm99/novapage/internal/storage"
)

var (
	ErrBuilderClosed   = errors.New("pagebuilder: builder is closed")
	ErrBuilderFinished = errors.New("pagebuilder: stream already finished")
	ErrRecordTooLarge  = errors.New("pagebuilder: record does not fit in an empty page")
)

// Sink receives completed pages. Accept takes ownership of the page and
// must eventually Release it. Both calls are treated as blocking.
type Sink interface {
	Accept(p *storage.Page) error
	Complete() error
}

type State int

const (
	Active State = iota
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats are cumulative counters of one builder.
type Stats struct {
	Records  int64 // committed
	Rejected int64
	Pages    int64 // handed to the sink
	Bytes    int64
}

type options struct {
	columnOpts column.Options
	registry   *column.Registry
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*options)

// WithColumnOptions sets timestamp format and zone handling for the
// default registry. Ignored when WithRegistry is used.
func WithColumnOptions(o column.Options) Option {
	return func(opts *options) { opts.columnOpts = o }
}

func WithRegistry(r *column.Registry) Option {
	return func(opts *options) { opts.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(opts *options) { opts.metrics = m }
}

// Builder validates records against a schema, encodes them into a page
// buffer and pushes full pages to a sink.
//
// A Builder has a single owner; use Synchronized to share one between
// goroutines. Close must be called on every path, typically with defer.
// Close without Finish drops records that were committed but not flushed.
type Builder struct {
	id      uuid.UUID
	schema  *record.Schema
	binding *column.Binding
	buf     *storage.Buffer
	sink    Sink
	log     *slog.Logger
	metrics *metrics.Metrics

	state    State
	finished bool
	stats    Stats
}

func New(schema *record.Schema, alloc storage.Allocator, sink Sink, opts ...Option) (*Builder, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = column.DefaultRegistry(o.columnOpts)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	binding, err := o.registry.Bind(schema)
	if err != nil {
		return nil, err
	}
	buf, err := storage.NewBuffer(alloc, schema.ColumnCount())
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	return &Builder{
		id:      id,
		schema:  schema,
		binding: binding,
		buf:     buf,
		sink:    sink,
		log:     o.logger.With("stream", id.String()),
		metrics: o.metrics,
	}, nil
}

func (b *Builder) ID() uuid.UUID          { return b.id }
func (b *Builder) Schema() *record.Schema { return b.schema }
func (b *Builder) Columns() []record.Column {
	return b.schema.Columns()
}
func (b *Builder) State() State   { return b.state }
func (b *Builder) Finished() bool { return b.finished }
func (b *Builder) Stats() Stats   { return b.stats }
func (b *Builder) Buffered() int  { return b.buf.Len() }
func (b *Builder) Pending() bool  { return b.buf.InRecord() }

func (b *Builder) writable() error {
	if b.state == Closed {
		return ErrBuilderClosed
	}
	if b.finished {
		return ErrBuilderFinished
	}
	return nil
}

// AddRecord encodes rec as one record. On any error the record is dropped
// and previously committed records are untouched. A record being assembled
// through accessors is discarded.
func (b *Builder) AddRecord(rec record.Record) error {
	if err := b.writable(); err != nil {
		return err
	}
	if err := rec.CheckShape(b.schema); err != nil {
		b.reject(err)
		return err
	}
	if err := b.begin(); err != nil {
		return err
	}
	for i, v := range rec {
		if err := b.binding.At(i).Set(b.buf, v); err != nil {
			b.buf.AbandonRecord()
			b.reject(err)
			return err
		}
	}
	return b.commit()
}

// Commit adds the record assembled through accessors. It is a no-op when
// no accessor has written since the last commit; columns never written
// are null.
func (b *Builder) Commit() error {
	if err := b.writable(); err != nil {
		return err
	}
	if !b.buf.InRecord() {
		return nil
	}
	return b.commit()
}

// Abandon drops the record assembled through accessors.
func (b *Builder) Abandon() {
	b.buf.AbandonRecord()
}

func (b *Builder) begin() error {
	if b.buf.IsFull() {
		if err := b.flush(); err != nil {
			return err
		}
	}
	if err := b.buf.BeginRecord(); err != nil {
		return fmt.Errorf("pagebuilder: begin record: %w", err)
	}
	return nil
}

func (b *Builder) commit() error {
	err := b.buf.CommitRecord()
	if errors.Is(err, storage.ErrCapacityExceeded) {
		if !b.buf.FitsEmpty() {
			size := b.buf.PendingSize()
			b.buf.AbandonRecord()
			err = fmt.Errorf("%w (%w): record is %d bytes", ErrRecordTooLarge, storage.ErrCapacityExceeded, size)
			b.reject(err)
			return err
		}
		// the staged record survives the drain
		if err := b.flush(); err != nil {
			b.buf.AbandonRecord()
			return err
		}
		err = b.buf.CommitRecord()
	}
	if err != nil {
		b.buf.AbandonRecord()
		return err
	}
	b.stats.Records++
	b.metrics.RecordCommitted()
	return nil
}

// Flush hands the buffered records to the sink as one page. It does
// nothing when no record is buffered.
func (b *Builder) Flush() error {
	if err := b.writable(); err != nil {
		return err
	}
	return b.flush()
}

func (b *Builder) flush() error {
	if b.buf.Empty() {
		return nil
	}
	page, err := b.buf.Drain()
	if err != nil {
		return err
	}
	seq, n, size := page.Seq(), page.RecordCount(), page.Size()

	start := time.Now()
	if err := b.sink.Accept(page); err != nil {
		return fmt.Errorf("pagebuilder: sink rejected page %d: %w", seq, err)
	}
	b.metrics.PageFlushed(size, time.Since(start))
	b.stats.Pages++
	b.stats.Bytes += int64(size)
	b.log.Debug("page flushed", "seq", seq, "records", n, "bytes", size)
	return nil
}

// Finish flushes buffered records and signals end of stream to the sink.
// Afterwards only Close is allowed.
func (b *Builder) Finish() error {
	if err := b.writable(); err != nil {
		return err
	}
	b.buf.AbandonRecord()
	if err := b.flush(); err != nil {
		return err
	}
	if err := b.sink.Complete(); err != nil {
		return fmt.Errorf("pagebuilder: sink complete: %w", err)
	}
	b.finished = true
	b.metrics.StreamFinished()
	b.log.Debug("stream finished", "records", b.stats.Records, "pages", b.stats.Pages)
	return nil
}

// Close releases the page buffer. Records committed since the last flush
// are discarded, not sent. Close is idempotent and always returns nil.
func (b *Builder) Close() error {
	if b.state == Closed {
		return nil
	}
	if n := b.buf.Len(); n > 0 {
		b.log.Warn("closing with unflushed records, discarding", "records", n)
		b.metrics.RecordsDiscarded(n)
	}
	b.buf.Release()
	b.state = Closed
	return nil
}

func (b *Builder) reject(err error) {
	b.stats.Rejected++
	b.metrics.RecordRejected(reason(err))
}

func reason(err error) string {
	switch {
	case errors.Is(err, record.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, column.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, column.ErrValueOverflow):
		return "value_overflow"
	case errors.Is(err, column.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrRecordTooLarge):
		return "record_too_large"
	default:
		return "other"
	}
}

// IsRecordError reports whether err rejected a single record and left the
// builder usable for the next one.
func IsRecordError(err error) bool {
	return err != nil && reason(err) != "other"
}
