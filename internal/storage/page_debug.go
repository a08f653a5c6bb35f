package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/tuannm99/novapage/internal/alias/bx"
)

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Fprintf(format string, a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, a...)
}

func (e *errWriter) Fprintln(a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintln(e.w, a...)
}

// ASCII preview: printable -> itself, else '.'
func asciiPreview(b []byte) string {
	var buf bytes.Buffer
	if utf8.Valid(b) {
		for _, r := range string(b) {
			if unicode.IsPrint(r) {
				buf.WriteRune(r)
			} else {
				buf.WriteByte('.')
			}
		}
		return buf.String()
	}
	for _, c := range b {
		if c < utf8.RuneSelf && unicode.IsPrint(rune(c)) {
			buf.WriteByte(c)
		} else {
			buf.WriteByte('.')
		}
	}
	return buf.String()
}

// Debug prints the header and a preview of every record to w.
func (p *Page) Debug(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.Fprintf("=== Page Debug ===\n")
	ew.Fprintf("id=%s seq=%d size=%d\n", p.id, p.seq, len(p.data))
	if len(p.data) >= HeaderSize {
		ew.Fprintf("magic=0x%04x columns=%d records=%d used=%d\n",
			bx.U16At(p.data, offMagic), bx.U16At(p.data, offColumns),
			bx.U32At(p.data, offRecords), bx.U32At(p.data, offUsed))
	}

	ew.Fprintln("\n-- Records (preview) --")
	if p.records == 0 {
		ew.Fprintln("(none)")
	}
	const maxPreview = 32
	err := p.Walk(func(i int, rec []byte) error {
		preview := rec
		if len(preview) > maxPreview {
			preview = preview[:maxPreview]
		}
		ew.Fprintf("[%d] len=%d preview(hex)=%s\n", i, len(rec), hex.EncodeToString(preview))
		ew.Fprintf("     preview(ascii)=%q\n", asciiPreview(preview))
		return ew.err
	})
	if err != nil && ew.err == nil {
		ew.Fprintf("<walk error: %v>\n", err)
	}

	ew.Fprintln("=== End Page Debug ===")
	return ew.err
}

func (p *Page) DebugString() string {
	var b bytes.Buffer
	if err := p.Debug(&b); err != nil {
		// best-effort: surface the error in the output so callers see it
		_, _ = b.WriteString("\n<debug write error: " + err.Error() + ">\n")
	}
	return b.String()
}
