// Package errwriter provides an io.Writer that remembers the first write
// error, so that long sequences of writes can be checked once at the end.
package errwriter

import (
	"fmt"
	"io"
	"unicode/utf8"
)

// Writer wraps an io.Writer. Once a write fails, every subsequent write is
// dropped and returns the same error.
type Writer struct {
	w   io.Writer
	Err error
	buf [utf8.UTFMax]byte
}

// New returns a Writer writing to w. If w already is a *Writer it is
// returned as is.
func New(w io.Writer) *Writer {
	if ew, ok := w.(*Writer); ok {
		return ew
	}
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.Err != nil {
		return 0, w.Err
	}
	n, err = w.w.Write(p)
	if err != nil {
		w.Err = fmt.Errorf("write failed: %w", err)
	}
	return n, w.Err
}

// WriteString writes s.
func (w *Writer) WriteString(s string) (n int, err error) {
	return w.Write([]byte(s))
}

// WriteRune writes the UTF-8 encoding of r.
func (w *Writer) WriteRune(r rune) (n int, err error) {
	n = utf8.EncodeRune(w.buf[:], r)
	return w.Write(w.buf[:n])
}
