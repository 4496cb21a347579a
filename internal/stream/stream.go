// Package stream adapts a net.Conn-like byte stream into the two
// primitives the request parser needs: read a line up to a delimiter,
// and read an exact number of bytes. It enforces the single line-length
// cap the transport is responsible for; everything else (body size,
// header count, etc.) is the parser's concern.
package stream

import (
	"bufio"
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"
)

var (
	// ErrConnectionClosed is returned when EOF is reached before the
	// requested delimiter or byte count was seen.
	ErrConnectionClosed = errors.New("stream: connection closed")

	// ErrLineTooLong is returned when more than the configured limit of
	// bytes is read without encountering the delimiter.
	ErrLineTooLong = errors.New("stream: line exceeds limit")
)

// DefaultLineLimit is the per-line cap spec'd for the request parser
// (start line and each header line): 64 KiB.
const DefaultLineLimit = 64 * 1024

// Reader wraps a buffered reader with delimiter- and length-bounded reads.
type Reader struct {
	br        *bufio.Reader
	LineLimit int
}

// NewReader wraps r with a buffered reader sized for typical request lines.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br:        bufio.NewReaderSize(r, 4096),
		LineLimit: DefaultLineLimit,
	}
}

// ReadUntil returns bytes up to and including delim. It fails with
// ErrConnectionClosed if EOF arrives first, and ErrLineTooLong if more
// than LineLimit bytes are consumed without seeing delim.
func (r *Reader) ReadUntil(delim byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for {
		chunk, err := r.br.ReadBytes(delim)
		buf.Write(chunk)

		// The delimiter itself does not count toward the limit.
		n := buf.Len()
		if err == nil {
			n--
		}
		if n > r.LineLimit {
			return nil, ErrLineTooLong
		}

		if err == nil {
			out := make([]byte, buf.Len())
			copy(out, buf.Bytes())
			return out, nil
		}

		if errors.Is(err, io.EOF) {
			return nil, ErrConnectionClosed
		}

		return nil, err
	}
}

// ReadExact returns exactly n bytes, or ErrConnectionClosed if the
// stream ends first.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r.br, out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	return out, nil
}

// Writer wraps a buffered writer exposing write-all-then-flush semantics.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w with a buffered writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 4096)}
}

// WriteAll writes the full slice or returns the first error encountered.
func (w *Writer) WriteAll(p []byte) error {
	_, err := w.bw.Write(p)
	return err
}

// Flush pushes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
