// Package response normalizes handler return values into a wire
// response and writes it through the byte-stream adapter: a status
// line, a fixed-order header block, and a body.
package response

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/watt-toolkit/rawhttpd/internal/stream"
)

type StatusCode int

const (
	Continue            StatusCode = 100
	OK                  StatusCode = 200
	NoContent           StatusCode = 204
	BadRequest          StatusCode = 400
	NotFound            StatusCode = 404
	RequestTimeout      StatusCode = 408
	LengthRequired      StatusCode = 411
	ExpectationFailed   StatusCode = 417
	InternalServerError StatusCode = 500
	NotImplemented      StatusCode = 501
	HTTPVersionNotSup   StatusCode = 505
)

// StatusCodeName is the canonical reason-phrase table; codes outside
// it render with a generic reason, per spec §6.
var StatusCodeName = map[StatusCode]string{
	Continue:            "Continue",
	OK:                  "OK",
	NoContent:           "No Content",
	BadRequest:          "Bad Request",
	NotFound:            "Not Found",
	RequestTimeout:      "Request Timeout",
	LengthRequired:      "Length Required",
	ExpectationFailed:   "Expectation Failed",
	InternalServerError: "Internal Server Error",
	NotImplemented:      "Not Implemented",
	HTTPVersionNotSup:   "HTTP Version Not Supported",
}

const httpVersion = "HTTP/1.1"

// ReasonPhrase returns the canonical reason phrase for code, or
// "Unknown Status" if it isn't in the table.
func ReasonPhrase(code StatusCode) string {
	if reason, ok := StatusCodeName[code]; ok {
		return reason
	}
	return "Unknown Status"
}

// FileBody pairs a readable byte stream with the path it was sourced
// from, used to MIME-sniff a Content-Type from the extension. This is
// the third leg of the handler return-value sum spec.md §4.D names:
// {string, mapping, byte-stream-with-path}.
type FileBody struct {
	Reader io.Reader
	Path   string
}

// Render normalizes a handler return value into a content type and
// encoded body, per §4.D: a string renders as HTML, a map or struct (or
// a pointer to one) as JSON, a FileBody by its extension's MIME type,
// and a raw []byte as application/octet-stream. Any other value, nil
// included, is a programming error in the handler and returns an error,
// which the driver renders as 500.
func Render(v any) (contentType string, body []byte, err error) {
	switch val := v.(type) {
	case string:
		return "text/html; charset=utf-8", []byte(val), nil

	case []byte:
		return "application/octet-stream", val, nil

	case FileBody:
		data, rerr := io.ReadAll(val.Reader)
		if rerr != nil {
			return "", nil, fmt.Errorf("response: reading file body: %w", rerr)
		}
		ct := mime.TypeByExtension(filepath.Ext(val.Path))
		if ct == "" {
			ct = "application/octet-stream"
		}
		return ct, data, nil

	case nil:
		// nil isn't one of the three shapes a handler may return
		// (string, map/struct, FileBody); treat it the same as any
		// other value outside that sum, not as an empty success body.
		return "", nil, fmt.Errorf("response: handler returned nil, not a renderable value")

	default:
		rv := reflect.ValueOf(val)
		for rv.Kind() == reflect.Pointer && !rv.IsNil() {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Map && rv.Kind() != reflect.Struct {
			return "", nil, fmt.Errorf("response: handler returned %T, not a renderable value", val)
		}
		encoded, jerr := json.Marshal(val)
		if jerr != nil {
			return "", nil, fmt.Errorf("response: encoding body: %w", jerr)
		}
		return "application/json; charset=utf-8", encoded, nil
	}
}

// Writer writes a single response to the connection's stream.Writer:
// status line, then Content-Type / Connection / Content-Length in that
// fixed order, then the body (suppressed for HEAD requests, though
// Content-Length still reflects what GET would have returned).
type Writer struct {
	w *stream.Writer
}

// NewWriter wraps a stream.Writer for response rendering.
func NewWriter(w *stream.Writer) *Writer {
	return &Writer{w: w}
}

// Write emits the full response for a non-HEAD request.
func (rw *Writer) Write(status StatusCode, contentType string, body []byte, keepAlive bool) error {
	return rw.write(status, contentType, body, keepAlive, true)
}

// WriteHead emits the status line and headers only, suppressing the
// body as HEAD requires, while Content-Length still reflects the body
// GET would have sent.
func (rw *Writer) WriteHead(status StatusCode, contentType string, body []byte, keepAlive bool) error {
	return rw.write(status, contentType, body, keepAlive, false)
}

func (rw *Writer) write(status StatusCode, contentType string, body []byte, keepAlive bool, writeBody bool) error {
	statusLine := fmt.Sprintf("%s %d %s\r\n", httpVersion, int(status), ReasonPhrase(status))
	if err := rw.w.WriteAll([]byte(statusLine)); err != nil {
		return err
	}

	if contentType != "" {
		if err := rw.w.WriteAll([]byte("Content-Type: " + contentType + "\r\n")); err != nil {
			return err
		}
	}

	connection := "close"
	if keepAlive {
		connection = "keep-alive"
	}
	if err := rw.w.WriteAll([]byte("Connection: " + connection + "\r\n")); err != nil {
		return err
	}

	if status != NoContent {
		if err := rw.w.WriteAll([]byte("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")); err != nil {
			return err
		}
	}

	if err := rw.w.WriteAll([]byte("\r\n")); err != nil {
		return err
	}

	if writeBody && len(body) > 0 {
		if err := rw.w.WriteAll(body); err != nil {
			return err
		}
	}

	return rw.w.Flush()
}
