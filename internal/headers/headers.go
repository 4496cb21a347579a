// Package headers implements the ordered, duplicate-rejecting field
// table the request parser fills in while it walks a header block.
package headers

import (
	"bytes"
	"errors"
	"strings"
)

var (
	ErrMalformedHeaderLine = errors.New("malformed header-line")
	ErrHeaderLineTooLong   = errors.New("header line too long")
	ErrDuplicateHeader     = errors.New("duplicate header field")
	ErrInvalidHeaderValue  = errors.New("header value contains control character")
)

// maxHeaderLine is the per-line cap, the same 64 KiB as the
// transport's line limit (stream.DefaultLineLimit), which the caller's
// stream.Reader enforces before a line ever reaches ParseLine.
const maxHeaderLine = 64 * 1024

// Headers is an ordered, case-insensitive field-name -> field-value
// table. Unlike a bare map, it remembers insertion order and refuses a
// second entry for a field-name already present, per the Request
// invariant that headers contains at most one entry per lowercased
// field-name.
type Headers struct {
	keys []string
	vals map[string]string
}

// NewHeaders returns an empty header table.
func NewHeaders() *Headers {
	return &Headers{vals: make(map[string]string)}
}

// Get returns the value for name (case-insensitive), or "" if absent.
func (h *Headers) Get(name string) string {
	return h.vals[strings.ToLower(name)]
}

// Has reports whether name is present (case-insensitive).
func (h *Headers) Has(name string) bool {
	_, ok := h.vals[strings.ToLower(name)]
	return ok
}

// Delete removes name if present.
func (h *Headers) Delete(name string) {
	name = strings.ToLower(name)
	if _, ok := h.vals[name]; !ok {
		return
	}
	delete(h.vals, name)
	for i, k := range h.keys {
		if k == name {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Set inserts or overwrites name's value, preserving first-seen order.
func (h *Headers) Set(name, value string) {
	name = strings.ToLower(name)
	if _, ok := h.vals[name]; !ok {
		h.keys = append(h.keys, name)
	}
	h.vals[name] = value
}

// Keys returns field names in insertion order.
func (h *Headers) Keys() []string {
	return h.keys
}

// Len reports the number of distinct fields.
func (h *Headers) Len() int {
	return len(h.keys)
}

// ParseLine consumes one header-block line already stripped of its
// trailing "\r\n" by the caller (the byte-stream adapter reads lines
// one at a time via ReadUntil('\n')). An empty line signals the
// blank-line terminator of the header block; the caller stops looping
// when done is true.
//
// A repeated field-name is rejected with ErrDuplicateHeader rather than
// concatenated, since the Request invariant requires uniqueness.
func (h *Headers) ParseLine(line []byte) (done bool, err error) {
	if len(line) > maxHeaderLine {
		return false, ErrHeaderLineTooLong
	}

	if len(line) == 0 {
		return true, nil
	}

	// Obsolete line folding is rejected, not unfolded.
	if line[0] == ' ' || line[0] == '\t' {
		return false, ErrMalformedHeaderLine
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return false, ErrMalformedHeaderLine
	}
	nameRaw := line[:colon]

	// No whitespace is allowed between field-name and colon.
	if bytes.ContainsAny(nameRaw, " \t") {
		return false, ErrMalformedHeaderLine
	}
	if !isTokenTable(nameRaw) {
		return false, ErrMalformedHeaderLine
	}
	name := strings.ToLower(string(nameRaw))

	val := line[colon+1:]
	val = bytes.Trim(val, " \t")
	if containsForbiddenCTL(val) {
		return false, ErrInvalidHeaderValue
	}

	if h.Has(name) {
		return false, ErrDuplicateHeader
	}
	h.Set(name, string(val))
	return false, nil
}

// containsForbiddenCTL reports whether b has a control byte in
// 0x00-0x08, 0x0B-0x1F or 0x7F. HTAB (0x09) is allowed; LF (0x0A) is
// not checked, since the caller splits lines on it.
func containsForbiddenCTL(b []byte) bool {
	for _, c := range b {
		if c == 0x09 {
			continue
		}
		if c <= 0x08 || (c >= 0x0B && c <= 0x1F) || c == 0x7F {
			return true
		}
	}
	return false
}

var allowed [256]bool

func init() {
	for c := byte('0'); c <= '9'; c++ {
		allowed[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		allowed[c] = true
	}
	for c := byte('a'); c <= 'z'; c++ {
		allowed[c] = true
	}
	for _, c := range []byte("!#$%&'*+-.^_`|~") {
		allowed[c] = true
	}
}

func isTokenTable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c > 127 || !allowed[c] {
			return false
		}
	}
	return true
}
