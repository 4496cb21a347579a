// Package request implements the ingestion core's parser: start line,
// early route resolution, header block, Expect handling, and body
// framing, driven incrementally off a stream.Reader.
package request

import (
	"strings"

	"github.com/watt-toolkit/rawhttpd/internal/headers"
	"github.com/watt-toolkit/rawhttpd/internal/stream"
)

// RequestState tracks which phase of the per-request grammar has been
// consumed; it mirrors the connection-level state machine in spec §3
// but only covers the parser's slice of it.
type RequestState int

const (
	StateInitialized RequestState = iota
	StateParsingHeaders
	StateAwaitingContinue
	StateParsingBody
	StateDone
	StateError
)

var requestStateName = map[RequestState]string{
	StateInitialized:      "initialized",
	StateParsingHeaders:   "parsing_headers",
	StateAwaitingContinue: "awaiting_continue",
	StateParsingBody:      "parsing_body",
	StateDone:             "done",
	StateError:            "error",
}

func (s RequestState) String() string { return requestStateName[s] }

// Request holds the fully parsed state of one HTTP request.
type Request struct {
	RequestLine *RequestLine
	Headers     *headers.Headers
	Path        string
	RawQuery    string
	Body        []byte
	Params      map[string]string

	state         RequestState
	needsContinue bool
	framing       bodyFraming
	contentLength int
}

// NeedsContinue reports whether the client sent Expect: 100-continue
// and is waiting on the driver to write the interim response before the
// body is read. The driver polls this once, between header parsing and
// body reading, and is responsible for the actual write; the parser
// never touches the connection's writer.
func (r *Request) NeedsContinue() bool {
	return r.needsContinue
}

// RouteResolver is consulted immediately after the start line, before
// any header bytes are read, per spec §4.B "Early route resolution". A
// false return aborts parsing with UnroutedPath (404) without reading
// the header block, so bandwidth is never spent on an unrouted path's
// headers or body.
type RouteResolver func(method, path string) bool

// ParseHeaders drives the parser through start line, early route check,
// and the header block, stopping short of the body: spec §3's Awaiting100
// connection state sits between headers and body precisely so the driver
// can write a 100-continue interim response before blocking on a body
// read a withholding client hasn't sent yet. Once this returns with no
// error, the caller inspects NeedsContinue(), optionally writes the
// interim response, then calls ReadBody to finish the request.
// resolveRoute may be nil, in which case routing is deferred to the
// caller. onStartLine, if non-nil, is invoked the instant the start
// line has been read and validated — the driver uses this to tighten
// its read deadline from the connection-idle budget to the
// per-request budget as soon as a request is actually in flight,
// rather than only after the whole request (headers and body) has
// already been read.
func ParseHeaders(r *stream.Reader, resolveRoute RouteResolver, onStartLine func()) (*Request, error) {
	req := &Request{
		state:   StateInitialized,
		Headers: headers.NewHeaders(),
	}

	startLineRaw, err := r.ReadUntil('\n')
	if err != nil {
		return nil, wrapStreamErr(err, MalformedStartLine)
	}
	rl, err := ParseStartLine(trimCRLF(startLineRaw))
	if err != nil {
		req.state = StateError
		return nil, err
	}
	req.RequestLine = rl
	if onStartLine != nil {
		onStartLine()
	}

	path, rawQuery, err := SplitTarget(rl.RequestTarget)
	if err != nil {
		req.state = StateError
		return nil, err
	}
	req.Path = path
	req.RawQuery = rawQuery

	if resolveRoute != nil && !resolveRoute(rl.Method, path) {
		req.state = StateError
		return nil, newErr(UnroutedPath, "no route for %s %s", rl.Method, path)
	}

	req.state = StateParsingHeaders
	for {
		line, err := r.ReadUntil('\n')
		if err != nil {
			return nil, wrapStreamErr(err, MalformedHeader)
		}
		done, herr := req.Headers.ParseLine(trimCRLF(line))
		if herr != nil {
			req.state = StateError
			return nil, translateHeaderErr(herr)
		}
		if done {
			break
		}
	}

	if req.Headers.Get("host") == "" {
		req.state = StateError
		return nil, newErr(MissingHost, "request has no Host header")
	}

	if expect := strings.TrimSpace(req.Headers.Get("expect")); expect != "" {
		if !strings.EqualFold(expect, "100-continue") {
			req.state = StateError
			return nil, newErr(BadExpectation, "unsupported expectation %q", expect)
		}
		req.needsContinue = true
	}

	framing, contentLength, err := resolveFraming(rl.Method, req.Headers)
	if err != nil {
		req.state = StateError
		return nil, err
	}
	req.framing = framing
	req.contentLength = contentLength

	req.state = StateAwaitingContinue
	return req, nil
}

// ReadBody reads the body framed by the headers ParseHeaders already
// resolved. The driver calls this only after handling NeedsContinue(),
// so a compliant Expect: 100-continue client never has its body read
// attempted before it has seen the interim response.
func (req *Request) ReadBody(r *stream.Reader) error {
	req.state = StateParsingBody
	body, err := readBody(r, req.framing, req.contentLength)
	if err != nil {
		req.state = StateError
		return err
	}
	req.Body = body

	req.state = StateDone
	return nil
}

// ParseFrom drives the full parser (start line, early route check,
// headers, framing/body) over r in one call. This is a convenience for
// callers that don't need to act on NeedsContinue() between headers and
// body (e.g. tests that pre-feed the whole request); the connection
// driver uses ParseHeaders/ReadBody directly so it can write the
// 100-continue interim response at the right point in the exchange.
func ParseFrom(r *stream.Reader, resolveRoute RouteResolver) (*Request, error) {
	req, err := ParseHeaders(r, resolveRoute, nil)
	if err != nil {
		return nil, err
	}
	if err := req.ReadBody(r); err != nil {
		return nil, err
	}
	return req, nil
}

// wrapStreamErr converts a stream-layer line-too-long failure into the
// parser's ParseError taxonomy, tagging it with whichever phase was
// reading the line (start line vs. header line) so the kind reported to
// the driver's log matches where parsing actually failed. Any other
// stream error, such as a clean close, passes through unchanged; the
// driver treats it as a transport failure, not a protocol error, per
// spec §7.
func wrapStreamErr(err error, tooLongKind ErrorKind) error {
	if err == stream.ErrLineTooLong {
		return newErr(tooLongKind, "%v", err)
	}
	return err
}

func translateHeaderErr(err error) error {
	switch err {
	case headers.ErrDuplicateHeader:
		return newErr(DuplicateHeader, "%v", err)
	default:
		return newErr(MalformedHeader, "%v", err)
	}
}
