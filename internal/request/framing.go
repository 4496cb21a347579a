package request

import (
	"strconv"
	"strings"

	"github.com/watt-toolkit/rawhttpd/internal/headers"
	"github.com/watt-toolkit/rawhttpd/internal/stream"
)

// bodyFraming is the outcome of resolving how (or whether) a request
// carries a body, per spec §4.B "Framing resolution".
type bodyFraming int

const (
	framingNone bodyFraming = iota
	framingContentLength
	framingChunked
)

// resolveFraming implements the three-step framing decision: chunked
// transfer-encoding wins over Content-Length, which wins over the
// unsafe-method-requires-framing rule.
func resolveFraming(method string, h *headers.Headers) (bodyFraming, int, error) {
	te := strings.ToLower(strings.TrimSpace(h.Get("transfer-encoding")))
	if containsToken(te, "chunked") {
		return framingChunked, 0, nil
	}

	clStr := strings.TrimSpace(h.Get("content-length"))
	if clStr != "" {
		cl, err := strconv.Atoi(clStr)
		if err != nil || cl < 0 {
			return framingNone, 0, newErr(BadContentLength, "invalid content-length %q", clStr)
		}
		if cl > maxBodyBytes {
			return framingNone, 0, newErr(OversizeBody, "content-length %d exceeds %d", cl, maxBodyBytes)
		}
		if isSafeMethod(method) && cl > 0 {
			return framingNone, 0, newErr(BadContentLength, "safe method %s carries content-length %d", method, cl)
		}
		return framingContentLength, cl, nil
	}

	if !isSafeMethod(method) {
		return framingNone, 0, newErr(LengthRequired, "unsafe method %s has no framing header", method)
	}
	return framingNone, 0, nil
}

func containsToken(csv, token string) bool {
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == token {
			return true
		}
	}
	return false
}

// readBody dispatches to the content-length or chunked body reader
// according to framing. Transport-layer failures (connection closed,
// read deadline exceeded) are returned unwrapped so the connection
// driver can classify them the same way it classifies a failure
// reading the start line or headers, rather than have them flattened
// into a generic 400 here.
func readBody(r *stream.Reader, framing bodyFraming, contentLength int) ([]byte, error) {
	switch framing {
	case framingContentLength:
		return r.ReadExact(contentLength)
	case framingChunked:
		return readChunkedBody(r)
	default:
		return nil, nil
	}
}
