package request

import (
	"bytes"
	"net/url"
	"strings"
)

// RequestLine represents the three components of an HTTP/1.1 request line:
//
//	<method> <request-target> <HTTP-version>
type RequestLine struct {
	Method        string
	RequestTarget string
	HTTPVersion   string
}

// implementedMethods are the only method tokens the driver will dispatch.
// Other syntactically valid tokens (CONNECT, OPTIONS, TRACE, or anything
// else token-shaped) are recognized but rejected as 501.
var implementedMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "DELETE": {}, "PATCH": {},
}

var safeMethods = map[string]struct{}{
	"GET": {}, "HEAD": {},
}

// supportedVersions is the set of HTTP-version tokens the core recognizes.
// Anything outside it but still matching the version grammar is 505;
// anything not matching the grammar at all is 400.
var supportedVersions = map[string]struct{}{
	"HTTP/1.0": {}, "HTTP/1.1": {}, "HTTP/1": {},
}

// methodTokenTable is the RFC 9110 token charset used for method names.
var methodTokenTable [256]bool

func init() {
	for c := byte('0'); c <= '9'; c++ {
		methodTokenTable[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		methodTokenTable[c] = true
	}
	for c := byte('a'); c <= 'z'; c++ {
		methodTokenTable[c] = true
	}
	for _, c := range []byte("!#$%&'*+.^_`|~-") {
		methodTokenTable[c] = true
	}
}

func isMethodToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c > 127 || !methodTokenTable[c] {
			return false
		}
	}
	return true
}

// isSafeMethod reports whether method is GET or HEAD, the methods §4.B
// treats as never carrying a request body.
func isSafeMethod(method string) bool {
	_, ok := safeMethods[method]
	return ok
}

// ParseStartLine parses a CRLF-stripped start line into its three fields
// and validates each against the grammar and set membership rules in
// spec §4.B. A syntactically valid but unimplemented method yields
// UnknownMethod (501); a syntactically valid but unsupported version
// yields UnsupportedVersion (505); anything ill-formed yields
// MalformedStartLine (400).
func ParseStartLine(line []byte) (*RequestLine, error) {
	fields := bytes.Split(line, []byte(" "))
	if len(fields) != 3 || len(fields[0]) == 0 || len(fields[1]) == 0 || len(fields[2]) == 0 {
		return nil, newErr(MalformedStartLine, "expected exactly 3 space-separated fields, got %d", len(fields))
	}
	methodB, targetB, versionB := fields[0], fields[1], fields[2]

	if !isMethodToken(methodB) {
		return nil, newErr(MalformedStartLine, "invalid method token %q", methodB)
	}
	method := string(methodB)
	if _, ok := implementedMethods[method]; !ok {
		return nil, newErr(UnknownMethod, "method %q not implemented", method)
	}

	version := string(versionB)
	if !isVersionShaped(versionB) {
		return nil, newErr(MalformedStartLine, "invalid version token %q", version)
	}
	if _, ok := supportedVersions[version]; !ok {
		return nil, newErr(UnsupportedVersion, "unsupported version %q", version)
	}

	target := string(targetB)
	if !isOriginForm(target) {
		return nil, newErr(MalformedStartLine, "invalid request-target %q", target)
	}

	return &RequestLine{
		Method:        method,
		RequestTarget: target,
		HTTPVersion:   version,
	}, nil
}

// isVersionShaped checks the HTTP/\d(\.\d)? grammar, independent of set
// membership against supportedVersions.
func isVersionShaped(b []byte) bool {
	const prefix = "HTTP/"
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return false
	}
	rest := b[len(prefix):]
	if len(rest) == 0 || !isDigit(rest[0]) {
		return false
	}
	if len(rest) == 1 {
		return true
	}
	if rest[1] != '.' || len(rest) != 3 || !isDigit(rest[2]) {
		return false
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isOriginForm checks /[\w/]*(\?[\w=&]*)? over the raw (not yet
// percent-decoded) target.
func isOriginForm(target string) bool {
	if target == "" || target[0] != '/' {
		return false
	}
	path, query, hasQuery := strings.Cut(target, "?")
	for i := 0; i < len(path); i++ {
		c := path[i]
		if !(isWordChar(c) || c == '/') {
			return false
		}
	}
	if hasQuery {
		for i := 0; i < len(query); i++ {
			c := query[i]
			if !(isWordChar(c) || c == '=' || c == '&') {
				return false
			}
		}
	}
	return true
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z')
}

// SplitTarget separates a validated origin-form target into its decoded
// path and raw query string.
func SplitTarget(target string) (path string, rawQuery string, err error) {
	rawPath, query, _ := strings.Cut(target, "?")
	decoded, derr := url.PathUnescape(rawPath)
	if derr != nil {
		return "", "", newErr(MalformedStartLine, "bad percent-encoding in path: %v", derr)
	}
	return decoded, query, nil
}
