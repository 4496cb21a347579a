package request

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// ParsedBody interprets the raw body according to contentType, per spec
// §4.B "Body parsing". The connection driver never calls it: Body always
// holds the raw bytes, and a handler that wants a decoded body calls
// ParsedBody itself.
func (req *Request) ParsedBody(contentType string) (any, error) {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	mediaType = strings.ToLower(mediaType)

	switch mediaType {
	case "application/json":
		if !utf8.Valid(req.Body) {
			return nil, newErr(BadBodyParse, "body is not valid UTF-8")
		}
		var v any
		if err := json.Unmarshal(req.Body, &v); err != nil {
			return nil, newErr(BadBodyParse, "invalid JSON body: %v", err)
		}
		return v, nil

	case "application/x-www-form-urlencoded":
		if !utf8.Valid(req.Body) {
			return nil, newErr(BadBodyParse, "body is not valid UTF-8")
		}
		values, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return nil, newErr(BadBodyParse, "invalid form body: %v", err)
		}
		return values, nil

	default:
		return req.Body, nil
	}
}
