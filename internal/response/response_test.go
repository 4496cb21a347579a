package response

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/rawhttpd/internal/stream"
)

func TestRenderString(t *testing.T) {
	ct, body, err := Render("ok")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Equal(t, "ok", string(body))
}

func TestRenderMap(t *testing.T) {
	ct, body, err := Render(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=utf-8", ct)
	assert.JSONEq(t, `{"a":1}`, string(body))
}

func TestRenderFileBody(t *testing.T) {
	ct, body, err := Render(FileBody{Reader: strings.NewReader("hi"), Path: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
	assert.Equal(t, "hi", string(body))
}

func TestRenderNilIsEncodingFailure(t *testing.T) {
	_, _, err := Render(nil)
	require.Error(t, err, "nil is not one of the string/map/FileBody shapes a handler may return")
}

func TestRenderUnknownExtensionDefaultsOctetStream(t *testing.T) {
	ct, _, err := Render(FileBody{Reader: strings.NewReader("x"), Path: "a.bin"})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", ct)
}

func TestWriteHeaderOrderAndGETScenario(t *testing.T) {
	var buf bytes.Buffer
	rw := NewWriter(stream.NewWriter(&buf))
	require.NoError(t, rw.Write(OK, "text/html; charset=utf-8", []byte("ok"), true))

	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Connection: keep-alive\r\n"+
		"Content-Length: 2\r\n\r\nok", buf.String())
}

func TestWriteHeadSuppressesBody(t *testing.T) {
	var buf bytes.Buffer
	rw := NewWriter(stream.NewWriter(&buf))
	require.NoError(t, rw.WriteHead(OK, "text/html; charset=utf-8", []byte("ok"), true))

	assert.Contains(t, buf.String(), "Content-Length: 2\r\n\r\n")
	assert.NotContains(t, buf.String(), "ok")
}

func TestWriteNotFoundScenario(t *testing.T) {
	var buf bytes.Buffer
	rw := NewWriter(stream.NewWriter(&buf))
	require.NoError(t, rw.Write(NotFound, "text/html; charset=utf-8", []byte("<h1>Not found</h1>"), false))

	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Connection: close\r\n"+
		"Content-Length: 18\r\n\r\n<h1>Not found</h1>", buf.String())
}

func TestReasonPhraseUnknownStatus(t *testing.T) {
	assert.Equal(t, "Unknown Status", ReasonPhrase(StatusCode(499)))
}

func TestNoContentOmitsContentLength(t *testing.T) {
	var buf bytes.Buffer
	rw := NewWriter(stream.NewWriter(&buf))
	require.NoError(t, rw.Write(NoContent, "", nil, true))
	assert.NotContains(t, buf.String(), "Content-Length")
}
