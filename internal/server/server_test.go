package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/rawhttpd/internal/headers"
	"github.com/watt-toolkit/rawhttpd/internal/request"
	"github.com/watt-toolkit/rawhttpd/internal/response"
	"github.com/watt-toolkit/rawhttpd/internal/router"
)

func newTestServer(t *testing.T, routes []router.Route) (*Server, string) {
	t.Helper()
	return newTestServerWithConfig(t, routes, Config{})
}

func newTestServerWithConfig(t *testing.T, routes []router.Route, cfg Config) (*Server, string) {
	t.Helper()
	table, err := router.NewTable(routes, nil)
	require.NoError(t, err)

	cfg.Addr = "127.0.0.1:0"
	srv, err := Serve(table, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, srv.listener.Addr().String()
}

func TestServeRoundTripSimpleGET(t *testing.T) {
	_, addr := newTestServer(t, []router.Route{
		{Pattern: "/", Handler: func(_ context.Context, _ *request.Request) (any, error) {
			return "ok", nil
		}},
	})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
}

func TestServeRoundTripNotFound(t *testing.T) {
	_, addr := newTestServer(t, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n", statusLine)
}

func TestServeKeepAliveAllowsSecondRequest(t *testing.T) {
	_, addr := newTestServer(t, []router.Route{
		{Pattern: "/", Handler: func(_ context.Context, _ *request.Request) (any, error) {
			return "ok", nil
		}},
	})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	br := bufio.NewReader(conn)
	for i := 0; i < 2; i++ {
		_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
		require.NoError(t, err)
		statusLine, err := br.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
		drainHeaders(t, br)
		body := make([]byte, 2)
		_, err = br.Read(body)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	}
}

func drainHeaders(t *testing.T, br *bufio.Reader) {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			return
		}
	}
}

func TestDecideKeepAliveHTTP10DefaultsFalse(t *testing.T) {
	req := &request.Request{RequestLine: &request.RequestLine{HTTPVersion: "HTTP/1.0"}, Headers: headers.NewHeaders()}
	assert.False(t, decideKeepAlive(req))
}

func TestDecideKeepAliveHTTP11DefaultsTrue(t *testing.T) {
	req := &request.Request{RequestLine: &request.RequestLine{HTTPVersion: "HTTP/1.1"}, Headers: headers.NewHeaders()}
	assert.True(t, decideKeepAlive(req))
}

func TestDecideKeepAliveHTTP11CloseOverride(t *testing.T) {
	h := headers.NewHeaders()
	h.Set("connection", "close")
	req := &request.Request{RequestLine: &request.RequestLine{HTTPVersion: "HTTP/1.1"}, Headers: h}
	assert.False(t, decideKeepAlive(req))
}

func TestRenderStatusBodyDefaultFallback(t *testing.T) {
	table, err := router.NewTable(nil, nil)
	require.NoError(t, err)
	ct, body := renderStatusBody(table, response.NotFound)
	assert.Equal(t, "text/html; charset=utf-8", ct)
	assert.Contains(t, string(body), "Not found")
}

func TestServeWritesContinueBeforeBodyArrives(t *testing.T) {
	_, addr := newTestServer(t, []router.Route{
		{Pattern: "/upload", Handler: func(_ context.Context, req *request.Request) (any, error) {
			return string(req.Body), nil
		}},
	})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 2\r\nExpect: 100-continue\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	continueLine, err := br.ReadString('\n')
	require.NoError(t, err, "expected 100 Continue before body is sent")
	assert.Equal(t, "HTTP/1.1 100 Continue\r\n", continueLine)

	blank, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", blank)

	_, err = conn.Write([]byte("hi"))
	require.NoError(t, err)

	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", statusLine)
	drainHeaders(t, br)
	body := make([]byte, 2)
	_, err = br.Read(body)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))
}

func TestRequestTimeoutCutsOffSlowClientBeforeIdleTimeout(t *testing.T) {
	_, addr := newTestServerWithConfig(t, []router.Route{
		{Pattern: "/", Handler: func(_ context.Context, _ *request.Request) (any, error) {
			return "ok", nil
		}},
	}, Config{
		IdleTimeout:     3 * time.Second,
		RequestTimeout:  200 * time.Millisecond,
		ResponseTimeout: 2 * time.Second,
	})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second))

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	// Stall past RequestTimeout without finishing the header block;
	// IdleTimeout is far larger, so only the tightened per-request
	// deadline can be responsible for cutting this connection off.

	start := time.Now()
	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, "HTTP/1.1 408 Request Timeout\r\n", statusLine)
	assert.Less(t, elapsed, 1500*time.Millisecond, "should be cut off by RequestTimeout, not IdleTimeout")
}
