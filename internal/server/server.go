// Package server wires the listener, the compiled route table, and the
// per-connection driver: the state machine that frames one request at
// a time off a raw connection, dispatches it, and decides whether the
// connection survives to frame another.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/watt-toolkit/rawhttpd/internal/request"
	"github.com/watt-toolkit/rawhttpd/internal/response"
	"github.com/watt-toolkit/rawhttpd/internal/router"
	"github.com/watt-toolkit/rawhttpd/internal/stream"
)

// DefaultAddr is the listening endpoint used when Config.Addr is empty.
const DefaultAddr = "127.0.0.1:1818"

// Config controls the bootstrap call, §4.F, and the three timeouts
// §4.E/§5 name (idle, per-request, per-response). Callers populate it
// from flags, env, or a file; the example binary in cmd/httpserver
// wires constants directly, following the teacher's own convention.
type Config struct {
	// Addr defaults to DefaultAddr if empty.
	Addr string

	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ResponseTimeout time.Duration
}

// DefaultConfig returns the timeouts spec'd in §4.E/§5: 180s idle, 30s
// per-request, 60s per-response.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		IdleTimeout:     180 * time.Second,
		RequestTimeout:  30 * time.Second,
		ResponseTimeout: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	return c
}

// Server owns the listener and the compiled route table shared
// read-only across every connection driver it spawns.
type Server struct {
	Addr     string
	listener net.Listener
	table    *router.Table
	cfg      Config
	closed   atomic.Bool
}

// Serve binds a TCP listener and spawns the per-connection driver for
// every accepted connection. The route table, already compiled by
// router.NewTable, is shared by every driver and never mutated here.
func Serve(table *router.Table, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", cfg.Addr, err)
	}

	s := &Server{Addr: cfg.Addr, listener: l, table: table, cfg: cfg}
	go s.acceptLoop()
	return s, nil
}

// Close stops accepting new connections. It is idempotent.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		go s.drive(conn)
	}
}

// drive runs the connection state machine described in spec §4.E:
// Idle -> ReadingStartLine -> ReadingHeaders -> (Awaiting100)? ->
// ReadingBody -> Dispatching -> Writing -> (Idle | Closed). Only one
// request is ever in flight per connection.
func (s *Server) drive(conn net.Conn) {
	defer conn.Close()

	remoteHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	sr := stream.NewReader(conn)
	sw := stream.NewWriter(conn)
	rw := response.NewWriter(sw)

	keepAlive := true
	for keepAlive {
		start := time.Now()
		req, method, path, parseErr := s.parseOne(sr, rw, conn)

		if parseErr == errConnIdle || parseErr == errConnAborted {
			return
		}
		if parseErr != nil {
			keepAlive = s.writeParseError(rw, parseErr, remoteHost, method, path, start)
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(s.cfg.ResponseTimeout))
		keepAlive = s.dispatch(rw, req)
		log.Printf("%s\t%s\t%s\t%s", remoteHost, req.RequestLine.Method, req.Path, fmtDur(time.Since(start)))
	}
}

var (
	errConnIdle    = errors.New("server: idle timeout, no request started")
	errConnAborted = errors.New("server: transport failure, closing silently")
)

// parseOne runs the parser over one request, translating a clean EOF on
// an otherwise-idle connection into errConnIdle (close, no reply) and
// any other transport failure into errConnAborted (close, no reply).
// Protocol errors are returned as-is for the caller to render.
//
// The read deadline starts at the connection-idle budget and tightens
// to the per-request budget the instant the start line is read (via
// the onStartLine hook passed to ParseHeaders), so a client that
// trickles headers or body bytes in slowly is bounded by
// RequestTimeout for the rest of the exchange, not by the much longer
// IdleTimeout. 100-continue is written between ParseHeaders and
// ReadBody, the one point in the exchange where spec §3 places the
// Awaiting100 state, so a client withholding its body until it sees
// the interim response never has ReadBody block ahead of that write.
func (s *Server) parseOne(sr *stream.Reader, rw *response.Writer, conn net.Conn) (req *request.Request, method, path string, err error) {
	resolver := func(m, p string) bool {
		method, path = m, p
		_, _, found := s.table.Resolve(p)
		return found
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	req, err = request.ParseHeaders(sr, resolver, func() {
		conn.SetReadDeadline(time.Now().Add(s.cfg.RequestTimeout))
	})
	if err != nil {
		return nil, method, path, classifyReadErr(err, method, path)
	}

	if req.NeedsContinue() {
		if werr := rw.WriteContinue(); werr != nil {
			return nil, method, path, errConnAborted
		}
	}

	if berr := req.ReadBody(sr); berr != nil {
		return nil, method, path, classifyReadErr(berr, method, path)
	}

	return req, method, path, nil
}

// classifyReadErr turns a raw transport failure from either ParseHeaders
// or ReadBody into the driver's own sentinels (silent idle close,
// silent abort, or a synthesized 408), and passes a protocol-level
// *request.ParseError through untouched. method/path are empty only
// when the failure happened before or during the start line itself;
// once they're set, any later transport failure — including one during
// the body read — is mid-request, never silent-idle.
func classifyReadErr(err error, method, path string) error {
	if _, ok := err.(*request.ParseError); ok {
		return err
	}

	if err == stream.ErrConnectionClosed {
		if method == "" && path == "" {
			return errConnIdle
		}
		return errConnAborted
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		if method == "" && path == "" {
			// Idle deadline expired before a complete start line had
			// been read: write nothing and close, per §4.E step 2. A
			// start line that was only partly received counts as idle
			// here too; no 408 is written for it.
			return errConnIdle
		}
		return &request.ParseError{
			Kind:   request.RequestTimeout,
			Detail: "request deadline exceeded mid-request",
		}
	}
	return errConnAborted
}

// writeParseError converts a *request.ParseError into the canonical
// error response and reports the resulting keep_alive decision
// (always false, per §4.E step 5: "any error response forces false").
func (s *Server) writeParseError(rw *response.Writer, err error, remoteHost, method, path string, start time.Time) bool {
	pe, ok := err.(*request.ParseError)
	if !ok {
		log.Printf("%s\t%s\t%s\tinternal error: %v", remoteHost, method, path, err)
		pe = &request.ParseError{Kind: request.BadBodyParse, Detail: err.Error()}
	}

	status := response.StatusCode(pe.Status())
	contentType, body := renderStatusBody(s.table, status)

	if werr := rw.Write(status, contentType, body, false); werr != nil {
		log.Printf("%s\t%s\t%s\twriting error response: %v", remoteHost, method, path, werr)
	}
	log.Printf("%s\t%s\t%s\t%d\t%s\terr=%q", remoteHost, method, path, int(status), fmtDur(time.Since(start)), pe.Detail)
	return false
}

// dispatch invokes the resolved handler, renders its return value, and
// computes the keep_alive decision per §4.E step 5.
func (s *Server) dispatch(rw *response.Writer, req *request.Request) bool {
	handler, params, found := s.table.Resolve(req.Path)
	if !found {
		contentType, body := renderStatusBody(s.table, response.NotFound)
		rw.Write(response.NotFound, contentType, body, false)
		return false
	}
	req.Params = params

	val, err := handler(context.Background(), req)
	if err != nil {
		contentType, body := renderStatusBody(s.table, response.InternalServerError)
		rw.Write(response.InternalServerError, contentType, body, false)
		return false
	}

	contentType, body, rerr := response.Render(val)
	if rerr != nil {
		contentType, body = renderStatusBody(s.table, response.InternalServerError)
		rw.Write(response.InternalServerError, contentType, body, false)
		return false
	}

	keepAlive := decideKeepAlive(req)

	if req.RequestLine.Method == "HEAD" {
		if werr := rw.WriteHead(response.OK, contentType, body, keepAlive); werr != nil {
			return false
		}
		return keepAlive
	}
	if werr := rw.Write(response.OK, contentType, body, keepAlive); werr != nil {
		return false
	}
	return keepAlive
}

// decideKeepAlive implements §4.E step 5's version/Connection-header
// table for a successful (2xx) response. Error responses never reach
// this function; they force keep_alive=false unconditionally.
func decideKeepAlive(req *request.Request) bool {
	conn := strings.ToLower(strings.TrimSpace(req.Headers.Get("connection")))
	switch req.RequestLine.HTTPVersion {
	case "HTTP/1.0", "HTTP/1":
		return conn == "keep-alive"
	default:
		return conn != "close"
	}
}

// renderStatusBody renders the registered status-keyed handler for
// code if one exists, otherwise falls back to a bare status body.
func renderStatusBody(table *router.Table, code response.StatusCode) (contentType string, body []byte) {
	if handler, ok := table.Status(int(code)); ok {
		if val, err := handler(context.Background(), nil); err == nil {
			if ct, b, rerr := response.Render(val); rerr == nil {
				return ct, b
			}
		}
	}
	return "text/html; charset=utf-8", []byte(fmt.Sprintf("<h1>%s</h1>", response.ReasonPhrase(code)))
}

func fmtDur(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}
