// Package router compiles the path-pattern DSL into anchored regex
// matchers and resolves a request path against them, first-hit in
// registration order. There is no longest-prefix or specificity
// resolution: route ordering at registration time is the only
// precedence rule.
package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/watt-toolkit/rawhttpd/internal/request"
)

// Handler is the contract a registered route fulfils: given a request
// (path parameters reachable via req.Params), it returns a value for
// the response encoder to render, or an error.
type Handler func(ctx context.Context, req *request.Request) (any, error)

// pathParamPattern matches a <name> placeholder in the route DSL.
var pathParamPattern = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>`)

type compiledRoute struct {
	pattern *regexp.Regexp
	names   []string
	handler Handler
}

// Route pairs a path-pattern DSL string with its handler. NewTable takes
// a slice of these, not a map, because matching order is registration
// order: a map's range order is unspecified in Go, which would silently
// randomize which of two overlapping routes wins on every process start.
type Route struct {
	Pattern string
	Handler Handler
}

// Table is the compiled route set: an ordered sequence of path routes
// and a status-code-keyed mapping used only for error rendering.
type Table struct {
	routes   []compiledRoute
	statuses map[int]Handler
}

// NewTable compiles routes, in the order given, and statuses (integer
// status-code keys) into a Table. A 404 handler is injected if the
// caller didn't register one, per spec's route table invariant.
func NewTable(routes []Route, statuses map[int]Handler) (*Table, error) {
	t := &Table{
		statuses: make(map[int]Handler, len(statuses)),
	}
	for code, h := range statuses {
		t.statuses[code] = h
	}
	if _, ok := t.statuses[404]; !ok {
		t.statuses[404] = DefaultNotFound
	}

	for _, r := range routes {
		cr, err := compile(r.Pattern, r.Handler)
		if err != nil {
			return nil, err
		}
		t.routes = append(t.routes, cr)
	}
	return t, nil
}

// Add registers a single compiled route at the end of the matching
// order, used when callers need deterministic registration order
// rather than ranging over a map.
func (t *Table) Add(pattern string, handler Handler) error {
	cr, err := compile(pattern, handler)
	if err != nil {
		return err
	}
	t.routes = append(t.routes, cr)
	return nil
}

// SetStatus registers (or overwrites) a status-keyed error handler.
func (t *Table) SetStatus(code int, handler Handler) {
	t.statuses = initStatuses(t.statuses)
	t.statuses[code] = handler
}

func initStatuses(m map[int]Handler) map[int]Handler {
	if m == nil {
		return make(map[int]Handler)
	}
	return m
}

func compile(pattern string, handler Handler) (compiledRoute, error) {
	var names []string
	for _, m := range pathParamPattern.FindAllStringSubmatch(pattern, -1) {
		names = append(names, m[1])
	}

	re, err := compileNamedPattern(pattern)
	if err != nil {
		return compiledRoute{}, err
	}

	return compiledRoute{pattern: re, names: names, handler: handler}, nil
}

// compileNamedPattern walks pattern once, translating each <name>
// occurrence into an anchored named capture group and escaping every
// other character literally.
func compileNamedPattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')

	rest := pattern
	for {
		loc := pathParamPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		sb.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		name := rest[loc[2]:loc[3]]
		sb.WriteString("(?P<" + name + ">[^/]+)")
		rest = rest[loc[1]:]
	}
	sb.WriteByte('$')

	return regexp.Compile(sb.String())
}

// Resolve matches path against the registered routes in order and
// returns the first hit along with its extracted path parameters.
func (t *Table) Resolve(path string) (Handler, map[string]string, bool) {
	for _, route := range t.routes {
		m := route.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string, len(route.names))
		for i, name := range route.pattern.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			params[name] = m[i]
		}
		return route.handler, params, true
	}
	return nil, nil, false
}

// Status returns the handler registered for a status code, used by the
// connection driver to render a custom error body.
func (t *Table) Status(code int) (Handler, bool) {
	h, ok := t.statuses[code]
	return h, ok
}

// DefaultNotFound is injected for status 404 when the caller doesn't
// register one.
func DefaultNotFound(_ context.Context, _ *request.Request) (any, error) {
	return "<h1>Not found</h1>", nil
}
