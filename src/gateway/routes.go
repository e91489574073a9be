package gateway

import (
	"fmt"
	"sync"
)

// HandlerFunc handles one API command invocation. The returned value is
// JSON-encoded into a 200 response unless the handler wrote its own
// terminal response through the request context.
type HandlerFunc func(rc *RequestContext) (any, error)

// RouteTable maps a path segment under the API prefix to a handler. It is
// frozen when the gateway starts and immutable afterwards.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]HandlerFunc
	frozen bool
}

// NewRouteTable creates an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{routes: make(map[string]HandlerFunc)}
}

// Register binds a path segment to a handler. Registration fails after the
// table is frozen or when the segment is already taken.
func (t *RouteTable) Register(name string, fn HandlerFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("route name and handler are required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return fmt.Errorf("route table is frozen, cannot register %q", name)
	}
	if _, ok := t.routes[name]; ok {
		return fmt.Errorf("route %q already registered", name)
	}
	t.routes[name] = fn
	return nil
}

// Freeze makes the table immutable.
func (t *RouteTable) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Lookup resolves a path segment.
func (t *RouteTable) Lookup(name string) (HandlerFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.routes[name]
	return fn, ok
}

// Len returns the number of registered routes.
func (t *RouteTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
