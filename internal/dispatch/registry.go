// Package dispatch maps engine command names onto in-process handlers and
// turns inbound request frames into exactly one response frame.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/rpc"
)

// Handler executes one command. A returned error becomes a -32000 error envelope.
type Handler func(ctx context.Context, params rpc.Params) (any, error)

// Registry stores handlers under uppercase command names
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string // preserve first registration order
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		order:    make([]string, 0),
	}
}

// Register stores handler under the uppercase form of name. Registering a
// name again replaces the earlier handler.
func (r *Registry) Register(name string, handler Handler) {
	command := rpc.NormalizeCommand(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[command]; exists {
		logger.Debug("dispatch: replacing handler for %s", command)
	} else {
		r.order = append(r.order, command)
	}
	r.handlers[command] = handler
}

// Lookup returns the handler for a command name in any case
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[rpc.NormalizeCommand(name)]
	return h, ok
}

// Commands returns registered command names in registration order
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedCommands returns registered command names alphabetically
func (r *Registry) SortedCommands() []string {
	out := r.Commands()
	sort.Strings(out)
	return out
}

// Len returns the number of registered commands
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Invoke runs the handler for command with raw params. Panics are captured
// and returned as errors.
func (r *Registry) Invoke(ctx context.Context, command string, raw []byte) (result any, err error) {
	handler, ok := r.Lookup(command)
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", command)
	}

	params, err := rpc.DecodeParams(raw)
	if err != nil {
		return nil, err
	}

	return call(ctx, command, handler, params)
}

func call(ctx context.Context, command string, handler Handler, params rpc.Params) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("dispatch: handler %s panicked: %v\n%s", command, rec, debug.Stack())
			result = nil
			err = fmt.Errorf("%s: %v", command, rec)
		}
	}()
	return handler(ctx, params)
}
