package host

import "sync"

// Hub is an in-process Events implementation
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(map[string]any)
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]func(map[string]any))}
}

// Subscribe implements Events
func (h *Hub) Subscribe(event string, fn func(params map[string]any)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[event] == nil {
		h.subs[event] = make(map[int]func(map[string]any))
	}
	h.subs[event][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[event], id)
	}
}

// Emit calls every subscriber of event. Subscribers run on the caller's goroutine.
func (h *Hub) Emit(event string, params map[string]any) {
	h.mu.Lock()
	fns := make([]func(map[string]any), 0, len(h.subs[event]))
	for _, fn := range h.subs[event] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	if params == nil {
		params = map[string]any{}
	}
	for _, fn := range fns {
		fn(params)
	}
}
