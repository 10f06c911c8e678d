// Package bridge ties the engine connection, the dispatch registry and the
// engine supervisor together on one event loop.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowptr/painter-bridge/internal/dispatch"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
	"github.com/flowptr/painter-bridge/internal/rpc"
	"github.com/flowptr/painter-bridge/internal/supervisor"
	"github.com/flowptr/painter-bridge/internal/transport"
)

// DefaultCallTimeout bounds Call when ctx carries no deadline
const DefaultCallTimeout = 30 * time.Second

var (
	// ErrNotConnected is returned when a push is attempted without an engine
	ErrNotConnected = errors.New("engine not connected")
	// ErrCallTimeout is returned when the engine does not answer a Call in time
	ErrCallTimeout = errors.New("engine call timed out")
	// ErrDisconnected fails pending calls when the engine goes away
	ErrDisconnected = errors.New("engine disconnected")
)

// Transport is the engine-facing connection
type Transport interface {
	IsConnected() bool
	SendRaw(ctx context.Context, data []byte) error
}

// Restarter is the part of the supervisor the bridge drives
type Restarter interface {
	Bootstrap(reason string) error
	Stop()
}

// Options configures a Bridge
type Options struct {
	Loop       *Loop
	Registry   *dispatch.Registry
	Transport  Transport
	Supervisor Restarter
}

// Bridge is the host-side end of the engine connection
type Bridge struct {
	loop       *Loop
	dispatcher *dispatch.Dispatcher
	transport  Transport
	supervisor Restarter
	ids        *rpc.IDCounter

	ctx   context.Context
	ready atomic.Bool

	mu       sync.Mutex
	pending  map[int64]chan *rpc.Message
	watchers []func(connected bool)
}

// New creates a bridge. The loop is created when not supplied.
func New(opts Options) *Bridge {
	if opts.Loop == nil {
		opts.Loop = NewLoop()
	}
	if opts.Registry == nil {
		opts.Registry = dispatch.NewRegistry()
	}
	b := &Bridge{
		loop:       opts.Loop,
		dispatcher: dispatch.NewDispatcher(opts.Registry),
		transport:  opts.Transport,
		supervisor: opts.Supervisor,
		ids:        rpc.NewIDCounter(),
		ctx:        context.Background(),
		pending:    make(map[int64]chan *rpc.Message),
	}
	b.dispatcher.SetResponseHandler(b.resolve)
	return b
}

// SetTransport attaches the engine connection
func (b *Bridge) SetTransport(t Transport) {
	b.transport = t
}

// SetSupervisor attaches the engine supervisor
func (b *Bridge) SetSupervisor(s Restarter) {
	b.supervisor = s
}

// Loop returns the bridge event loop
func (b *Bridge) Loop() *Loop {
	return b.loop
}

// Registry returns the command registry
func (b *Bridge) Registry() *dispatch.Registry {
	return b.dispatcher.Registry()
}

// Dispatcher returns the inbound message dispatcher
func (b *Bridge) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

// Run drives the loop until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx = context.WithoutCancel(ctx)
	return b.loop.Run(ctx)
}

// Handlers returns transport callbacks that forward onto the loop
func (b *Bridge) Handlers() transport.Handlers {
	return transport.Handlers{
		OnMessage: func(info transport.ConnectionInfo, data []byte) {
			b.loop.Post(func() { b.HandleMessage(info.ID, data) })
		},
		OnConnectionChanged: func(connected bool, info transport.ConnectionInfo) {
			b.loop.Post(func() { b.ConnectionChanged(connected, info.ID) })
		},
	}
}

// HandleMessage dispatches one inbound frame and sends the reply, if any.
// Runs on the loop.
func (b *Bridge) HandleMessage(connID string, data []byte) {
	ctx := context.WithValue(b.ctx, logger.ContextKeyConnectionID, connID)
	reply := b.dispatcher.HandleMessage(ctx, data)
	if reply == nil {
		return
	}
	if b.transport == nil {
		logger.Warn("bridge: no transport, reply dropped")
		return
	}
	if err := b.transport.SendRaw(ctx, reply); err != nil {
		logger.Warn("bridge: failed to send reply: %v", err)
	}
}

// ConnectionChanged reacts to the engine connecting or going away. Losing
// the engine clears the ready flag, fails pending calls and asks the
// supervisor to relaunch it. Runs on the loop.
func (b *Bridge) ConnectionChanged(connected bool, connID string) {
	if connected {
		logger.Info("bridge: engine connected (connection %s)", connID)
	} else {
		logger.Warn("bridge: engine connection lost (connection %s)", connID)
		b.ready.Store(false)
		b.failPending(ErrDisconnected)
		if b.supervisor != nil {
			_ = b.supervisor.Bootstrap(supervisor.ReasonDisconnect)
		}
	}

	b.mu.Lock()
	watchers := append([]func(bool){}, b.watchers...)
	b.mu.Unlock()
	for _, fn := range watchers {
		fn(connected)
	}
}

// WatchConnection registers a connection-changed listener. Listeners run on the loop.
func (b *Bridge) WatchConnection(fn func(connected bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// IsConnected reports whether an engine is connected
func (b *Bridge) IsConnected() bool {
	return b.transport != nil && b.transport.IsConnected()
}

// SetReady sets the engine-ready flag
func (b *Bridge) SetReady(ready bool) {
	b.ready.Store(ready)
}

// Ready reports whether the engine has signalled readiness
func (b *Bridge) Ready() bool {
	return b.ready.Load()
}

// SendCommand pushes a host-originated command to the engine. It is a
// notification: no reply is awaited. Without a connection nothing is
// written and a warning is logged.
func (b *Bridge) SendCommand(method string, params any) error {
	if !b.IsConnected() {
		logger.Warn("bridge: engine not connected, %s not sent", method)
		metrics.RecordCommandSent(method, "not_connected")
		return ErrNotConnected
	}
	_, err := b.send(method, params)
	return err
}

// Notify posts SendCommand onto the loop. Safe from any goroutine.
func (b *Bridge) Notify(method string, params any) {
	b.loop.Post(func() { _ = b.SendCommand(method, params) })
}

func (b *Bridge) send(method string, params any) (int64, error) {
	id := b.ids.Next()
	frame, err := rpc.NewCommand(id, method, params)
	if err != nil {
		logger.Error("bridge: failed to encode %s: %v", method, err)
		metrics.RecordCommandSent(method, "error")
		return id, err
	}
	if err := b.transport.SendRaw(b.ctx, frame); err != nil {
		metrics.RecordCommandSent(method, "error")
		return id, err
	}
	logger.Debug("bridge: sent %s (id %d)", method, id)
	metrics.RecordCommandSent(method, "ok")
	return id, nil
}

// Call sends a command and waits for the engine's correlated reply. An
// error reply is returned as *rpc.Error. Must not be called from the loop.
func (b *Bridge) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	ch := make(chan *rpc.Message, 1)
	var id int64
	var sendErr error
	err := b.loop.Do(ctx, func() {
		if ctx.Err() != nil {
			return
		}
		if !b.IsConnected() {
			sendErr = ErrNotConnected
			return
		}
		id = b.ids.Next()
		b.mu.Lock()
		b.pending[id] = ch
		b.mu.Unlock()

		frame, err := rpc.NewCommand(id, method, params)
		if err == nil {
			err = b.transport.SendRaw(b.ctx, frame)
		}
		if err != nil {
			b.forget(id)
			sendErr = err
			metrics.RecordCommandSent(method, "error")
			return
		}
		metrics.RecordCommandSent(method, "ok")
	})
	if err != nil {
		// The closure may still be running; id is only touched on the loop.
		b.loop.Post(func() {
			if id != 0 {
				b.forget(id)
			}
		})
		return nil, err
	}
	if sendErr != nil {
		return nil, fmt.Errorf("bridge: call %s: %w", method, sendErr)
	}

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, ErrDisconnected
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		b.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrCallTimeout
		}
		return nil, ctx.Err()
	}
}

// Pending returns the number of calls awaiting a reply
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) resolve(msg *rpc.Message) bool {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		return false
	}
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

func (b *Bridge) forget(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

func (b *Bridge) failPending(err error) {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[int64]chan *rpc.Message)
	b.mu.Unlock()
	if len(pending) > 0 {
		logger.Warn("bridge: failing %d pending call(s): %v", len(pending), err)
	}
	for _, ch := range pending {
		ch <- nil
	}
}

// Shutdown tells the engine to quit and stops the supervisor. Must not be
// called from the loop.
func (b *Bridge) Shutdown(ctx context.Context) error {
	return b.loop.Do(ctx, func() {
		if b.IsConnected() {
			_ = b.SendCommand("QUIT", map[string]any{})
		}
		if b.supervisor != nil {
			b.supervisor.Stop()
		}
	})
}
