package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
	"github.com/flowptr/painter-bridge/internal/rpc"
)

// Observer is told about every request that parsed, whatever its outcome.
type Observer func(command string, msg *rpc.Message)

// ResponseHandler receives reply frames (result/error without method).
// It reports whether the reply was consumed.
type ResponseHandler func(msg *rpc.Message) bool

// Dispatcher turns raw inbound frames into response frames
type Dispatcher struct {
	registry *Registry

	mu        sync.RWMutex
	observers []Observer
	responses ResponseHandler
}

// NewDispatcher creates a dispatcher over registry
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Observe adds a message-observed listener
func (d *Dispatcher) Observe(fn Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// SetResponseHandler installs the sink for reply frames
func (d *Dispatcher) SetResponseHandler(fn ResponseHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = fn
}

// HandleMessage processes one inbound frame. It returns the response frame
// to send, or nil when the frame is dropped. It never panics.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) []byte {
	msg, err := rpc.Decode(raw)
	if err != nil {
		logger.Warn("dispatch: dropping unparseable message: %v", err)
		metrics.RecordDrop("malformed")
		return nil
	}

	if msg.IsResponse() {
		d.mu.RLock()
		sink := d.responses
		d.mu.RUnlock()
		if sink != nil && sink(msg) {
			return nil
		}
		logger.Debug("dispatch: dropping uncorrelated reply id=%s", string(msg.ID))
		metrics.RecordDrop("uncorrelated_reply")
		return nil
	}

	req, err := msg.AsRequest()
	if err != nil {
		logger.Warn("dispatch: dropping message: %v", err)
		if errors.Is(err, rpc.ErrMissingID) {
			metrics.RecordDrop("missing_id")
		} else {
			metrics.RecordDrop("missing_method")
		}
		return nil
	}

	defer d.notify(req.Command, msg)

	handler, ok := d.registry.Lookup(req.Command)
	if !ok {
		logger.Info("dispatch: %s ignored (no handler registered)", req.Command)
		metrics.RecordDrop("unknown_command")
		return nil
	}

	return d.invoke(ctx, req, handler)
}

func (d *Dispatcher) invoke(ctx context.Context, req *rpc.Request, handler Handler) []byte {
	ctx = context.WithValue(ctx, logger.ContextKeyCommand, req.Command)
	ctx = context.WithValue(ctx, logger.ContextKeyRequestID, string(req.ID))

	start := time.Now()
	result, err := d.run(ctx, req, handler)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("dispatch: %s failed: %v", req.Command, err)
		metrics.RecordRequest(req.Command, "error", elapsed)
		return rpc.NewServerError(req.ID, err.Error())
	}

	frame, err := rpc.NewResult(req.ID, result)
	if err != nil {
		logger.Error("dispatch: %s result could not be encoded: %v", req.Command, err)
		metrics.RecordRequest(req.Command, "error", elapsed)
		return rpc.NewServerError(req.ID, err.Error())
	}

	logger.Debug("dispatch: %s completed in %s", req.Command, elapsed)
	metrics.RecordRequest(req.Command, "ok", elapsed)
	return frame
}

func (d *Dispatcher) run(ctx context.Context, req *rpc.Request, handler Handler) (any, error) {
	params, err := rpc.DecodeParams(req.Params)
	if err != nil {
		return nil, err
	}
	return call(ctx, req.Command, handler, params)
}

func (d *Dispatcher) notify(command string, msg *rpc.Message) {
	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("dispatch: observer for %s panicked: %v", command, rec)
				}
			}()
			fn(command, msg)
		}()
	}
}
