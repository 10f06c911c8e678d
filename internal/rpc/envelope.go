// Package rpc implements the JSON-RPC 2.0 shaped envelopes exchanged between
// the bridge and the engine.
//
// Inbound requests carry an id that is echoed back verbatim, so ids are kept
// as raw JSON: numeric ids stay numeric and string ids stay strings.
// Host-originated commands use a local, monotonically increasing integer id.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// Version is the protocol tag carried by every envelope
const Version = "2.0"

// ServerError is the single error code used for handler and transport failures
const ServerError = -32000

var (
	// ErrMalformed is returned when a frame is not a JSON object
	ErrMalformed = errors.New("malformed message")
	// ErrMissingMethod is returned when a frame has no method
	ErrMissingMethod = errors.New("missing method")
	// ErrMissingID is returned when a request has no usable id
	ErrMissingID = errors.New("missing id")
)

// Message is the union of every envelope shape. Decode fills it from a frame.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Request is an inbound engine -> host call.
type Request struct {
	Method string
	// Command is Method normalized to uppercase.
	Command string
	Params  json.RawMessage
	ID      json.RawMessage
}

// Response is the reply envelope sent for a request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Command is a host -> engine push.
type Command struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      int64           `json:"id"`
}

// Error is the error member of an error envelope
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NormalizeCommand maps a method name onto its registry key.
func NormalizeCommand(method string) string {
	return strings.ToUpper(method)
}

// Decode parses a raw frame into a Message without judging its shape.
func Decode(raw []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformed
	}
	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}

// IsResponse reports whether the message is a reply rather than a call.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// AsRequest validates the message as an inbound request.
func (m *Message) AsRequest() (*Request, error) {
	if m.Method == "" {
		return nil, ErrMissingMethod
	}
	if !validID(m.ID) {
		return nil, ErrMissingID
	}
	return &Request{
		Method:  m.Method,
		Command: NormalizeCommand(m.Method),
		Params:  m.Params,
		ID:      m.ID,
	}, nil
}

// ParseRequest decodes and validates an inbound request frame.
func ParseRequest(raw []byte) (*Request, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return msg.AsRequest()
}

// validID accepts JSON strings and numbers only.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"':
		return true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	default:
		return false
	}
}

// NewResult builds a result envelope. A nil value is sent as JSON null.
func NewResult(id json.RawMessage, value any) ([]byte, error) {
	result, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return json.Marshal(&Response{
		JSONRPC: Version,
		Result:  result,
		ID:      id,
	})
}

// NewError builds an error envelope. A nil id is sent as JSON null.
func NewError(id json.RawMessage, code int, message string) []byte {
	data, err := json.Marshal(&Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
	if err != nil {
		// Only reachable with an id that is not valid JSON.
		data, _ = json.Marshal(&Response{
			JSONRPC: Version,
			Error:   &Error{Code: code, Message: message},
		})
	}
	return data
}

// NewServerError builds the generic -32000 error envelope.
func NewServerError(id json.RawMessage, message string) []byte {
	if message == "" {
		message = "server error"
	}
	return NewError(id, ServerError, message)
}

// NewCommand builds a host -> engine command envelope. Nil params become {}.
func NewCommand(id int64, method string, params any) ([]byte, error) {
	raw := json.RawMessage(`{}`)
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		if !bytes.Equal(data, []byte("null")) {
			raw = data
		}
	}
	return json.Marshal(&Command{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
		ID:      id,
	})
}

// IDCounter hands out host command ids. The first id is 2.
type IDCounter struct {
	last atomic.Int64
}

// NewIDCounter returns a counter whose first Next is 2.
func NewIDCounter() *IDCounter {
	c := &IDCounter{}
	c.last.Store(1)
	return c
}

// Next increments and returns the counter
func (c *IDCounter) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recently issued id
func (c *IDCounter) Last() int64 {
	return c.last.Load()
}
