package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadRequest is wrapped by every parameter validation failure
var ErrBadRequest = errors.New("bad request")

// BadRequestError names the parameter that failed validation
type BadRequestError struct {
	Field  string
	Reason string
}

func (e *BadRequestError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("bad request: %s", e.Reason)
	}
	return fmt.Sprintf("bad request: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrBadRequest
func (e *BadRequestError) Unwrap() error {
	return ErrBadRequest
}

// BadRequest creates a BadRequestError
func BadRequest(field, reason string) error {
	return &BadRequestError{Field: field, Reason: reason}
}

// Params is the schema-free parameter map handed to handlers.
type Params map[string]any

// DecodeParams turns raw params into a Params map. Absent or null params
// yield an empty map; anything other than an object is a bad request.
func DecodeParams(raw json.RawMessage) (Params, error) {
	params := Params{}
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if raw[0] != '{' {
		return nil, BadRequest("params", "must be an object")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, BadRequest("params", err.Error())
	}
	return params, nil
}

// Has reports whether key is present, even with a null value
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns a required, non-empty string field
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", BadRequest(key, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", BadRequest(key, fmt.Sprintf("must be a string, got %T", v))
	}
	if s == "" {
		return "", BadRequest(key, "must not be empty")
	}
	return s, nil
}

// OptionalString returns a string field or def when absent
func (p Params) OptionalString(key, def string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", BadRequest(key, fmt.Sprintf("must be a string, got %T", v))
	}
	return s, nil
}

// Bool returns a required boolean field
func (p Params) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, BadRequest(key, "is required")
	}
	b, ok := v.(bool)
	if !ok {
		return false, BadRequest(key, fmt.Sprintf("must be a boolean, got %T", v))
	}
	return b, nil
}

// Map returns an optional object field
func (p Params) Map(key string) (map[string]any, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, BadRequest(key, fmt.Sprintf("must be an object, got %T", v))
	}
	return m, nil
}
