package rpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "absent", raw: ``, wantLen: 0},
		{name: "null", raw: `null`, wantLen: 0},
		{name: "object", raw: `{"path":"/a","usage":"texture"}`, wantLen: 2},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "scalar", raw: `"x"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeParams(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrBadRequest) {
					t.Errorf("error %v should wrap ErrBadRequest", err)
				}
				return
			}
			if len(p) != tt.wantLen {
				t.Errorf("len(params) = %d, want %d", len(p), tt.wantLen)
			}
		})
	}
}

func TestParams_String(t *testing.T) {
	p := Params{"path": "/a.spp", "empty": "", "num": 3.0, "nil": nil}

	if got, err := p.String("path"); err != nil || got != "/a.spp" {
		t.Errorf("String(path) = %q, %v", got, err)
	}

	for _, key := range []string{"missing", "empty", "num", "nil"} {
		_, err := p.String(key)
		var bad *BadRequestError
		if !errors.As(err, &bad) {
			t.Errorf("String(%s) error = %v, want *BadRequestError", key, err)
			continue
		}
		if bad.Field != key {
			t.Errorf("BadRequestError.Field = %q, want %q", bad.Field, key)
		}
	}
}

func TestParams_OptionalAndBool(t *testing.T) {
	p := Params{"usage": "environment", "enabled": true, "flag": "yes"}

	if got, err := p.OptionalString("usage", "texture"); err != nil || got != "environment" {
		t.Errorf("OptionalString(usage) = %q, %v", got, err)
	}
	if got, err := p.OptionalString("destination", "/def"); err != nil || got != "/def" {
		t.Errorf("OptionalString(destination) = %q, %v", got, err)
	}
	if got, err := p.Bool("enabled"); err != nil || !got {
		t.Errorf("Bool(enabled) = %v, %v", got, err)
	}
	if _, err := p.Bool("flag"); err == nil {
		t.Error("Bool(flag) should reject a string")
	}
	if _, err := p.Bool("absent"); err == nil {
		t.Error("Bool(absent) should be required")
	}
}

func TestBadRequestError_Message(t *testing.T) {
	err := BadRequest("statement", "is required")
	if err.Error() != "bad request: statement is required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
