package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Invocation parameter keys, as set by the pipeline launcher.
const (
	KeyInterpreter   = "SGTK_SUBSTANCEPAINTER_ENGINE_PYTHON"
	KeyStartupScript = "SGTK_SUBSTANCEPAINTER_ENGINE_STARTUP"
	KeyPort          = "SGTK_SUBSTANCEPAINTER_ENGINE_PORT"
)

// Invocation holds the three launch values handed to the bridge by the
// pipeline launcher. Any of them may be empty.
type Invocation struct {
	Interpreter   string
	StartupScript string
	Port          int
}

// Complete reports whether the engine can be launched from these values.
func (inv Invocation) Complete() bool {
	return inv.Interpreter != "" && inv.StartupScript != "" && inv.Port > 0
}

// ParseInvocation decodes a single URL-style query argument such as
// "?SGTK_SUBSTANCEPAINTER_ENGINE_PYTHON=/usr/bin/python3&SGTK_...".
// Anything before the first '?' is ignored, so a full URL also works.
// Values are percent-decoded and '+' becomes a space.
func ParseInvocation(arg string) (Invocation, error) {
	var inv Invocation
	if idx := strings.IndexByte(arg, '?'); idx >= 0 {
		arg = arg[idx+1:]
	}
	if arg == "" {
		return inv, nil
	}

	values, err := url.ParseQuery(arg)
	if err != nil {
		return inv, fmt.Errorf("parsing invocation parameters: %w", err)
	}

	inv.Interpreter = values.Get(KeyInterpreter)
	inv.StartupScript = values.Get(KeyStartupScript)
	if raw := values.Get(KeyPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return inv, fmt.Errorf("invalid %s value %q", KeyPort, raw)
		}
		inv.Port = port
	}
	return inv, nil
}

// InvocationFromEnv reads the same keys from the environment.
func InvocationFromEnv(getenv func(string) string) Invocation {
	if getenv == nil {
		getenv = os.Getenv
	}
	inv := Invocation{
		Interpreter:   getenv(KeyInterpreter),
		StartupScript: getenv(KeyStartupScript),
	}
	if port, err := strconv.Atoi(getenv(KeyPort)); err == nil && port > 0 && port <= 65535 {
		inv.Port = port
	}
	return inv
}

// Merge fills empty fields of inv from fallback.
func (inv Invocation) Merge(fallback Invocation) Invocation {
	if inv.Interpreter == "" {
		inv.Interpreter = fallback.Interpreter
	}
	if inv.StartupScript == "" {
		inv.StartupScript = fallback.StartupScript
	}
	if inv.Port == 0 {
		inv.Port = fallback.Port
	}
	return inv
}

// Env returns the environment entries that pass these values on to the engine.
func (inv Invocation) Env() []string {
	return []string{
		KeyInterpreter + "=" + inv.Interpreter,
		KeyStartupScript + "=" + inv.StartupScript,
		KeyPort + "=" + strconv.Itoa(inv.Port),
	}
}
