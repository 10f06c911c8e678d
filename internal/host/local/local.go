package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowptr/painter-bridge/internal/host"
	"github.com/flowptr/painter-bridge/internal/logger"
)

// Options configures a local host
type Options struct {
	Version     host.Version
	ExportRoot  string
	AutoConfirm bool
	SaveAsDir   string
	// Interpreter enables the script evaluator when set
	Interpreter string
}

// Local is the assembled filesystem-backed host
type Local struct {
	Workspace *Workspace
	Events    *host.Hub
	Dialogs   *Dialogs
	Evaluator *ScriptEvaluator
	version   host.Version
}

// New creates a local host
func New(opts Options) *Local {
	if opts.Version.Painter == "" {
		opts.Version.Painter = "local"
	}
	if opts.Version.API == "" {
		opts.Version.API = "1"
	}
	hub := host.NewHub()
	l := &Local{
		Workspace: NewWorkspace(hub, opts.ExportRoot),
		Events:    hub,
		Dialogs:   &Dialogs{AutoConfirm: opts.AutoConfirm, SaveAsDir: opts.SaveAsDir},
		version:   opts.Version,
	}
	if opts.Interpreter != "" {
		l.Evaluator = &ScriptEvaluator{Interpreter: opts.Interpreter}
	}
	return l
}

// Host returns the collaborator bundle
func (l *Local) Host() host.Host {
	h := host.Host{
		Version:   l.version,
		Project:   l.Workspace,
		Resources: l.Workspace,
		Exporter:  l.Workspace,
		Dialogs:   l.Dialogs,
		Viewport:  l.Workspace,
		Console:   Console{},
		Events:    l.Events,
	}
	if l.Evaluator != nil {
		h.Evaluator = l.Evaluator
	}
	return h
}

// ShowMenu emits DISPLAY_MENU at the given position
func (l *Local) ShowMenu(x, y int) {
	l.Events.Emit(host.EventDisplayMenu, map[string]any{
		"clickedPosition": map[string]any{"x": x, "y": y},
	})
}

// Dialogs answers prompts without user interaction
type Dialogs struct {
	AutoConfirm bool
	SaveAsDir   string
}

// Confirm implements host.Dialogs
func (d *Dialogs) Confirm(title, message string) bool {
	logger.Info("dialog %q: %s -> %v", title, message, d.AutoConfirm)
	return d.AutoConfirm
}

// SaveAsPath implements host.Dialogs
func (d *Dialogs) SaveAsPath() (string, error) {
	if d.SaveAsDir == "" {
		return "", host.ErrCancelled
	}
	name := "untitled-" + time.Now().Format("20060102-150405") + ".spp"
	return filepath.Join(d.SaveAsDir, name), nil
}

// Console writes engine log lines to the bridge log
type Console struct{}

// Log implements host.Console
func (Console) Log(level host.LogLevel, message string) {
	switch level {
	case host.LogDebug:
		logger.Debug("engine: %s", message)
	case host.LogWarning:
		logger.Warn("engine: %s", message)
	case host.LogError, host.LogException:
		logger.Error("engine: %s", message)
	default:
		logger.Info("engine: %s", message)
	}
}

// ScriptEvaluator runs statements with an external interpreter's -c flag.
// Output that is valid JSON is returned as such, anything else as a string.
type ScriptEvaluator struct {
	Interpreter string
}

// Evaluate implements host.Evaluator
func (e *ScriptEvaluator) Evaluate(ctx context.Context, statement string) (any, error) {
	cmd := exec.CommandContext(ctx, e.Interpreter, "-c", statement)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	return text, nil
}
