package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation represents the type of auditable operation
type Operation string

const (
	OpScriptExecute   Operation = "script.execute"
	OpProjectOpen     Operation = "project.open"
	OpProjectSave     Operation = "project.save"
	OpProjectClose    Operation = "project.close"
	OpResourceImport  Operation = "resource.import"
	OpResourceReplace Operation = "resource.replace"
	OpExportMaps      Operation = "export.maps"
	OpEngineLaunch    Operation = "engine.launch"
)

// Event represents an audit log entry
type Event struct {
	Timestamp    time.Time              `json:"timestamp"`
	Operation    Operation              `json:"operation"`
	ConnectionID string                 `json:"connection_id,omitempty"`
	ProjectID    string                 `json:"project_id,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Success      bool                   `json:"success"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the default audit logger
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(true)
	})
	return defaultLogger
}

// New creates a new audit logger writing JSON to stdout
func New(enabled bool) *Logger {
	return NewWithWriter(os.Stdout, enabled)
}

// NewWithWriter creates an audit logger writing JSON to w
func NewWithWriter(w io.Writer, enabled bool) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// SetEnabled enables or disables audit logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Log records an audit event
func (l *Logger) Log(event *Event) {
	if l == nil {
		return
	}
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("connection_id", event.ConnectionID))
	}
	if event.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", event.ProjectID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

// Record logs op with its outcome. A nil err is a success.
func (l *Logger) Record(op Operation, projectID string, err error, details map[string]interface{}) {
	event := &Event{
		Operation: op,
		ProjectID: projectID,
		Success:   err == nil,
		Details:   details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// Statement shortens a script statement for the audit trail
func Statement(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
