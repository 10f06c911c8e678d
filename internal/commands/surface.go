// Package commands registers the host operations the engine can call.
//
// Handlers validate their params, call one host operation, and report host
// failures as a sentinel result (false or null) after logging them. Only
// malformed params surface as an error envelope.
package commands

import (
	"context"
	"encoding/json"

	"github.com/flowptr/painter-bridge/internal/audit"
	"github.com/flowptr/painter-bridge/internal/dispatch"
	"github.com/flowptr/painter-bridge/internal/host"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/settings"
)

// UntitledProject is reported for a project that has no file yet
const UntitledProject = "Untitled.spp"

// Host push events sent around an export
const (
	EventExportStarted  = "EXPORT_STARTED"
	EventExportFinished = "EXPORT_FINISHED"
)

// Pusher sends host-originated commands to the engine
type Pusher interface {
	SendCommand(method string, params any) error
}

// ReadyFlag records engine readiness
type ReadyFlag interface {
	SetReady(ready bool)
}

// SettingsStore persists project-scoped settings and resource records
type SettingsStore interface {
	Set(projectID, namespace, key string, value any) error
	Get(projectID, namespace, key string) (json.RawMessage, error)
	Delete(projectID, namespace, key string) error
	Namespace(projectID, namespace string) (map[string]any, error)
	PutRecord(r *settings.ResourceRecord) error
	DeleteRecord(projectID, url string) error
}

// Options configures a Surface
type Options struct {
	Host      host.Host
	Settings  SettingsStore
	Push      Pusher
	Ready     ReadyFlag
	Scripting bool
	Audit     *audit.Logger
}

// Surface is the set of engine-callable host operations
type Surface struct {
	host      host.Host
	settings  SettingsStore
	push      Pusher
	ready     ReadyFlag
	scripting bool
	audit     *audit.Logger
}

// New creates a command surface
func New(opts Options) *Surface {
	return &Surface{
		host:      opts.Host,
		settings:  opts.Settings,
		push:      opts.Push,
		ready:     opts.Ready,
		scripting: opts.Scripting && opts.Host.Evaluator != nil,
		audit:     opts.Audit,
	}
}

// Register binds every command to reg
func (s *Surface) Register(reg *dispatch.Registry) {
	reg.Register("GET_VERSION", s.getVersion)
	reg.Register("ENGINE_READY", s.engineReady)

	reg.Register("GET_CURRENT_PROJECT_PATH", s.currentProjectPath)
	reg.Register("NEEDS_SAVING", s.needsSaving)
	reg.Register("OPEN_PROJECT", s.openProject)
	reg.Register("SAVE_PROJECT", s.saveProject)
	reg.Register("SAVE_PROJECT_AS", s.saveProjectAs)
	reg.Register("SAVE_PROJECT_AS_ACTION", s.saveProjectAsAction)
	reg.Register("CLOSE_PROJECT", s.closeProject)

	reg.Register("EXECUTE_STATEMENT", s.executeStatement)
	reg.Register("EXTRACT_THUMBNAIL", s.extractThumbnail)

	reg.Register("IMPORT_PROJECT_RESOURCE", s.importProjectResource)
	reg.Register("GET_PROJECT_SETTINGS", s.projectSettings)
	reg.Register("GET_RESOURCE_INFO", s.resourceInfo)
	reg.Register("UPDATE_DOCUMENT_RESOURCES", s.updateDocumentResources)
	reg.Register("DOCUMENT_RESOURCES", s.documentResources)

	reg.Register("GET_PROJECT_EXPORT_PATH", s.projectExportPath)
	reg.Register("GET_MAP_EXPORT_INFORMATION", s.mapExportInformation)
	reg.Register("EXPORT_DOCUMENT_MAPS", s.exportDocumentMaps)

	reg.Register("LOG_DEBUG", s.logAt(host.LogDebug))
	reg.Register("LOG_INFO", s.logAt(host.LogInfo))
	reg.Register("LOG_WARNING", s.logAt(host.LogWarning))
	reg.Register("LOG_ERROR", s.logAt(host.LogError))
	reg.Register("LOG_EXCEPTION", s.logAt(host.LogException))
	reg.Register("TOGGLE_DEBUG_LOGGING", s.toggleDebugLogging)
}

// SubscribeHostEvents forwards the host's project and menu signals to the
// engine through notify. The returned function unsubscribes.
func SubscribeHostEvents(events host.Events, notify func(method string, params any)) func() {
	var unsubs []func()
	for _, event := range host.ForwardedEvents {
		event := event
		unsubs = append(unsubs, events.Subscribe(event, func(params map[string]any) {
			notify(event, params)
		}))
	}
	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

// projectID returns the open project's id, or "" when none is open
func (s *Surface) projectID() string {
	if !s.host.Project.IsOpen() {
		return ""
	}
	return s.host.Project.ID()
}

func (s *Surface) record(ctx context.Context, op audit.Operation, err error, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	event := &audit.Event{
		Operation: op,
		ProjectID: s.projectID(),
		Success:   err == nil,
		Details:   details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if v, ok := ctx.Value(logger.ContextKeyConnectionID).(string); ok {
		event.ConnectionID = v
	}
	if v, ok := ctx.Value(logger.ContextKeyRequestID).(string); ok {
		event.RequestID = v
	}
	s.audit.Log(event)
}

func (s *Surface) notify(method string, params any) {
	if s.push == nil {
		return
	}
	_ = s.push.SendCommand(method, params)
}
