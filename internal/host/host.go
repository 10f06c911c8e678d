// Package host defines the painting application operations the command
// surface depends on. Implementations are called from the bridge loop and
// may fail; callers turn failures into sentinel results.
package host

import (
	"context"
	"errors"
)

var (
	// ErrNoProject is returned by operations that need an open project
	ErrNoProject = errors.New("no project is open")
	// ErrNoPath is returned when saving a project that has never been saved
	ErrNoPath = errors.New("project has no file path")
	// ErrResourceNotFound is returned for unknown resource urls
	ErrResourceNotFound = errors.New("resource not found")
	// ErrCancelled is returned when the user dismisses a dialog
	ErrCancelled = errors.New("cancelled by user")
)

// Host push events
const (
	EventProjectOpened     = "PROJECT_OPENED"
	EventNewProjectCreated = "NEW_PROJECT_CREATED"
	EventDisplayMenu       = "DISPLAY_MENU"
)

// ForwardedEvents are the host events relayed to the engine
var ForwardedEvents = []string{EventProjectOpened, EventNewProjectCreated, EventDisplayMenu}

// Version identifies the host application
type Version struct {
	Painter string `json:"painter"`
	API     string `json:"api"`
}

// Project is the currently loaded document
type Project interface {
	IsOpen() bool
	// ID is a stable identity for the open project, kept across Save As
	ID() string
	// Path is empty for a project that was never saved
	Path() string
	NeedsSaving() bool
	Open(path string) error
	Save() error
	SaveAs(path string) error
	Close() error
}

// ResourceInfo describes a resource of the open project
type ResourceInfo struct {
	URL     string   `json:"url"`
	Version string   `json:"version"`
	GUIName string   `json:"guiName"`
	Usages  []string `json:"usages"`
	Path    string   `json:"path,omitempty"`
}

// Resources manages imported project resources
type Resources interface {
	Import(path, usage, destination string) (url string, err error)
	Info(url string) (*ResourceInfo, error)
	// InUse lists the urls of resources referenced by the document
	InUse() ([]string, error)
	// Replace points every use of oldURL at newURL and reports how many
	// references changed
	Replace(oldURL, newURL string) (int, error)
}

// MapExportInfo maps texture set name to map identifier to file path
type MapExportInfo map[string]map[string]string

// Exporter exports texture maps
type Exporter interface {
	ExportPath() (string, error)
	MapInformation() (MapExportInfo, error)
	Export(destination string) (MapExportInfo, error)
}

// Dialogs are the blocking user interactions the commands need
type Dialogs interface {
	Confirm(title, message string) bool
	// SaveAsPath asks for a destination; ErrCancelled when dismissed
	SaveAsPath() (string, error)
}

// Viewport renders thumbnails
type Viewport interface {
	Thumbnail(path string) error
}

// LogLevel is a host console severity
type LogLevel string

const (
	LogDebug     LogLevel = "debug"
	LogInfo      LogLevel = "info"
	LogWarning   LogLevel = "warning"
	LogError     LogLevel = "error"
	LogException LogLevel = "exception"
)

// Console is the host log output
type Console interface {
	Log(level LogLevel, message string)
}

// Evaluator runs caller-supplied code in the host scripting context. It is
// a privileged capability and is only wired when scripting is enabled.
type Evaluator interface {
	Evaluate(ctx context.Context, statement string) (any, error)
}

// Events lets the bridge observe host signals
type Events interface {
	Subscribe(event string, fn func(params map[string]any)) (unsubscribe func())
}

// Host bundles the collaborators. Evaluator may be nil.
type Host struct {
	Version   Version
	Project   Project
	Resources Resources
	Exporter  Exporter
	Dialogs   Dialogs
	Viewport  Viewport
	Console   Console
	Events    Events
	Evaluator Evaluator
}
