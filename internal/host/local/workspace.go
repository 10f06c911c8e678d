// Package local is a filesystem-backed host used when the bridge runs
// outside the painting application. Projects are JSON documents, imported
// resources are tracked by url, and exports write placeholder PNG maps.
package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/flowptr/painter-bridge/internal/host"
)

var (
	defaultTextureSets = []string{"DefaultMaterial"}
	defaultMaps        = []string{"baseColor", "height", "normal", "roughness", "metallic"}
)

type document struct {
	ID          string              `json:"id"`
	TextureSets []string            `json:"texture_sets"`
	Maps        []string            `json:"maps"`
	ExportPath  string              `json:"export_path,omitempty"`
	Resources   []host.ResourceInfo `json:"resources"`
	InUse       []string            `json:"in_use"`
}

func newDocument() *document {
	return &document{
		ID:          uuid.New().String(),
		TextureSets: append([]string(nil), defaultTextureSets...),
		Maps:        append([]string(nil), defaultMaps...),
	}
}

// Workspace holds the single open project. It implements host.Project,
// host.Resources, host.Exporter and host.Viewport.
type Workspace struct {
	events     *host.Hub
	exportRoot string

	mu    sync.Mutex
	doc   *document
	path  string
	dirty bool
}

// NewWorkspace creates a workspace with no project open
func NewWorkspace(events *host.Hub, exportRoot string) *Workspace {
	if exportRoot == "" {
		exportRoot = "export"
	}
	return &Workspace{events: events, exportRoot: exportRoot}
}

func (w *Workspace) emit(event string, params map[string]any) {
	if w.events != nil {
		w.events.Emit(event, params)
	}
}

// IsOpen implements host.Project
func (w *Workspace) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc != nil
}

// ID implements host.Project
func (w *Workspace) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return ""
	}
	return w.doc.ID
}

// Path implements host.Project
func (w *Workspace) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// NeedsSaving implements host.Project
func (w *Workspace) NeedsSaving() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc != nil && w.dirty
}

// Create starts a new, unsaved project. path may be empty.
func (w *Workspace) Create(path string) {
	w.mu.Lock()
	w.doc = newDocument()
	w.path = path
	w.dirty = true
	w.mu.Unlock()

	w.emit(host.EventNewProjectCreated, map[string]any{"path": path})
}

// Open implements host.Project
func (w *Workspace) Open(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read project: %w", err)
	}
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to parse project %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if len(doc.TextureSets) == 0 {
		doc.TextureSets = append([]string(nil), defaultTextureSets...)
	}
	if len(doc.Maps) == 0 {
		doc.Maps = append([]string(nil), defaultMaps...)
	}

	w.mu.Lock()
	w.doc = doc
	w.path = path
	w.dirty = false
	w.mu.Unlock()

	w.emit(host.EventProjectOpened, map[string]any{"path": path})
	return nil
}

// Save implements host.Project
func (w *Workspace) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saveLocked()
}

// SaveAs implements host.Project
func (w *Workspace) SaveAs(path string) error {
	if path == "" {
		return host.ErrNoPath
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return host.ErrNoProject
	}
	prev := w.path
	w.path = path
	if err := w.saveLocked(); err != nil {
		w.path = prev
		return err
	}
	return nil
}

func (w *Workspace) saveLocked() error {
	if w.doc == nil {
		return host.ErrNoProject
	}
	if w.path == "" {
		return host.ErrNoPath
	}
	data, err := json.MarshalIndent(w.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write project: %w", err)
	}
	w.dirty = false
	return nil
}

// Close implements host.Project
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return host.ErrNoProject
	}
	w.doc = nil
	w.path = ""
	w.dirty = false
	return nil
}

// Import implements host.Resources
func (w *Workspace) Import(path, usage, destination string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("failed to import resource: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("failed to import resource: %s is a directory", abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return "", host.ErrNoProject
	}

	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	version := uuid.New().String()
	if destination == "" {
		destination = "project"
	}
	url := fmt.Sprintf("resource://%s/%s?version=%s", destination, name, version)

	res := host.ResourceInfo{
		URL:     url,
		Version: version,
		GUIName: name,
		Path:    abs,
	}
	if usage != "" {
		res.Usages = []string{usage}
	}
	w.doc.Resources = append(w.doc.Resources, res)
	w.doc.InUse = append(w.doc.InUse, url)
	w.dirty = true
	return url, nil
}

// Info implements host.Resources
func (w *Workspace) Info(url string) (*host.ResourceInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil, host.ErrNoProject
	}
	res := w.findLocked(url)
	if res == nil {
		return nil, host.ErrResourceNotFound
	}
	out := *res
	out.Usages = append([]string{}, res.Usages...)
	return &out, nil
}

func (w *Workspace) findLocked(url string) *host.ResourceInfo {
	for i := range w.doc.Resources {
		if w.doc.Resources[i].URL == url {
			return &w.doc.Resources[i]
		}
	}
	return nil
}

// InUse implements host.Resources
func (w *Workspace) InUse() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil, host.ErrNoProject
	}
	return append([]string{}, w.doc.InUse...), nil
}

// Replace implements host.Resources
func (w *Workspace) Replace(oldURL, newURL string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return 0, host.ErrNoProject
	}
	oldRes := w.findLocked(oldURL)
	newRes := w.findLocked(newURL)
	if oldRes == nil || newRes == nil {
		return 0, host.ErrResourceNotFound
	}

	replaced := 0
	seen := map[string]bool{}
	inUse := w.doc.InUse[:0]
	for _, url := range w.doc.InUse {
		if url == oldURL {
			url = newURL
			replaced++
		}
		if seen[url] {
			continue
		}
		seen[url] = true
		inUse = append(inUse, url)
	}
	w.doc.InUse = inUse

	if replaced > 0 {
		for _, usage := range oldRes.Usages {
			if !contains(newRes.Usages, usage) {
				newRes.Usages = append(newRes.Usages, usage)
			}
		}
		w.dirty = true
	}
	return replaced, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
