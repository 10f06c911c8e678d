package local

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/flowptr/painter-bridge/internal/host"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProjectLifecycle(t *testing.T) {
	dir := t.TempDir()
	l := New(Options{})
	w := l.Workspace

	var events []string
	for _, ev := range host.ForwardedEvents {
		ev := ev
		l.Events.Subscribe(ev, func(p map[string]any) {
			events = append(events, ev+":"+p["path"].(string))
		})
	}

	if w.IsOpen() || w.NeedsSaving() {
		t.Fatal("fresh workspace reports an open project")
	}
	if err := w.Save(); !errors.Is(err, host.ErrNoProject) {
		t.Errorf("Save() without project error = %v", err)
	}

	w.Create("")
	if !w.IsOpen() || !w.NeedsSaving() || w.Path() != "" {
		t.Fatalf("after Create: open=%v dirty=%v path=%q", w.IsOpen(), w.NeedsSaving(), w.Path())
	}
	id := w.ID()
	if err := w.Save(); !errors.Is(err, host.ErrNoPath) {
		t.Errorf("Save() untitled error = %v, want ErrNoPath", err)
	}

	path := filepath.Join(dir, "scenes", "asset.spp")
	if err := w.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	if w.NeedsSaving() || w.Path() != path || w.ID() != id {
		t.Errorf("after SaveAs: dirty=%v path=%q id changed=%v", w.NeedsSaving(), w.Path(), w.ID() != id)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Open(path); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if w.ID() != id {
		t.Error("project id not persisted")
	}

	want := []string{host.EventNewProjectCreated + ":", host.EventProjectOpened + ":" + path}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestOpenMissingProject(t *testing.T) {
	w := NewWorkspace(nil, "")
	if err := w.Open(filepath.Join(t.TempDir(), "nope.spp")); err == nil {
		t.Error("Open() of missing file succeeded")
	}
	if w.IsOpen() {
		t.Error("failed Open() left a project open")
	}
}

func TestImportInfoReplace(t *testing.T) {
	dir := t.TempDir()
	w := NewWorkspace(nil, "")

	tex := writeFile(t, filepath.Join(dir, "wood_v001.png"), "v1")
	if _, err := w.Import(tex, "texture", "Shotgun"); !errors.Is(err, host.ErrNoProject) {
		t.Errorf("Import() without project error = %v", err)
	}

	w.Create("")
	oldURL, err := w.Import(tex, "texture", "Shotgun")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	info, err := w.Info(oldURL)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.GUIName != "wood_v001" || info.Version == "" || len(info.Usages) != 1 || info.Usages[0] != "texture" {
		t.Errorf("Info() = %+v", info)
	}

	tex2 := writeFile(t, filepath.Join(dir, "wood_v002.png"), "v2")
	newURL, err := w.Import(tex2, "environment", "Shotgun")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	n, err := w.Replace(oldURL, newURL)
	if err != nil || n != 1 {
		t.Fatalf("Replace() = %d, %v; want 1", n, err)
	}
	inUse, _ := w.InUse()
	if len(inUse) != 1 || inUse[0] != newURL {
		t.Errorf("InUse() = %v, want [%s]", inUse, newURL)
	}
	info, _ = w.Info(newURL)
	if len(info.Usages) != 2 {
		t.Errorf("usages after replace = %v, want merged", info.Usages)
	}

	if _, err := w.Replace(oldURL, "resource://missing"); !errors.Is(err, host.ErrResourceNotFound) {
		t.Errorf("Replace() unknown url error = %v", err)
	}
	if _, err := w.Info("resource://missing"); !errors.Is(err, host.ErrResourceNotFound) {
		t.Errorf("Info() unknown url error = %v", err)
	}
	if _, err := w.Import(filepath.Join(dir, "absent.png"), "texture", "Shotgun"); err == nil {
		t.Error("Import() of missing file succeeded")
	}
}

func TestExportWritesMaps(t *testing.T) {
	dir := t.TempDir()
	w := NewWorkspace(nil, "")
	w.Create("")
	if err := w.SaveAs(filepath.Join(dir, "asset.spp")); err != nil {
		t.Fatal(err)
	}

	exportPath, err := w.ExportPath()
	if err != nil || exportPath != filepath.Join(dir, "export") {
		t.Fatalf("ExportPath() = %q, %v", exportPath, err)
	}

	planned, err := w.MapInformation()
	if err != nil {
		t.Fatal(err)
	}
	if got := planned["DefaultMaterial"]["baseColor"]; got != filepath.Join(exportPath, "DefaultMaterial_baseColor.png") {
		t.Errorf("planned baseColor = %q", got)
	}

	dest := filepath.Join(dir, "out")
	info, err := w.Export(dest)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(info["DefaultMaterial"]) != len(defaultMaps) {
		t.Fatalf("exported %d maps, want %d", len(info["DefaultMaterial"]), len(defaultMaps))
	}
	for _, file := range info["DefaultMaterial"] {
		f, err := os.Open(file)
		if err != nil {
			t.Fatalf("exported map missing: %v", err)
		}
		if _, err := png.Decode(f); err != nil {
			t.Errorf("%s is not a PNG: %v", file, err)
		}
		_ = f.Close()
	}
}

func TestThumbnail(t *testing.T) {
	w := NewWorkspace(nil, "")
	path := filepath.Join(t.TempDir(), "thumbs", "t.png")
	if err := w.Thumbnail(path); !errors.Is(err, host.ErrNoProject) {
		t.Errorf("Thumbnail() without project error = %v", err)
	}
	w.Create("")
	if err := w.Thumbnail(path); err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("thumbnail not written: %v", err)
	}
}

func TestDialogs(t *testing.T) {
	d := &Dialogs{}
	if d.Confirm("t", "m") {
		t.Error("Confirm() = true without AutoConfirm")
	}
	if _, err := d.SaveAsPath(); !errors.Is(err, host.ErrCancelled) {
		t.Errorf("SaveAsPath() error = %v, want ErrCancelled", err)
	}
	d = &Dialogs{AutoConfirm: true, SaveAsDir: "/tmp/saves"}
	if !d.Confirm("t", "m") {
		t.Error("Confirm() = false with AutoConfirm")
	}
	if p, err := d.SaveAsPath(); err != nil || filepath.Dir(p) != "/tmp/saves" {
		t.Errorf("SaveAsPath() = %q, %v", p, err)
	}
}

func TestHostEvaluatorOptional(t *testing.T) {
	if New(Options{}).Host().Evaluator != nil {
		t.Error("evaluator wired without an interpreter")
	}
	h := New(Options{Interpreter: "sh"}).Host()
	if h.Evaluator == nil {
		t.Error("evaluator not wired")
	}
	if h.Version.Painter != "local" || h.Version.API != "1" {
		t.Errorf("Version = %+v", h.Version)
	}
}

func TestScriptEvaluator(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	e := &ScriptEvaluator{Interpreter: sh}
	ctx := context.Background()

	v, err := e.Evaluate(ctx, `echo '{"a":1}'`)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if raw, ok := v.(json.RawMessage); !ok || string(raw) != `{"a":1}` {
		t.Errorf("Evaluate() = %#v, want raw JSON", v)
	}

	v, err = e.Evaluate(ctx, `echo hello world`)
	if err != nil || v != "hello world" {
		t.Errorf("Evaluate() = %#v, %v", v, err)
	}

	if _, err := e.Evaluate(ctx, `echo oops >&2; exit 2`); err == nil {
		t.Error("Evaluate() of failing statement succeeded")
	}
}

func TestShowMenu(t *testing.T) {
	l := New(Options{})
	var got map[string]any
	l.Events.Subscribe(host.EventDisplayMenu, func(p map[string]any) { got = p })
	l.ShowMenu(10, 20)
	pos, ok := got["clickedPosition"].(map[string]any)
	if !ok || pos["x"] != 10 || pos["y"] != 20 {
		t.Errorf("DISPLAY_MENU params = %v", got)
	}
}
