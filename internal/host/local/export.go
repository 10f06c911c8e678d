package local

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/flowptr/painter-bridge/internal/host"
)

// ExportPath implements host.Exporter
func (w *Workspace) ExportPath() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return "", host.ErrNoProject
	}
	return w.exportPathLocked(), nil
}

func (w *Workspace) exportPathLocked() string {
	if w.doc.ExportPath != "" {
		return w.doc.ExportPath
	}
	if w.path != "" {
		return filepath.Join(filepath.Dir(w.path), "export")
	}
	return w.exportRoot
}

// MapInformation implements host.Exporter. It reports the files an export
// to the default location would produce.
func (w *Workspace) MapInformation() (host.MapExportInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil, host.ErrNoProject
	}
	return w.planLocked(w.exportPathLocked()), nil
}

func (w *Workspace) planLocked(destination string) host.MapExportInfo {
	info := host.MapExportInfo{}
	for _, set := range w.doc.TextureSets {
		maps := map[string]string{}
		for _, m := range w.doc.Maps {
			maps[m] = filepath.Join(destination, fmt.Sprintf("%s_%s.png", set, m))
		}
		info[set] = maps
	}
	return info
}

// Export implements host.Exporter
func (w *Workspace) Export(destination string) (host.MapExportInfo, error) {
	w.mu.Lock()
	if w.doc == nil {
		w.mu.Unlock()
		return nil, host.ErrNoProject
	}
	if destination == "" {
		destination = w.exportPathLocked()
	}
	info := w.planLocked(destination)
	maps := append([]string(nil), w.doc.Maps...)
	w.mu.Unlock()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	for _, files := range info {
		for i, m := range maps {
			if err := writeSwatch(files[m], 16, mapColor(i)); err != nil {
				return nil, err
			}
		}
	}
	return info, nil
}

// Thumbnail implements host.Viewport
func (w *Workspace) Thumbnail(path string) error {
	if !w.IsOpen() {
		return host.ErrNoProject
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	return writeSwatch(path, 128, color.RGBA{R: 96, G: 96, B: 96, A: 255})
}

func mapColor(i int) color.RGBA {
	palette := []color.RGBA{
		{R: 200, G: 120, B: 80, A: 255},
		{R: 128, G: 128, B: 128, A: 255},
		{R: 128, G: 128, B: 255, A: 255},
		{R: 180, G: 180, B: 180, A: 255},
		{R: 20, G: 20, B: 20, A: 255},
	}
	return palette[i%len(palette)]
}

func writeSwatch(path string, size int, c color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
