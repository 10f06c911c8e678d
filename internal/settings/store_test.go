package settings

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetNamespace(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get("p1", LoaderNamespace, "resource://a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}

	if err := s.Set("p1", LoaderNamespace, "resource://a", "/pub/a_v001.png"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("p1", LoaderNamespace, "resource://b", "/pub/b_v001.png"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("p1", LoaderNamespace, "resource://a", "/pub/a_v002.png"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if err := s.Set("p2", LoaderNamespace, "resource://c", "/pub/c.png"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, err := s.Get("p1", LoaderNamespace, "resource://a")
	if err != nil || string(raw) != `"/pub/a_v002.png"` {
		t.Errorf("Get() = %s, %v", raw, err)
	}

	ns, err := s.Namespace("p1", LoaderNamespace)
	if err != nil {
		t.Fatalf("Namespace() error = %v", err)
	}
	if len(ns) != 2 || ns["resource://a"] != "/pub/a_v002.png" || ns["resource://b"] != "/pub/b_v001.png" {
		t.Errorf("Namespace() = %v", ns)
	}

	empty, err := s.Namespace("p1", "other")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("Namespace() empty = %v, %v; want empty map", empty, err)
	}

	if err := s.Delete("p1", LoaderNamespace, "resource://a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("p1", LoaderNamespace, "resource://a"); err != nil {
		t.Errorf("Delete() missing error = %v", err)
	}
	ns, _ = s.Namespace("p1", LoaderNamespace)
	if len(ns) != 1 {
		t.Errorf("Namespace() after delete = %v", ns)
	}
}

func TestStructuredValues(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("p1", "prefs", "export", map[string]any{"format": "png", "size": 2048}); err != nil {
		t.Fatal(err)
	}
	ns, err := s.Namespace("p1", "prefs")
	if err != nil {
		t.Fatal(err)
	}
	export, ok := ns["export"].(map[string]any)
	if !ok || export["format"] != "png" || export["size"] != float64(2048) {
		t.Errorf("decoded value = %#v", ns["export"])
	}
}

func TestResourceRecords(t *testing.T) {
	s := newTestStore(t)
	mod := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := &ResourceRecord{
		ProjectID:   "p1",
		URL:         "resource://Shotgun/a",
		Path:        "/pub/a.png",
		Usage:       "texture",
		Destination: "Shotgun",
		Fingerprint: "abc",
		Size:        12,
		ModTime:     mod,
	}
	if err := s.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() error = %v", err)
	}
	if rec.ImportedAt.IsZero() {
		t.Error("ImportedAt not stamped")
	}

	rec.Fingerprint = "def"
	if err := s.PutRecord(rec); err != nil {
		t.Fatalf("PutRecord() update error = %v", err)
	}
	if err := s.PutRecord(&ResourceRecord{ProjectID: "p2", URL: "resource://x", Path: "/x"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Records("p1")
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Records() = %d records, want 1", len(got))
	}
	if got[0].Fingerprint != "def" || got[0].Usage != "texture" || !got[0].ModTime.Equal(mod) {
		t.Errorf("record = %+v", got[0])
	}

	if err := s.DeleteRecord("p1", rec.URL); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	if got, _ := s.Records("p1"); len(got) != 0 {
		t.Errorf("Records() after delete = %v", got)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("p1", "ns", "k", true); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	raw, err := s.Get("p1", "ns", "k")
	if err != nil || string(raw) != "true" {
		t.Errorf("Get() after reopen = %s, %v", raw, err)
	}
}
