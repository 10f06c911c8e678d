package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRecord(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, true)

	l.Record(OpScriptExecute, "p1", errors.New("boom"), map[string]interface{}{"statement": "1+1"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["operation"] != "script.execute" || entry["success"] != false || entry["error"] != "boom" {
		t.Errorf("entry = %v", entry)
	}
	if entry["project_id"] != "p1" || !strings.Contains(entry["details"].(string), "1+1") {
		t.Errorf("entry = %v", entry)
	}
}

func TestDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, false)
	l.Record(OpProjectOpen, "p1", nil, nil)
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	l.SetEnabled(true)
	l.Record(OpProjectOpen, "p1", nil, nil)
	if !strings.Contains(buf.String(), `"success":true`) {
		t.Errorf("enabled logger wrote %q", buf.String())
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Record(OpExportMaps, "", nil, nil)
}

func TestStatement(t *testing.T) {
	if Statement("short") != "short" {
		t.Error("short statement changed")
	}
	long := strings.Repeat("x", 500)
	if got := Statement(long); len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("Statement() len = %d", len(got))
	}
}
