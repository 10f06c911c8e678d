package main

import (
	"path/filepath"
	"testing"

	"github.com/flowptr/painter-bridge/internal/config"
	"github.com/flowptr/painter-bridge/internal/host/local"
)

func TestParseFlags(t *testing.T) {
	opts, done, err := parseFlags([]string{"--config", "c.jsonc", "--debug", "--mcp", "--http", "127.0.0.1:9000", "?SGTK_SUBSTANCEPAINTER_ENGINE_PORT=4000"})
	if err != nil || done {
		t.Fatalf("parseFlags: done=%v err=%v", done, err)
	}
	if opts.configPath != "c.jsonc" || !opts.debug || !opts.enableMCP || opts.httpAddress != "127.0.0.1:9000" {
		t.Errorf("opts = %+v", opts)
	}
	if opts.invocation != "?SGTK_SUBSTANCEPAINTER_ENGINE_PORT=4000" {
		t.Errorf("invocation = %q", opts.invocation)
	}

	if _, _, err := parseFlags([]string{"a", "b"}); err == nil {
		t.Error("two positional arguments should fail")
	}
	if _, done, err := parseFlags([]string{"--version"}); err != nil || !done {
		t.Errorf("--version: done=%v err=%v", done, err)
	}
	if _, _, err := parseFlags([]string{"--nope"}); err == nil {
		t.Error("unknown flag should fail")
	}
}

func TestResolveInvocation(t *testing.T) {
	env := map[string]string{
		config.KeyInterpreter:   "/env/python",
		config.KeyStartupScript: "/env/startup.py",
		config.KeyPort:          "5000",
	}
	getenv := func(k string) string { return env[k] }
	noenv := func(string) string { return "" }

	withEngine := config.Default()
	withEngine.Engine.Interpreter = "/cfg/python"
	withEngine.Engine.StartupScript = "/cfg/startup.py"

	halfEngine := config.Default()
	halfEngine.Engine.Interpreter = "/cfg/python"

	tests := []struct {
		name   string
		arg    string
		cfg    *config.UnifiedConfig
		getenv func(string) string
		want   config.Invocation
	}{
		{
			name:   "argument wins over environment",
			arg:    "?SGTK_SUBSTANCEPAINTER_ENGINE_PYTHON=/arg/python&SGTK_SUBSTANCEPAINTER_ENGINE_STARTUP=/arg/s.py&SGTK_SUBSTANCEPAINTER_ENGINE_PORT=4000",
			cfg:    config.Default(),
			getenv: getenv,
			want:   config.Invocation{Interpreter: "/arg/python", StartupScript: "/arg/s.py", Port: 4000},
		},
		{
			name:   "environment when no argument",
			cfg:    config.Default(),
			getenv: getenv,
			want:   config.Invocation{Interpreter: "/env/python", StartupScript: "/env/startup.py", Port: 5000},
		},
		{
			name:   "config fallback",
			cfg:    withEngine,
			getenv: noenv,
			want:   config.Invocation{Interpreter: "/cfg/python", StartupScript: "/cfg/startup.py", Port: config.DefaultPort},
		},
		{
			name:   "partial engine config is ignored",
			cfg:    halfEngine,
			getenv: noenv,
			want:   config.Invocation{Port: config.DefaultPort},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInvocation(tt.arg, tt.cfg, tt.getenv)
			if err != nil {
				t.Fatalf("resolveInvocation: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := resolveInvocation("?SGTK_SUBSTANCEPAINTER_ENGINE_PORT=abc", config.Default(), noenv); err == nil {
		t.Error("invalid port should fail")
	}
}

func TestOpenOrCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.spp")

	painter := local.New(local.Options{ExportRoot: dir})
	if err := openOrCreate(painter.Workspace, path); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !painter.Workspace.IsOpen() || painter.Workspace.Path() != path {
		t.Fatalf("workspace not open at %s", path)
	}
	if err := painter.Workspace.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other := local.New(local.Options{ExportRoot: dir})
	if err := openOrCreate(other.Workspace, path); err != nil {
		t.Fatalf("open: %v", err)
	}
	if other.Workspace.ID() != painter.Workspace.ID() {
		t.Errorf("reopened id = %q, want %q", other.Workspace.ID(), painter.Workspace.ID())
	}
}
