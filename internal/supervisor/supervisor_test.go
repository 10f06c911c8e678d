package supervisor

import (
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/flowptr/painter-bridge/internal/config"
)

type fakeProcess struct {
	pid    int
	killed bool
}

func (p *fakeProcess) Pid() int    { return p.pid }
func (p *fakeProcess) Kill() error { p.killed = true; return nil }

type fakeLauncher struct {
	starts   [][]string
	envs     [][]string
	exits    []func(ExitResult)
	procs    []*fakeProcess
	startErr error
}

func (l *fakeLauncher) Start(cmdline []string, env []string, onExit func(ExitResult)) (Process, error) {
	l.starts = append(l.starts, cmdline)
	l.envs = append(l.envs, env)
	if l.startErr != nil {
		return nil, l.startErr
	}
	p := &fakeProcess{pid: 1000 + len(l.starts)}
	l.exits = append(l.exits, onExit)
	l.procs = append(l.procs, p)
	return p, nil
}

// exit reports termination of the most recent process
func (l *fakeLauncher) exit(res ExitResult) {
	l.exits[len(l.exits)-1](res)
}

var fullInvocation = config.Invocation{
	Interpreter:   "/usr/bin/python3",
	StartupScript: "/opt/engine/startup.py",
	Port:          12345,
}

func newTestSupervisor(l *fakeLauncher, inv config.Invocation) *Supervisor {
	return New(Options{Invocation: inv, Launcher: l})
}

func TestBootstrapLaunchesEngine(t *testing.T) {
	l := &fakeLauncher{}
	var events []LaunchEvent
	s := New(Options{
		Invocation: fullInvocation,
		Launcher:   l,
		OnLaunch:   func(e LaunchEvent) { events = append(events, e) },
	})

	if s.State() != StateNotStarted {
		t.Fatalf("initial state = %s", s.State())
	}
	if err := s.Bootstrap(ReasonStartup); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(l.starts) != 1 {
		t.Fatalf("launches = %d, want 1", len(l.starts))
	}
	got := l.starts[0]
	if len(got) != 2 || got[0] != fullInvocation.Interpreter || got[1] != fullInvocation.StartupScript {
		t.Errorf("cmdline = %q", got)
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}

	env := map[string]bool{}
	for _, kv := range l.envs[0] {
		env[kv] = true
	}
	if !env[config.KeyPort+"=12345"] {
		t.Errorf("child env %q lacks the port", l.envs[0])
	}

	if len(events) != 1 || events[0].Reason != ReasonStartup || events[0].Pid != 1001 || events[0].ID == "" {
		t.Errorf("launch events = %+v", events)
	}
}

func TestBootstrapWithoutConfigurationIsNoop(t *testing.T) {
	tests := []struct {
		name string
		inv  config.Invocation
	}{
		{"empty", config.Invocation{}},
		{"no interpreter", config.Invocation{StartupScript: "s.py", Port: 1}},
		{"no script", config.Invocation{Interpreter: "py", Port: 1}},
		{"no port", config.Invocation{Interpreter: "py", StartupScript: "s.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLauncher{}
			s := newTestSupervisor(l, tt.inv)
			if err := s.Bootstrap(ReasonStartup); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("Bootstrap() error = %v, want ErrNotConfigured", err)
			}
			if len(l.starts) != 0 {
				t.Errorf("launches = %d, want 0", len(l.starts))
			}
			if s.State() != StateNotStarted {
				t.Errorf("state = %s, want not_started", s.State())
			}
		})
	}
}

func TestCrashTriggersExactlyOneRestart(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)

	l.exit(ExitResult{Crashed: true, ExitCode: -1})

	if len(l.starts) != 2 {
		t.Fatalf("launches = %d, want 2", len(l.starts))
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}

	// The disconnect that accompanies the crash must not double-launch.
	_ = s.Bootstrap(ReasonDisconnect)
	if len(l.starts) != 2 {
		t.Errorf("launches after disconnect = %d, want 2", len(l.starts))
	}
}

func TestCleanExitThenDisconnect(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)

	l.exit(ExitResult{Crashed: false})
	if len(l.starts) != 1 {
		t.Fatalf("clean exit relaunched: launches = %d", len(l.starts))
	}
	if s.State() != StateEnded {
		t.Fatalf("state = %s, want ended", s.State())
	}

	_ = s.Bootstrap(ReasonDisconnect)
	if len(l.starts) != 2 {
		t.Errorf("disconnect did not relaunch: launches = %d", len(l.starts))
	}
}

func TestDisconnectThenCleanExit(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)

	// The socket close can reach the loop before the process exit.
	_ = s.Bootstrap(ReasonDisconnect)
	if len(l.starts) != 1 {
		t.Fatalf("disconnect while running relaunched: launches = %d", len(l.starts))
	}

	l.exit(ExitResult{Crashed: false})
	if len(l.starts) != 2 {
		t.Fatalf("engine not relaunched after disconnect and clean exit: launches = %d", len(l.starts))
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}

	// The pending restart belongs to the previous process only.
	l.exit(ExitResult{Crashed: false})
	if len(l.starts) != 2 {
		t.Errorf("clean exit without disconnect relaunched: launches = %d", len(l.starts))
	}
}

func TestDisconnectThenCrashRelaunchesOnce(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)
	_ = s.Bootstrap(ReasonDisconnect)

	l.exit(ExitResult{Crashed: true})
	if len(l.starts) != 2 {
		t.Errorf("launches = %d, want 2", len(l.starts))
	}
}

func TestBootstrapIgnoredWhileRunning(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)
	_ = s.Bootstrap(ReasonDisconnect)
	_ = s.Bootstrap(ReasonDisconnect)
	if len(l.starts) != 1 {
		t.Errorf("launches = %d, want 1", len(l.starts))
	}
}

func TestStaleExitIgnored(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)
	first := l.exits[0]

	l.exit(ExitResult{Crashed: true})
	if len(l.starts) != 2 {
		t.Fatalf("launches = %d, want 2", len(l.starts))
	}

	// A second report for the first process must not touch the new one.
	first(ExitResult{Crashed: true})
	if len(l.starts) != 2 || s.State() != StateRunning {
		t.Errorf("stale exit changed supervisor: launches=%d state=%s", len(l.starts), s.State())
	}
}

func TestLaunchFailureMarksCrashed(t *testing.T) {
	l := &fakeLauncher{startErr: errors.New("no such file")}
	var events []LaunchEvent
	s := New(Options{
		Invocation: fullInvocation,
		Launcher:   l,
		OnLaunch:   func(e LaunchEvent) { events = append(events, e) },
	})
	_ = s.Bootstrap(ReasonStartup)

	if s.State() != StateCrashed {
		t.Errorf("state = %s, want crashed", s.State())
	}
	if len(l.starts) != 1 {
		t.Errorf("launches = %d, want 1 (no retry loop)", len(l.starts))
	}
	if len(events) != 1 || events[0].Err == nil {
		t.Errorf("launch events = %+v, want one failure", events)
	}
}

func TestStopKillsAndDisablesRestart(t *testing.T) {
	l := &fakeLauncher{}
	s := newTestSupervisor(l, fullInvocation)
	_ = s.Bootstrap(ReasonStartup)

	s.Stop()
	if !l.procs[0].killed {
		t.Error("Stop() did not kill the engine")
	}

	l.exit(ExitResult{Crashed: true, ExitCode: -1})
	_ = s.Bootstrap(ReasonDisconnect)
	if len(l.starts) != 1 {
		t.Errorf("launches after Stop = %d, want 1", len(l.starts))
	}
	if s.State() != StateEnded {
		t.Errorf("state = %s, want ended", s.State())
	}
}

func TestRestartThrottle(t *testing.T) {
	l := &fakeLauncher{}
	var mu sync.Mutex
	var posted []func()
	s := New(Options{
		Invocation:      fullInvocation,
		Launcher:        l,
		RestartBurst:    2,
		RestartInterval: 50 * time.Millisecond,
		Post: func(fn func()) {
			mu.Lock()
			posted = append(posted, fn)
			mu.Unlock()
		},
	})
	drain := func() {
		mu.Lock()
		fns := posted
		posted = nil
		mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}

	_ = s.Bootstrap(ReasonStartup)
	l.exit(ExitResult{Crashed: true})
	drain()
	if len(l.starts) != 2 {
		t.Fatalf("launches = %d, want 2 within burst", len(l.starts))
	}

	l.exit(ExitResult{Crashed: true})
	drain()
	if len(l.starts) != 2 {
		t.Fatalf("launches = %d, third launch should be delayed", len(l.starts))
	}
	if s.State() != StateStarting {
		t.Fatalf("state = %s, want starting while throttled", s.State())
	}

	// Duplicates are still ignored while the delayed launch is pending.
	_ = s.Bootstrap(ReasonDisconnect)

	deadline := time.Now().Add(2 * time.Second)
	for len(l.starts) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		drain()
	}
	if len(l.starts) != 3 {
		t.Errorf("launches = %d, want 3 after throttle delay", len(l.starts))
	}
}

func TestStateString(t *testing.T) {
	if StateCrashed.String() != "crashed" || State(99).String() != "unknown" {
		t.Errorf("unexpected state names: %s %s", StateCrashed, State(99))
	}
}

func TestExecLauncherExitClassification(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name    string
		script  string
		crashed bool
		code    int
	}{
		{"clean", "exit 0", false, 0},
		{"nonzero", "exit 3", true, 3},
		{"signal", "kill -9 $$", true, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan ExitResult, 1)
			l := &ExecLauncher{}
			proc, err := l.Start([]string{sh, "-c", tt.script}, nil, func(res ExitResult) { done <- res })
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if proc.Pid() <= 0 {
				t.Errorf("Pid() = %d", proc.Pid())
			}
			select {
			case res := <-done:
				if res.Crashed != tt.crashed || res.ExitCode != tt.code {
					t.Errorf("exit = %+v, want crashed=%v code=%d", res, tt.crashed, tt.code)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("process did not exit")
			}
		})
	}
}

func TestExecLauncherMissingBinary(t *testing.T) {
	l := &ExecLauncher{}
	if _, err := l.Start([]string{"/nonexistent/interpreter"}, nil, func(ExitResult) {}); err == nil {
		t.Error("Start() with missing binary succeeded")
	}
	if _, err := l.Start(nil, nil, func(ExitResult) {}); err == nil {
		t.Error("Start() with empty command line succeeded")
	}
}
