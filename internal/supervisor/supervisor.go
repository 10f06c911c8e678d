// Package supervisor owns the lifecycle of the single external engine process.
//
// All methods must be called from the bridge loop. Process exits
// and delayed launches come back through the Post function, so the state
// machine is never touched concurrently.
package supervisor

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/flowptr/painter-bridge/internal/config"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
)

// ErrNotConfigured is returned by Bootstrap when the invocation lacks the
// interpreter, startup script or port.
var ErrNotConfigured = errors.New("engine invocation is not configured")

// Launch reasons
const (
	ReasonStartup    = "startup"
	ReasonCrash      = "crash"
	ReasonDisconnect = "disconnect"
)

// LaunchEvent is reported after every launch attempt
type LaunchEvent struct {
	ID      string
	Reason  string
	Cmdline []string
	Pid     int
	Err     error
}

// Options configures a Supervisor
type Options struct {
	Invocation      config.Invocation
	Launcher        Launcher
	Post            func(func())
	RestartBurst    int
	RestartInterval time.Duration
	OnLaunch        func(LaunchEvent)
}

// Supervisor starts and restarts the engine process
type Supervisor struct {
	opts    Options
	limiter *rate.Limiter

	state   State
	process Process
	gen     int // bumped per launch so stale exits are ignored
	timer   *time.Timer
	stopped bool

	// set when the engine disconnected while its process was still running
	restartOnExit bool

	launches int
}

// New creates a supervisor in the NotStarted state
func New(opts Options) *Supervisor {
	if opts.Launcher == nil {
		opts.Launcher = &ExecLauncher{}
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	if opts.RestartBurst <= 0 {
		opts.RestartBurst = 5
	}
	if opts.RestartInterval <= 0 {
		opts.RestartInterval = 10 * time.Second
	}
	s := &Supervisor{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.RestartInterval), opts.RestartBurst),
	}
	s.setState(StateNotStarted)
	return s
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	return s.state
}

// Launches returns the number of launch attempts made
func (s *Supervisor) Launches() int {
	return s.launches
}

// Bootstrap launches the engine unless one is already starting or running.
// An incomplete invocation makes it a logged no-op.
func (s *Supervisor) Bootstrap(reason string) error {
	if s.stopped {
		return nil
	}
	if !s.opts.Invocation.Complete() {
		logger.Warn("supervisor: engine not launched (%s): interpreter, startup script and port are required; not running under the pipeline launcher?", reason)
		return ErrNotConfigured
	}
	if s.state == StateRunning && reason == ReasonDisconnect {
		s.restartOnExit = true
	}
	if s.state.inFlight() {
		logger.Debug("supervisor: %s restart ignored, engine is %s", reason, s.state)
		return nil
	}

	s.setState(StateStarting)

	r := s.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		s.launch(reason)
		return nil
	}

	logger.Warn("supervisor: engine restarting too often, delaying %s launch by %s", reason, delay.Round(time.Millisecond))
	metrics.RecordLaunch(reason, "throttled")
	gen := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.opts.Post(func() {
			if s.stopped || s.gen != gen || s.state != StateStarting {
				return
			}
			s.launch(reason)
		})
	})
	return nil
}

func (s *Supervisor) launch(reason string) {
	s.gen++
	gen := s.gen
	s.launches++
	s.restartOnExit = false

	inv := s.opts.Invocation
	cmdline := []string{inv.Interpreter, inv.StartupScript}
	event := LaunchEvent{ID: uuid.New().String(), Reason: reason, Cmdline: cmdline}

	proc, err := s.opts.Launcher.Start(cmdline, inv.Env(), func(res ExitResult) {
		s.opts.Post(func() { s.handleExit(gen, res) })
	})
	if err != nil {
		logger.Error("supervisor: failed to launch engine (%s): %v", reason, err)
		metrics.RecordLaunch(reason, "error")
		s.setState(StateCrashed)
		event.Err = err
		s.report(event)
		return
	}

	s.process = proc
	event.Pid = proc.Pid()
	logger.Info("supervisor: engine launched (%s) pid=%d: %s %s", reason, event.Pid, inv.Interpreter, inv.StartupScript)
	metrics.RecordLaunch(reason, "ok")
	s.setState(StateRunning)
	s.report(event)
}

func (s *Supervisor) handleExit(gen int, res ExitResult) {
	if gen != s.gen {
		return
	}
	s.process = nil

	if s.stopped {
		s.setState(StateEnded)
		return
	}

	if !res.Crashed {
		logger.Info("supervisor: engine exited cleanly")
		s.setState(StateEnded)
		if s.restartOnExit {
			_ = s.Bootstrap(ReasonDisconnect)
		}
		return
	}

	if res.Err != nil {
		logger.Warn("supervisor: engine crashed (exit code %d): %v", res.ExitCode, res.Err)
	} else {
		logger.Warn("supervisor: engine crashed (exit code %d)", res.ExitCode)
	}
	s.setState(StateCrashed)
	_ = s.Bootstrap(ReasonCrash)
}

// Stop kills the engine and disables further launches
func (s *Supervisor) Stop() {
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.process != nil {
		if err := s.process.Kill(); err != nil {
			logger.Warn("supervisor: failed to kill engine pid=%d: %v", s.process.Pid(), err)
		}
	}
}

func (s *Supervisor) setState(state State) {
	s.state = state
	metrics.SetEngineState(state.String(), stateNames)
}

func (s *Supervisor) report(event LaunchEvent) {
	if s.opts.OnLaunch != nil {
		s.opts.OnLaunch(event)
	}
}
