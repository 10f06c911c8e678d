package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ExitResult describes how an engine process terminated
type ExitResult struct {
	Crashed  bool
	ExitCode int // -1 when killed by a signal
	Err      error
}

// Process is a started engine process
type Process interface {
	Pid() int
	Kill() error
}

// Launcher starts engine processes. onExit is called exactly once, from any
// goroutine, when the process terminates.
type Launcher interface {
	Start(cmdline []string, env []string, onExit func(ExitResult)) (Process, error)
}

// ExecLauncher launches the engine as a child process with os/exec
type ExecLauncher struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Start implements Launcher
func (l *ExecLauncher) Start(cmdline []string, env []string, onExit func(ExitResult)) (Process, error) {
	if len(cmdline) == 0 || cmdline[0] == "" {
		return nil, errors.New("empty command line")
	}

	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = l.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmdline[0], err)
	}

	go func() {
		err := cmd.Wait()
		onExit(classifyExit(cmd.ProcessState, err))
	}()

	return &execProcess{cmd: cmd}, nil
}

func classifyExit(state *os.ProcessState, err error) ExitResult {
	if state == nil {
		return ExitResult{Crashed: true, ExitCode: -1, Err: err}
	}
	res := ExitResult{ExitCode: state.ExitCode()}
	if !state.Success() {
		res.Crashed = true
		res.Err = err
	}
	return res
}
