// ABOUTME: Runs external commands to completion or as supervised long-lived children
// ABOUTME: Captures combined output for one-shot commands and reports child exits via callback

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// ExitLaunchFailed is the exit code reported when a command could not be
// launched at all (executable missing, permission denied, ...).
const ExitLaunchFailed = 127

// Command describes an external invocation.
type Command struct {
	Name string
	Args []string
	// Env is applied on top of the current process environment.
	Env map[string]string
	Dir string
}

// String renders the command for logs. Arguments are not redacted; callers
// must not log commands carrying secrets.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a one-shot command.
type Result struct {
	ExitCode int
	Output   string
}

// OK reports whether the command exited with status zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// SpawnError reports that a supervised child could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Runner launches commands. The zero value is not usable; use New.
type Runner struct {
	logger *slog.Logger

	// Stdout and Stderr receive a supervised child's output.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a Runner whose supervised children inherit the wrapper's
// standard streams.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger.With("component", "runner"),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes cmd to completion. Stdout and stderr are written into one
// buffer in arrival order.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = mergeEnv(cmd.Env)
	c.Dir = cmd.Dir

	// Same writer for both streams: exec shares a single pipe, so ordering
	// between the two is preserved.
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	err := c.Run()
	if err == nil {
		return Result{ExitCode: 0, Output: out.String()}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 here means the child was killed by a signal.
		return Result{ExitCode: exitErr.ExitCode(), Output: out.String()}
	}

	r.logger.Warn("command failed to launch", "command", cmd.Name, "error", err)
	if out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	out.WriteString(err.Error())
	out.WriteByte('\n')
	return Result{ExitCode: ExitLaunchFailed, Output: out.String()}
}

// Start launches cmd as a long-lived child. onExit is called exactly once
// from a separate goroutine when the child terminates, with the error from
// Wait (nil on a clean exit).
func (r *Runner) Start(cmd Command, onExit func(error)) (*Process, error) {
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Env = mergeEnv(cmd.Env)
	c.Dir = cmd.Dir
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr

	if err := c.Start(); err != nil {
		return nil, &SpawnError{Command: cmd.Name, Err: err}
	}

	p := &Process{
		cmd:  c,
		done: make(chan struct{}),
	}
	go p.wait(onExit)
	return p, nil
}

// Process is a running supervised child.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *Process) wait(onExit func(error)) {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
	if onExit != nil {
		onExit(err)
	}
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Signal sends sig to the child. Signalling an exited child returns
// os.ErrProcessDone.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Kill forcibly terminates the child.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the Wait error once Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// mergeEnv overlays extra on the current environment. Later entries win in
// exec, so overlay keys are appended after the inherited ones.
func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
