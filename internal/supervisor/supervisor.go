// ABOUTME: Gateway supervisor: single-flight start, token sync, readiness and restart
// ABOUTME: Owns the tracked child process handle and its generation counter

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/2389/coven-wrapper/internal/config"
	"github.com/2389/coven-wrapper/internal/runner"
	"github.com/2389/coven-wrapper/internal/store"
	"github.com/2389/coven-wrapper/internal/token"
)

// DefaultStopTimeout bounds how long Stop waits after SIGTERM before killing.
const DefaultStopTimeout = 5 * time.Second

// State is the supervisor's externally visible lifecycle state.
type State string

const (
	StateNotConfigured State = "not_configured"
	StateIdle          State = "idle"
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StateRestarting    State = "restarting"
)

// Process is a spawned gateway child.
type Process interface {
	Pid() int
	Signal(os.Signal) error
	Kill() error
	Done() <-chan struct{}
}

// Runner runs the gateway CLI. *runner.Runner satisfies it through ExecRunner.
type Runner interface {
	Run(ctx context.Context, cmd runner.Command) runner.Result
	Start(cmd runner.Command, onExit func(error)) (Process, error)
}

// ExecRunner adapts a *runner.Runner to the Runner interface.
func ExecRunner(r *runner.Runner) Runner {
	return execRunner{r: r}
}

type execRunner struct {
	r *runner.Runner
}

func (e execRunner) Run(ctx context.Context, cmd runner.Command) runner.Result {
	return e.r.Run(ctx, cmd)
}

func (e execRunner) Start(cmd runner.Command, onExit func(error)) (Process, error) {
	p, err := e.r.Start(cmd, onExit)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures a Supervisor.
type Options struct {
	// CLI is the gateway command line tool.
	CLI          string
	StateDir     string
	WorkspaceDir string
	Host         string
	Port         int
	Token        string

	ReadyPaths   []string
	ReadyTimeout time.Duration
	PollInterval time.Duration
	ProbeTimeout time.Duration
	RestartGrace time.Duration
	StopTimeout  time.Duration

	// ProcessPattern matches executable names reaped on restart.
	ProcessPattern string

	Journal store.Journal
	Reaper  Reaper
}

// OptionsFromConfig maps the gateway section of the wrapper config.
func OptionsFromConfig(cfg config.GatewayConfig, tok string) Options {
	return Options{
		CLI:            cfg.CLI,
		StateDir:       cfg.StateDir,
		WorkspaceDir:   cfg.WorkspaceDir,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Token:          tok,
		ReadyPaths:     cfg.ReadyPaths,
		ReadyTimeout:   cfg.ReadyTimeout,
		PollInterval:   cfg.PollInterval,
		ProbeTimeout:   cfg.ProbeTimeout,
		RestartGrace:   cfg.RestartGrace,
		ProcessPattern: cfg.ProcessPattern,
	}
}

func (o *Options) applyDefaults() {
	if o.CLI == "" {
		o.CLI = config.DefaultCLI
	}
	if o.WorkspaceDir == "" {
		o.WorkspaceDir = filepath.Join(o.StateDir, "workspace")
	}
	if o.Host == "" {
		o.Host = config.DefaultGatewayHost
	}
	if o.Port == 0 {
		o.Port = config.DefaultGatewayPort
	}
	if len(o.ReadyPaths) == 0 {
		o.ReadyPaths = config.DefaultReadyPaths
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = config.DefaultReadyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = config.DefaultPollInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = config.DefaultProbeTimeout
	}
	if o.RestartGrace < 0 {
		o.RestartGrace = 0
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.ProcessPattern == "" {
		o.ProcessPattern = config.DefaultProcessPattern
	}
	if o.Journal == nil {
		o.Journal = store.Discard
	}
}

// startCall is the shared outcome of one start sequence.
type startCall struct {
	done chan struct{}
	err  error
}

// Supervisor owns the gateway child. Construct it once with New and share it.
type Supervisor struct {
	opts    Options
	run     Runner
	reaper  Reaper
	pattern *regexp.Regexp
	client  *http.Client
	logger  *slog.Logger

	mu         sync.Mutex
	proc       Process
	gen        uint64
	starting   *startCall
	restarting chan struct{}
}

// New creates a Supervisor. opts.StateDir and opts.Token are required.
func New(opts Options, run Runner, logger *slog.Logger) (*Supervisor, error) {
	if opts.StateDir == "" {
		return nil, errors.New("supervisor: state dir is required")
	}
	if opts.Token == "" {
		return nil, errors.New("supervisor: token is required")
	}
	if run == nil {
		return nil, errors.New("supervisor: runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()

	pattern, err := regexp.Compile(opts.ProcessPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling process pattern: %w", err)
	}

	reaper := opts.Reaper
	if reaper == nil {
		reaper = PSReaper{}
	}

	return &Supervisor{
		opts:    opts,
		run:     run,
		reaper:  reaper,
		pattern: pattern,
		client:  &http.Client{CheckRedirect: noRedirect},
		logger:  logger.With("component", "supervisor"),
	}, nil
}

// Token returns the bearer token the child is started with.
func (s *Supervisor) Token() string {
	return s.opts.Token
}

// Target returns the child's internal base URL.
func (s *Supervisor) Target() string {
	return fmt.Sprintf("http://%s:%d", s.opts.Host, s.opts.Port)
}

// ConfigPath returns the child's persisted configuration file.
func (s *Supervisor) ConfigPath() string {
	return filepath.Join(s.opts.StateDir, config.DefaultConfigFileName)
}

// Configured reports whether the persisted config exists. It is checked on
// every call and never cached.
func (s *Supervisor) Configured() bool {
	_, err := os.Stat(s.ConfigPath())
	return err == nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	configured := s.Configured()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.restarting != nil:
		return StateRestarting
	case !configured:
		return StateNotConfigured
	case s.proc != nil:
		return StateRunning
	case s.starting != nil:
		return StateStarting
	default:
		return StateIdle
	}
}

// Pid returns the tracked child's pid, or 0 when none is held.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid()
}

// EnsureRunning returns nil once a ready child is held, starting one if
// needed. Concurrent callers share one start sequence. The sequence runs on a
// detached context: ctx only bounds how long this caller waits.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	for {
		if !s.Configured() {
			return ErrNotConfigured
		}

		s.mu.Lock()
		if gate := s.restarting; gate != nil {
			s.mu.Unlock()
			select {
			case <-gate:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if s.proc != nil {
			s.mu.Unlock()
			return nil
		}
		call := s.starting
		if call == nil {
			call = &startCall{done: make(chan struct{})}
			s.starting = call
			go s.runStart(call)
		}
		s.mu.Unlock()

		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) runStart(call *startCall) {
	defer close(call.done)
	defer func() {
		s.mu.Lock()
		s.starting = nil
		s.mu.Unlock()
	}()

	call.err = s.startSequence(context.Background())
	if call.err != nil {
		s.logger.Error("gateway start failed", "error", call.err)
		s.opts.Journal.Record(context.Background(), store.EventGatewayStartFailed, map[string]any{
			"error": call.err.Error(),
		})
	}
}

func (s *Supervisor) startSequence(ctx context.Context) error {
	if !s.Configured() {
		return ErrNotConfigured
	}

	if err := os.MkdirAll(s.opts.StateDir, 0700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.MkdirAll(s.opts.WorkspaceDir, 0755); err != nil {
		return fmt.Errorf("creating workspace dir: %w", err)
	}

	s.syncToken(ctx)
	if err := s.verifyToken(); err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	cmd := runner.Command{
		Name: s.opts.CLI,
		Args: []string{
			"gateway", "run",
			"--bind", "loopback",
			"--port", strconv.Itoa(s.opts.Port),
			"--auth", "token",
			"--token", s.opts.Token,
		},
		Env: s.childEnv(),
	}

	proc, err := s.run.Start(cmd, func(exitErr error) {
		s.markDown(gen, exitErr)
	})
	if err != nil {
		return err
	}
	pid := proc.Pid()
	s.logger.Info("gateway spawned", "pid", pid, "generation", gen, "target", s.Target())

	if err := s.waitReady(ctx, proc.Done()); err != nil {
		if errors.Is(err, ErrReadinessTimeout) {
			s.logger.Warn("terminating gateway that missed readiness deadline", "pid", pid)
			go s.terminate(proc)
		}
		return err
	}

	// The child may exit between its last probe answer and here. Its exit
	// callback then found nothing to clear, so it must not be held.
	s.mu.Lock()
	select {
	case <-proc.Done():
		s.mu.Unlock()
		s.logger.Warn("gateway exited right after answering readiness", "pid", pid, "generation", gen)
		return ErrGatewayExited
	default:
		s.proc = proc
	}
	s.mu.Unlock()

	s.logger.Info("gateway ready", "pid", pid, "generation", gen)
	s.opts.Journal.Record(ctx, store.EventGatewayStarted, map[string]any{
		"pid":        pid,
		"generation": gen,
		"target":     s.Target(),
	})
	return nil
}

// syncToken writes the auth mode and token into the persisted config. A
// non-zero exit is only logged: verifyToken catches a real mismatch.
func (s *Supervisor) syncToken(ctx context.Context) {
	sets := [][]string{
		{"config", "set", "gateway.auth.mode", "token"},
		{"config", "set", "gateway.auth.token", s.opts.Token},
	}
	for _, args := range sets {
		res := s.run.Run(ctx, runner.Command{Name: s.opts.CLI, Args: args, Env: s.childEnv()})
		if !res.OK() {
			s.logger.Warn("gateway config set failed",
				"key", args[2],
				"exit_code", res.ExitCode,
				"output", s.scrub(res.Output),
			)
		}
	}
}

func (s *Supervisor) verifyToken() error {
	expected := token.Redact(s.opts.Token)

	view, err := ReadAuthView(s.ConfigPath())
	if err != nil {
		return &TokenSyncError{Expected: expected, Err: err}
	}
	if view.Token != s.opts.Token {
		err := &TokenSyncError{Expected: expected, Actual: token.Redact(view.Token)}
		s.logger.Error("gateway token mismatch after sync", "expected", err.Expected, "actual", err.Actual)
		return err
	}
	return nil
}

func (s *Supervisor) childEnv() map[string]string {
	return map[string]string{
		"OPENCLAW_STATE_DIR":     s.opts.StateDir,
		"OPENCLAW_WORKSPACE_DIR": s.opts.WorkspaceDir,
	}
}

// scrub replaces the token with its redacted form in CLI output.
func (s *Supervisor) scrub(out string) string {
	return strings.ReplaceAll(strings.TrimSpace(out), s.opts.Token, token.Redact(s.opts.Token))
}

// markDown is the exit callback of the child spawned as generation gen.
func (s *Supervisor) markDown(gen uint64, exitErr error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("ignoring exit of stale gateway generation", "generation", gen)
		return
	}
	wasHeld := s.proc != nil
	var pid int
	if wasHeld {
		pid = s.proc.Pid()
	}
	s.proc = nil
	s.mu.Unlock()

	detail := map[string]any{"generation": gen}
	if pid != 0 {
		detail["pid"] = pid
	}
	if exitErr != nil {
		detail["error"] = exitErr.Error()
	}
	if wasHeld {
		s.logger.Warn("gateway exited", "pid", pid, "generation", gen, "error", exitErr)
	} else {
		s.logger.Info("gateway exited", "pid", pid, "generation", gen, "error", exitErr)
	}
	s.opts.Journal.Record(context.Background(), store.EventGatewayExited, detail)
}

// enterGate closes the door on new starts, waits for an in-flight start to
// finish, and returns a func that reopens it.
func (s *Supervisor) enterGate(ctx context.Context) (func(), error) {
	s.mu.Lock()
	for s.restarting != nil {
		gate := s.restarting
		s.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
	}
	gate := make(chan struct{})
	s.restarting = gate
	release := func() {
		s.mu.Lock()
		s.restarting = nil
		s.mu.Unlock()
		close(gate)
	}

	for s.starting != nil {
		call := s.starting
		s.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return release, nil
}

// takeProc clears and returns the held child.
func (s *Supervisor) takeProc() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.proc
	s.proc = nil
	return p
}

// Restart terminates the tracked child, reaps untracked gateway processes,
// waits the grace interval and starts a fresh child.
func (s *Supervisor) Restart(ctx context.Context) error {
	release, err := s.enterGate(ctx)
	if err != nil {
		return err
	}

	if proc := s.takeProc(); proc != nil {
		s.logger.Info("stopping gateway for restart", "pid", proc.Pid())
		if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("failed to signal gateway", "pid", proc.Pid(), "error", err)
		}
	}

	reaped, err := s.reaper.Reap(s.pattern, os.Getpid())
	if err != nil {
		s.logger.Warn("failed to reap untracked gateway processes", "error", err)
	}
	if len(reaped) > 0 {
		s.logger.Info("reaped untracked gateway processes", "pids", reaped)
	}

	s.opts.Journal.Record(ctx, store.EventGatewayRestarted, map[string]any{"reaped": len(reaped)})

	timer := time.NewTimer(s.opts.RestartGrace)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		release()
		return ctx.Err()
	}
	release()

	return s.EnsureRunning(ctx)
}

// Stop terminates the tracked child: SIGTERM, then SIGKILL once the stop
// timeout passes. A later EnsureRunning starts it again.
func (s *Supervisor) Stop(ctx context.Context) error {
	release, err := s.enterGate(ctx)
	if err != nil {
		return err
	}
	defer release()

	proc := s.takeProc()
	if proc == nil {
		return nil
	}
	s.logger.Info("stopping gateway", "pid", proc.Pid())
	s.terminate(proc)
	return nil
}

// Reset stops the tracked child and deletes the persisted config while the
// restart gate is held, so no EnsureRunning can respawn against a config
// that is about to disappear. It reports whether a config file was removed.
func (s *Supervisor) Reset(ctx context.Context) (bool, error) {
	release, err := s.enterGate(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	if proc := s.takeProc(); proc != nil {
		s.logger.Info("stopping gateway for reset", "pid", proc.Pid())
		s.terminate(proc)
	}

	err = os.Remove(s.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing gateway config: %w", err)
	}
	return true, nil
}

// terminate sends SIGTERM, waits up to the stop timeout and then kills.
func (s *Supervisor) terminate(proc Process) {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return
		}
		s.logger.Warn("failed to signal gateway", "pid", proc.Pid(), "error", err)
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-proc.Done():
		return
	case <-timer.C:
	}

	s.logger.Warn("gateway ignored SIGTERM, killing", "pid", proc.Pid())
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Error("failed to kill gateway", "pid", proc.Pid(), "error", err)
		return
	}
	<-proc.Done()
}
