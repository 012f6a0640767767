// ABOUTME: Wrapper orchestrator that wires token, supervisor, setup and proxy together
// ABOUTME: Manages the public HTTP server, background gateway start and graceful shutdown

package wrapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/coven-wrapper/internal/auth"
	"github.com/2389/coven-wrapper/internal/config"
	"github.com/2389/coven-wrapper/internal/proxy"
	"github.com/2389/coven-wrapper/internal/runner"
	"github.com/2389/coven-wrapper/internal/setup"
	"github.com/2389/coven-wrapper/internal/store"
	"github.com/2389/coven-wrapper/internal/supervisor"
	"github.com/2389/coven-wrapper/internal/token"
)

// shutdownTimeout bounds HTTP drain plus stopping the child.
const shutdownTimeout = 30 * time.Second

// Wrapper orchestrates the coven-wrapper server components.
type Wrapper struct {
	config      *config.Config
	token       string
	tokenSource token.Source
	store       *store.SQLiteStore
	supervisor  *supervisor.Supervisor
	setup       *setup.Admin
	proxy       *proxy.Proxy
	mux         *http.ServeMux
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// New creates a Wrapper. The gateway token is resolved (and persisted if it
// had to be generated) before anything else is built.
func New(cfg *config.Config, logger *slog.Logger) (*Wrapper, error) {
	if logger == nil {
		logger = slog.Default()
	}

	resolver := token.NewResolver(cfg.Gateway.Token, cfg.Gateway.StateDir, logger)
	tok, err := resolver.Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving gateway token: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	w, err := build(cfg, tok, resolver.Source(), st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return w, nil
}

// build wires the components that depend on the resolved token.
func build(cfg *config.Config, tok string, source token.Source, st *store.SQLiteStore, logger *slog.Logger) (*Wrapper, error) {
	run := runner.New(logger)

	opts := supervisor.OptionsFromConfig(cfg.Gateway, tok)
	opts.Journal = st
	sup, err := supervisor.New(opts, supervisor.ExecRunner(run), logger)
	if err != nil {
		return nil, fmt.Errorf("creating supervisor: %w", err)
	}

	gate, err := auth.NewGate(cfg.Setup.Password, cfg.Setup.SessionTTL, setup.BasePath)
	if err != nil {
		return nil, fmt.Errorf("creating setup gate: %w", err)
	}

	admin := setup.New(setup.Config{
		CLI:          cfg.Gateway.CLI,
		StateDir:     cfg.Gateway.StateDir,
		WorkspaceDir: cfg.Gateway.WorkspaceDir,
		GatewayPort:  cfg.Gateway.Port,
		Token:        tok,
		TokenSource:  source,
	}, gate, sup, run, st, logger)

	px, err := proxy.New(sup, sup.Target(), tok, logger)
	if err != nil {
		return nil, fmt.Errorf("creating proxy: %w", err)
	}

	mux := http.NewServeMux()
	admin.RegisterRoutes(mux)
	mux.Handle("/", px)

	w := &Wrapper{
		config:      cfg,
		token:       tok,
		tokenSource: source,
		store:       st,
		supervisor:  sup,
		setup:       admin,
		proxy:       px,
		mux:         mux,
		logger:      logger.With("component", "wrapper"),
	}
	w.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return w, nil
}

// Handler returns the combined setup and proxy handler.
func (w *Wrapper) Handler() http.Handler {
	return w.mux
}

// Supervisor exposes the gateway supervisor.
func (w *Wrapper) Supervisor() *supervisor.Supervisor {
	return w.supervisor
}

// TokenSource reports where the gateway token came from.
func (w *Wrapper) TokenSource() token.Source {
	return w.tokenSource
}

// setupListener creates the public listener (Tailscale or TCP).
func (w *Wrapper) setupListener(ctx context.Context) (net.Listener, error) {
	if w.config.Tailscale.Enabled {
		if w.config.Server.Host != "" {
			w.logger.Warn("server.host is ignored when tailscale is enabled", "host", w.config.Server.Host)
		}
		return w.setupTailscaleListener(ctx)
	}

	w.logger.Info("starting wrapper", "http_addr", w.config.Server.HTTPAddr())
	ln, err := net.Listen("tcp", w.config.Server.HTTPAddr())
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (w *Wrapper) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := w.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// startBackground launches the drift watcher and, when the gateway is
// already configured, an eager start so the first request is not the one
// that pays for it.
func (w *Wrapper) startBackground(ctx context.Context) {
	go func() {
		if err := w.supervisor.Watch(ctx); err != nil {
			w.logger.Warn("config watcher stopped", "error", err)
		}
	}()

	if !w.supervisor.Configured() {
		w.logger.Info("gateway not configured yet, visit /setup to onboard")
		return
	}
	go func() {
		if err := w.supervisor.EnsureRunning(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("initial gateway start failed", "error", err)
		}
	}()
}

// Run starts serving and blocks until the context is canceled or the server
// fails. Returns nil on graceful shutdown.
func (w *Wrapper) Run(ctx context.Context) error {
	ln, err := w.setupListener(ctx)
	if err != nil {
		_ = w.gracefulShutdown()
		return err
	}

	errCh := w.startServer(ln)
	w.startBackground(ctx)

	var serverErr error
	select {
	case <-ctx.Done():
		w.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		w.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := w.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already done.
func (w *Wrapper) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return w.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, the gateway child and the journal.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("shutting down wrapper")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", w.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "gateway stop", w.supervisor.Stop(ctx))
	if w.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", w.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", w.store.Close())

	return errors.Join(errs...)
}
