// ABOUTME: Setup web UI for onboarding and operating the gateway
// ABOUTME: Route registration, login/logout, page rendering, status and shared JSON helpers

package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/coven-wrapper/internal/auth"
	"github.com/2389/coven-wrapper/internal/runner"
	"github.com/2389/coven-wrapper/internal/store"
	"github.com/2389/coven-wrapper/internal/supervisor"
	"github.com/2389/coven-wrapper/internal/token"
)

const (
	// BasePath is where the setup surface is mounted.
	BasePath = "/setup"

	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 20

	// opTimeout bounds CLI runs and restarts started from the UI. They are
	// detached from the request so a closed tab does not abort them midway.
	opTimeout = 10 * time.Minute

	// versionTimeout bounds the `--version` probe in status.
	versionTimeout = 5 * time.Second
)

// Gateway is the supervisor surface the setup flow drives.
type Gateway interface {
	EnsureRunning(ctx context.Context) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) (bool, error)
	State() supervisor.State
	Configured() bool
	ConfigPath() string
	Target() string
	Pid() int
}

// CommandRunner runs one-shot gateway CLI commands.
type CommandRunner interface {
	Run(ctx context.Context, cmd runner.Command) runner.Result
}

// EventLog is the journal as seen by the setup UI.
type EventLog interface {
	store.Journal
	ListEvents(ctx context.Context, limit int) ([]store.Event, error)
}

// Config holds setup configuration
type Config struct {
	CLI          string
	StateDir     string
	WorkspaceDir string
	GatewayPort  int
	Token        string
	TokenSource  token.Source
}

// Admin handles setup routes
type Admin struct {
	cfg    Config
	gate   *auth.Gate
	gw     Gateway
	run    CommandRunner
	events EventLog
	help   template.HTML
	logger *slog.Logger
}

// New creates a new Admin handler
func New(cfg Config, gate *auth.Gate, gw Gateway, run CommandRunner, events EventLog, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Admin{
		cfg:    cfg,
		gate:   gate,
		gw:     gw,
		run:    run,
		events: events,
		logger: logger.With("component", "setup"),
	}
	a.help = a.renderHelp()
	return a
}

// RegisterRoutes registers all setup routes on the mux
func (a *Admin) RegisterRoutes(mux *http.ServeMux) {
	page := a.gate.Middleware(a.denyPage)
	api := a.gate.Middleware(auth.DenyJSON)

	// Public routes
	mux.HandleFunc("GET /setup/healthz", a.handleHealthz)
	mux.HandleFunc("GET /setup/login", a.handleLoginPage)
	mux.HandleFunc("POST /setup/login", a.handleLogin)

	// Pages
	mux.Handle("GET /setup", page(http.HandlerFunc(a.handleSetupPage)))
	mux.Handle("GET /setup/{$}", page(http.HandlerFunc(a.handleSetupPage)))
	mux.Handle("POST /setup/logout", page(http.HandlerFunc(a.handleLogout)))

	// API
	mux.Handle("GET /setup/api/status", api(http.HandlerFunc(a.handleStatus)))
	mux.Handle("POST /setup/api/run", api(http.HandlerFunc(a.handleRun)))
	mux.Handle("POST /setup/api/pairing/approve", api(http.HandlerFunc(a.handlePairingApprove)))
	mux.Handle("POST /setup/api/reset", api(http.HandlerFunc(a.handleReset)))
	mux.Handle("POST /setup/api/restart", api(http.HandlerFunc(a.handleRestart)))
	mux.Handle("POST /setup/api/console", api(http.HandlerFunc(a.handleConsole)))
	mux.Handle("GET /setup/api/config/raw", api(http.HandlerFunc(a.handleConfigRawGet)))
	mux.Handle("POST /setup/api/config/raw", api(http.HandlerFunc(a.handleConfigRawPost)))
	mux.Handle("GET /setup/api/events", api(http.HandlerFunc(a.handleEvents)))

	// Anything else under /setup stays here instead of reaching the gateway.
	notFound := func(w http.ResponseWriter, r *http.Request) {
		sendJSONError(w, http.StatusNotFound, "not found")
	}
	mux.HandleFunc("/setup", notFound)
	mux.HandleFunc("/setup/", notFound)
}

// denyPage sends anonymous page requests to the login form.
func (a *Admin) denyPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, BasePath+"/login", http.StatusSeeOther)
}

func (a *Admin) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleLoginPage renders the login page
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if a.gate.Authenticate(r) != nil {
		http.Redirect(w, r, BasePath, http.StatusSeeOther)
		return
	}
	a.renderLoginPage(w, http.StatusOK, "")
}

type loginRequest struct {
	Password string `json:"password"`
}

// handleLogin accepts a form post from the login page or a JSON body from
// scripts. JSON callers get the session token back for bearer use.
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	wantsJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var password string
	if wantsJSON {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		password = req.Password
	} else {
		if err := r.ParseForm(); err != nil {
			a.renderLoginPage(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		password = r.FormValue("password")
	}

	if !a.gate.CheckPassword(password) {
		a.logger.Warn("setup login failed", "remote", r.RemoteAddr)
		if wantsJSON {
			sendJSONError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		a.renderLoginPage(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	sessionToken, err := a.gate.IssueSession(w, r)
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		if wantsJSON {
			sendJSONError(w, http.StatusInternalServerError, "could not create session")
			return
		}
		a.renderLoginPage(w, http.StatusInternalServerError, "An error occurred")
		return
	}

	a.logger.Info("setup login successful", "remote", r.RemoteAddr)
	if wantsJSON {
		sendJSON(w, http.StatusOK, map[string]any{"ok": true, "token": sessionToken})
		return
	}
	http.Redirect(w, r, BasePath, http.StatusSeeOther)
}

// handleLogout logs out the current session
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.gate.ClearSession(w)
	http.Redirect(w, r, BasePath+"/login", http.StatusSeeOther)
}

func (a *Admin) handleSetupPage(w http.ResponseWriter, r *http.Request) {
	csrfToken := a.gate.EnsureCSRFToken(w, r)
	a.renderSetupPage(w, csrfToken)
}

// statusResponse is the body of GET /setup/api/status.
type statusResponse struct {
	Configured    bool   `json:"configured"`
	State         string `json:"state"`
	GatewayTarget string `json:"gatewayTarget"`
	Pid           int    `json:"pid,omitempty"`
	TokenSource   string `json:"tokenSource"`
	TokenPrefix   string `json:"tokenPrefix"`
	StateDir      string `json:"stateDir"`
	WorkspaceDir  string `json:"workspaceDir"`
	CLIVersion    string `json:"cliVersion,omitempty"`
}

func (a *Admin) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Configured:    a.gw.Configured(),
		State:         string(a.gw.State()),
		GatewayTarget: a.gw.Target(),
		Pid:           a.gw.Pid(),
		TokenSource:   string(a.cfg.TokenSource),
		TokenPrefix:   token.Redact(a.cfg.Token),
		StateDir:      a.cfg.StateDir,
		WorkspaceDir:  a.cfg.WorkspaceDir,
	}

	ctx, cancel := context.WithTimeout(r.Context(), versionTimeout)
	defer cancel()
	if res := a.run.Run(ctx, a.cliCommand("--version")); res.OK() {
		resp.CLIVersion = strings.TrimSpace(res.Output)
	}

	sendJSON(w, http.StatusOK, resp)
}

func (a *Admin) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			sendJSONError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	events, err := a.events.ListEvents(r.Context(), limit)
	if err != nil {
		a.logger.Error("failed to list events", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"events": events})
}

// cliCommand builds a gateway CLI invocation with the state overlay.
func (a *Admin) cliCommand(args ...string) runner.Command {
	return runner.Command{
		Name: a.cfg.CLI,
		Args: args,
		Env: map[string]string{
			"OPENCLAW_STATE_DIR":     a.cfg.StateDir,
			"OPENCLAW_WORKSPACE_DIR": a.cfg.WorkspaceDir,
		},
	}
}

// opContext detaches long operations from the request.
func opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), opTimeout)
}

// renderHelp converts the embedded help markdown once.
func (a *Admin) renderHelp() template.HTML {
	md, err := helpFS.ReadFile("docs/help.md")
	if err != nil {
		a.logger.Error("failed to read help", "error", err)
		return ""
	}
	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(md, &htmlBuf); err != nil {
		a.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>Failed to render help content.</p>")
	}
	return template.HTML(htmlBuf.String())
}

// Template data types
type loginData struct {
	Title string
	Error string
}

type setupData struct {
	Title     string
	CSRFToken string
	Help      template.HTML
}

func (a *Admin) renderLoginPage(w http.ResponseWriter, status int, errorMsg string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, loginData{Title: "Setup login", Error: errorMsg}); err != nil {
		a.logger.Error("failed to render login page", "error", err)
	}
}

func (a *Admin) renderSetupPage(w http.ResponseWriter, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/setup.html"))

	data := setupData{
		Title:     "Setup",
		CSRFToken: csrfToken,
		Help:      a.help,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("failed to render setup page", "error", err)
	}
}

// decodeJSON decodes a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// sendJSON writes v as a JSON response.
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}
