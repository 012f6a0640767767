// ABOUTME: Reverse proxy in front of the gateway child with bearer token injection
// ABOUTME: Gates every request on the supervisor and maps start failures to 302 or 503

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-wrapper/internal/runner"
	"github.com/2389/coven-wrapper/internal/supervisor"
)

// SetupPath is where unconfigured browser requests are redirected.
const SetupPath = "/setup"

// Ensurer guarantees a running gateway before traffic is forwarded.
type Ensurer interface {
	EnsureRunning(ctx context.Context) error
}

// Proxy is an http.Handler forwarding to the gateway child.
type Proxy struct {
	sup    Ensurer
	target *url.URL
	token  string
	logger *slog.Logger

	rp       *httputil.ReverseProxy
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
}

// New creates a Proxy for the child at target (e.g. http://127.0.0.1:18789)
// that stamps every forwarded request with tok.
func New(sup Ensurer, target, tok string, logger *slog.Logger) (*Proxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway target %q must be http or https", target)
	}
	if tok == "" {
		return nil, errors.New("proxy: token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Proxy{
		sup:    sup,
		target: u,
		token:  tok,
		logger: logger.With("component", "proxy"),
		dialer: &websocket.Dialer{
			// Loopback child: never route through HTTP_PROXY.
			Proxy:            nil,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is forwarded to the gateway, which applies its own policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Header.Set("Authorization", "Bearer "+tok)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Warn("gateway request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			sendJSONError(w, http.StatusServiceUnavailable, "gateway unreachable")
		},
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := p.sup.EnsureRunning(r.Context()); err != nil {
		p.unavailable(w, r, err)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		p.serveWebSocket(w, r)
		return
	}
	p.rp.ServeHTTP(w, r)
}

// unavailable answers a request that could not be forwarded.
func (p *Proxy) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, supervisor.ErrNotConfigured) {
		if wantsHTML(r) {
			http.Redirect(w, r, SetupPath, http.StatusFound)
			return
		}
		sendJSONError(w, http.StatusServiceUnavailable, "gateway not configured, visit "+SetupPath)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	p.logger.Warn("gateway unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
	w.Header().Set("Retry-After", "5")
	sendJSONError(w, http.StatusServiceUnavailable, reason(err))
}

// reason maps a start failure to a message safe to show clients.
func reason(err error) string {
	var spawnErr *runner.SpawnError
	switch {
	case errors.Is(err, supervisor.ErrTokenMismatch):
		return "gateway token out of sync"
	case errors.Is(err, supervisor.ErrReadinessTimeout):
		return "gateway did not become ready in time"
	case errors.Is(err, supervisor.ErrGatewayExited):
		return "gateway exited during startup"
	case errors.As(err, &spawnErr):
		return "gateway could not be launched"
	case errors.Is(err, context.DeadlineExceeded):
		return "gateway is still starting"
	default:
		return "gateway unavailable"
	}
}

// wantsHTML reports whether r looks like a browser navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
