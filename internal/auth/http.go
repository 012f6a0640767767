// ABOUTME: HTTP gate for the setup surface: password check, sessions and CSRF
// ABOUTME: Authenticates via session cookie, bearer session token or HTTP Basic

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SessionCookieName holds the session JWT.
	SessionCookieName = "openclaw_setup_session"
	// CSRFCookieName holds the double-submit CSRF token.
	CSRFCookieName = "openclaw_setup_csrf"
	// CSRFHeader must echo the CSRF cookie on cookie-authenticated writes.
	CSRFHeader = "X-CSRF-Token"

	csrfFormField  = "csrf_token"
	sessionSubject = "setup"
	secretBytes    = 32
)

// hashCost is lowered in tests.
var hashCost = bcrypt.DefaultCost

// Gate authenticates setup requests against the shared setup password.
type Gate struct {
	hash     []byte
	verifier *JWTVerifier
	ttl      time.Duration
	path     string
}

// NewGate hashes password and creates a session signer with a fresh random
// secret. Cookies are scoped to cookiePath.
func NewGate(password string, ttl time.Duration, cookiePath string) (*Gate, error) {
	if strings.TrimSpace(password) == "" {
		return nil, errors.New("setup password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing setup password: %w", err)
	}
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating session secret: %w", err)
	}
	if cookiePath == "" {
		cookiePath = "/"
	}
	return &Gate{
		hash:     hash,
		verifier: NewJWTVerifier(secret),
		ttl:      ttl,
		path:     cookiePath,
	}, nil
}

// CheckPassword reports whether password matches the setup password.
func (g *Gate) CheckPassword(password string) bool {
	if password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
}

// Authenticate returns the identity carried by r, or nil.
func (g *Gate) Authenticate(r *http.Request) *AuthContext {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		if sub, err := g.verifier.Verify(c.Value); err == nil {
			return &AuthContext{Method: MethodSession, Subject: sub}
		}
	}

	if tok, errMsg := extractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		if sub, err := g.verifier.Verify(tok); err == nil {
			return &AuthContext{Method: MethodBearer, Subject: sub}
		}
	}

	if user, pass, ok := r.BasicAuth(); ok && g.CheckPassword(pass) {
		return &AuthContext{Method: MethodBasic, Subject: user}
	}
	return nil
}

// IssueSession sets the session and CSRF cookies and returns the session
// token so non-browser callers can use it as a bearer token.
func (g *Gate) IssueSession(w http.ResponseWriter, r *http.Request) (string, error) {
	tok, err := g.verifier.Generate(sessionSubject, g.ttl)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	csrf, err := generateSecureToken()
	if err != nil {
		return "", err
	}

	secure := isSecureRequest(r)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    tok,
		Path:     g.path,
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	g.setCSRFCookie(w, csrf, secure)
	return tok, nil
}

// ClearSession expires both cookies.
func (g *Gate) ClearSession(w http.ResponseWriter) {
	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     g.path,
			MaxAge:   -1,
			HttpOnly: name == SessionCookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// EnsureCSRFToken returns the request's CSRF token, setting a new cookie if
// it has none.
func (g *Gate) EnsureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CSRFCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	csrf, err := generateSecureToken()
	if err != nil {
		return ""
	}
	g.setCSRFCookie(w, csrf, isSecureRequest(r))
	return csrf
}

func (g *Gate) setCSRFCookie(w http.ResponseWriter, value string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    value,
		Path:     g.path,
		MaxAge:   int(g.ttl.Seconds()),
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// validCSRF checks the header (or form field) against the CSRF cookie.
func validCSRF(r *http.Request) bool {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	sent := r.Header.Get(CSRFHeader)
	if sent == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		sent = r.FormValue(csrfFormField)
	}
	return sent != "" && subtle.ConstantTimeCompare([]byte(sent), []byte(c.Value)) == 1
}

// Middleware rejects unauthenticated requests with onDenied and enforces
// CSRF on cookie-authenticated writes.
func (g *Gate) Middleware(onDenied http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := g.Authenticate(r)
			if ac == nil {
				onDenied(w, r)
				return
			}
			if ac.ViaCookie() && !isSafeMethod(r.Method) && !validCSRF(r) {
				sendJSONError(w, http.StatusForbidden, "missing or invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), ac)))
		})
	}
}

// DenyJSON answers anonymous API requests with 401 and a Basic challenge.
func DenyJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="openclaw setup"`)
	sendJSONError(w, http.StatusUnauthorized, "authentication required")
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// generateSecureToken returns 32 random bytes, hex encoded.
func generateSecureToken() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
