// ABOUTME: Resolves the single gateway bearer token for the wrapper process
// ABOUTME: Precedence is environment value, persisted token file, then a fresh random token

package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the name of the persisted token file inside the state directory.
const FileName = "gateway.token"

// tokenBytes is the amount of entropy in a generated token (64 hex chars).
const tokenBytes = 32

// Source identifies where the resolved token came from.
type Source string

const (
	SourceEnv       Source = "env"
	SourceFile      Source = "file"
	SourceGenerated Source = "generated"
)

// Resolver produces one stable token per process.
type Resolver struct {
	external string
	path     string
	logger   *slog.Logger

	once   sync.Once
	token  string
	source Source
	err    error

	// randRead is swapped in tests to simulate a broken random source.
	randRead func([]byte) (int, error)
}

// NewResolver creates a resolver for the given state directory. external is the
// externally supplied token value, usually from OPENCLAW_GATEWAY_TOKEN.
func NewResolver(external, stateDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		external: external,
		path:     filepath.Join(stateDir, FileName),
		logger:   logger.With("component", "token"),
		randRead: rand.Read,
	}
}

// Path returns the location of the persisted token file.
func (r *Resolver) Path() string {
	return r.path
}

// Resolve returns the token, computing it on the first call only.
func (r *Resolver) Resolve() (string, error) {
	r.once.Do(func() {
		r.token, r.source, r.err = r.resolve()
		if r.err == nil {
			r.logger.Info("gateway token resolved", "source", r.source, "token", Redact(r.token))
		}
	})
	return r.token, r.err
}

// Source reports where the token came from. Empty until Resolve has succeeded.
func (r *Resolver) Source() Source {
	if _, err := r.Resolve(); err != nil {
		return ""
	}
	return r.source
}

func (r *Resolver) resolve() (string, Source, error) {
	if v := strings.TrimSpace(r.external); v != "" {
		return v, SourceEnv, nil
	}

	if v, ok := r.readPersisted(); ok {
		return v, SourceFile, nil
	}

	tok, err := r.generate()
	if err != nil {
		return "", "", err
	}
	if err := r.persist(tok); err != nil {
		r.logger.Warn("could not persist gateway token, it will not survive a restart",
			"path", r.path,
			"error", err,
		)
	}
	return tok, SourceGenerated, nil
}

func (r *Resolver) readPersisted() (string, bool) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("reading persisted gateway token", "path", r.path, "error", err)
		}
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

func (r *Resolver) generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := r.randRead(buf); err != nil {
		return "", fmt.Errorf("generating gateway token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (r *Resolver) persist(tok string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(r.path, []byte(tok), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Redact shortens a secret to a prefix suitable for logs and API responses.
func Redact(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:8] + "…"
}
