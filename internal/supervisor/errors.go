// ABOUTME: Error types returned by the gateway supervisor
// ABOUTME: Sentinels for errors.Is plus typed errors carrying redacted diagnostics

package supervisor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured means the gateway has no persisted configuration yet.
	// Callers should send the user to the setup flow.
	ErrNotConfigured = errors.New("gateway not configured")

	// ErrTokenMismatch matches every *TokenSyncError.
	ErrTokenMismatch = errors.New("gateway token mismatch")

	// ErrReadinessTimeout matches every *ReadinessTimeoutError.
	ErrReadinessTimeout = errors.New("gateway did not become ready in time")

	// ErrMalformedConfig reports a persisted gateway config that cannot be
	// read through the auth view.
	ErrMalformedConfig = errors.New("malformed gateway config")

	// ErrGatewayExited means the child exited before it was held as ready.
	ErrGatewayExited = errors.New("gateway exited before becoming ready")
)

// TokenSyncError reports that the persisted config does not carry the
// wrapper's token after a sync. Expected and Actual hold redacted prefixes
// only.
type TokenSyncError struct {
	Expected string
	Actual   string
	Err      error
}

func (e *TokenSyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token sync failed (expected %s): %v", e.Expected, e.Err)
	}
	return fmt.Sprintf("token sync failed: expected %s, config has %s", e.Expected, e.Actual)
}

func (e *TokenSyncError) Unwrap() error {
	return e.Err
}

func (e *TokenSyncError) Is(target error) bool {
	return target == ErrTokenMismatch
}

// ReadinessTimeoutError reports that no ready path answered before Timeout.
type ReadinessTimeoutError struct {
	Target  string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("gateway at %s did not become ready within %s", e.Target, e.Timeout)
}

func (e *ReadinessTimeoutError) Is(target error) bool {
	return target == ErrReadinessTimeout
}
