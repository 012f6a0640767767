// ABOUTME: Readiness polling for a freshly spawned gateway child
// ABOUTME: Any HTTP response on any ready path counts; the overall wait is bounded

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// noRedirect makes a redirect response itself count as an answer.
func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// waitReady probes every ready path in turn until one answers, the child
// exits (exited is closed) or the readiness timeout elapses. A probe in
// flight is bounded by the probe timeout and by the overall deadline.
func (s *Supervisor) waitReady(ctx context.Context, exited <-chan struct{}) error {
	deadline := time.Now().Add(s.opts.ReadyTimeout)
	target := s.Target()

	for {
		for _, path := range s.opts.ReadyPaths {
			if s.probe(ctx, target+path, deadline) {
				s.logger.Debug("gateway answered readiness probe", "path", path)
				return nil
			}
			if !time.Now().Before(deadline) {
				break
			}
		}

		if !time.Now().Before(deadline) {
			return &ReadinessTimeoutError{Target: target, Timeout: s.opts.ReadyTimeout}
		}

		timer := time.NewTimer(s.opts.PollInterval)
		select {
		case <-exited:
			timer.Stop()
			return ErrGatewayExited
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// probe reports whether url produced any HTTP response.
func (s *Supervisor) probe(ctx context.Context, url string, deadline time.Time) bool {
	probeDeadline := time.Now().Add(s.opts.ProbeTimeout)
	if deadline.Before(probeDeadline) {
		probeDeadline = deadline
	}
	ctx, cancel := context.WithDeadline(ctx, probeDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			s.logger.Debug("readiness probe failed", "url", url, "error", err)
		}
		return false
	}
	_ = resp.Body.Close()
	return true
}
