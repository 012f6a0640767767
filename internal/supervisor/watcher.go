// ABOUTME: Watches the gateway's persisted config for token drift with fsnotify
// ABOUTME: Drift is logged and journaled; the next start re-syncs the token

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/coven-wrapper/internal/config"
	"github.com/2389/coven-wrapper/internal/store"
	"github.com/2389/coven-wrapper/internal/token"
)

// driftSettle coalesces bursts of writes (the CLI rewrites the file once per
// key) into a single check.
const driftSettle = 300 * time.Millisecond

// Watch blocks until ctx is done, checking the persisted config for token
// drift after every change. The state directory is watched rather than the
// file so creation and atomic replacement are seen too.
func (s *Supervisor) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.StateDir, 0700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(s.opts.StateDir); err != nil {
		return fmt.Errorf("watching %s: %w", s.opts.StateDir, err)
	}

	settle := time.NewTimer(driftSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != config.DefaultConfigFileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			settle.Reset(driftSettle)
		case <-settle.C:
			s.CheckDrift(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("config watcher error", "error", err)
		}
	}
}

// CheckDrift compares the persisted token with the wrapper's token. It
// returns true when they differ.
func (s *Supervisor) CheckDrift(ctx context.Context) bool {
	view, err := ReadAuthView(s.ConfigPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cannot read gateway config for drift check", "error", err)
		}
		return false
	}
	if view.Token == s.opts.Token {
		return false
	}

	expected, actual := token.Redact(s.opts.Token), token.Redact(view.Token)
	s.logger.Warn("gateway config token drifted from wrapper token", "expected", expected, "actual", actual)
	s.opts.Journal.Record(ctx, store.EventTokenDrift, map[string]any{
		"expected": expected,
		"actual":   actual,
	})
	return true
}
