// ABOUTME: Raw gateway config editor and reset endpoints
// ABOUTME: Writes are validated, backed up and atomically replaced before the gateway restarts

package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/2389/coven-wrapper/internal/store"
)

// backupTimeFormat names config backups: openclaw.json.bak-20260102T150405Z.
const backupTimeFormat = "20060102T150405Z"

type configRawResponse struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Content string `json:"content"`
}

type configRawRequest struct {
	Content string `json:"content"`
}

func (a *Admin) handleConfigRawGet(w http.ResponseWriter, r *http.Request) {
	path := a.gw.ConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sendJSON(w, http.StatusOK, configRawResponse{Path: path})
	case err != nil:
		a.logger.Error("failed to read gateway config", "path", path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to read config")
	default:
		sendJSON(w, http.StatusOK, configRawResponse{Path: path, Exists: true, Content: string(data)})
	}
}

func (a *Admin) handleConfigRawPost(w http.ResponseWriter, r *http.Request) {
	var req configRawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !json.Valid([]byte(req.Content)) {
		sendJSONError(w, http.StatusBadRequest, "content is not valid JSON")
		return
	}

	path := a.gw.ConfigPath()
	backup, err := backupFile(path, time.Now().UTC())
	if err != nil {
		a.logger.Error("failed to back up gateway config", "path", path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to back up config")
		return
	}
	if err := writeFileAtomic(path, []byte(req.Content), 0600); err != nil {
		a.logger.Error("failed to write gateway config", "path", path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to write config")
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	a.logger.Info("gateway config replaced", "path", path, "backup", backup)
	a.events.Record(ctx, store.EventConfigReplaced, map[string]any{"path": path, "backup": backup})

	resp := map[string]any{"ok": true, "path": path, "backup": backup}
	if err := a.gw.Restart(ctx); err != nil {
		resp["restartError"] = newRedactor(a.cfg.Token).Redact(err.Error())
	}
	sendJSON(w, http.StatusOK, resp)
}

func (a *Admin) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opContext(r)
	defer cancel()

	path := a.gw.ConfigPath()
	removed, err := a.gw.Reset(ctx)
	if err != nil {
		a.logger.Error("failed to reset gateway config", "path", path, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to remove config")
		return
	}

	a.logger.Info("gateway config reset", "path", path, "removed", removed)
	a.events.Record(ctx, store.EventConfigReset, map[string]any{"path": path, "removed": removed})

	out := "Config file removed. Run onboarding again.\n"
	if !removed {
		out = "No config file to remove.\n"
	}
	sendJSON(w, http.StatusOK, runResponse{OK: true, Output: out})
}

// backupFile copies path next to itself with a timestamp suffix. It returns
// "" when there was nothing to back up.
func backupFile(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.bak-%s", path, now.Format(backupTimeFormat))
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return "", err
	}
	return backup, nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
