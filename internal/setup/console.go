// ABOUTME: Allowlisted debug console and gateway restart endpoint
// ABOUTME: Only named commands with validated arguments ever reach the CLI or the supervisor

package setup

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/coven-wrapper/internal/runner"
)

// ConsoleRequest is the body of POST /setup/api/console.
type ConsoleRequest struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg"`
}

const (
	defaultTailLines = 200
	maxTailLines     = 1000
)

var configKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-\[\]]{1,128}$`)

// consoleCommand executes one allowlisted console entry.
type consoleCommand func(a *Admin, ctx context.Context, arg string) (runner.Result, error)

// errBadArg marks a console argument that failed validation.
type errBadArg string

func (e errBadArg) Error() string { return string(e) }

var consoleCommands = map[string]consoleCommand{
	"gateway.restart": func(a *Admin, ctx context.Context, _ string) (runner.Result, error) {
		return lifecycleResult("restarted", a.gw.Restart(ctx)), nil
	},
	"gateway.stop": func(a *Admin, ctx context.Context, _ string) (runner.Result, error) {
		return lifecycleResult("stopped", a.gw.Stop(ctx)), nil
	},
	"gateway.start": func(a *Admin, ctx context.Context, _ string) (runner.Result, error) {
		return lifecycleResult("running", a.gw.EnsureRunning(ctx)), nil
	},
	"openclaw.version": cliEntry("--version"),
	"openclaw.status":  cliEntry("status"),
	"openclaw.health":  cliEntry("health"),
	"openclaw.doctor":  cliEntry("doctor"),
	"openclaw.config.get": func(a *Admin, ctx context.Context, arg string) (runner.Result, error) {
		if !configKeyPattern.MatchString(arg) {
			return runner.Result{}, errBadArg("config.get needs a key like gateway.port")
		}
		return a.run.Run(ctx, a.cliCommand("config", "get", arg)), nil
	},
	"openclaw.logs.tail": func(a *Admin, ctx context.Context, arg string) (runner.Result, error) {
		n, err := tailLines(arg)
		if err != nil {
			return runner.Result{}, err
		}
		return a.run.Run(ctx, a.cliCommand("logs", "--tail", strconv.Itoa(n))), nil
	},
}

func cliEntry(args ...string) consoleCommand {
	return func(a *Admin, ctx context.Context, _ string) (runner.Result, error) {
		return a.run.Run(ctx, a.cliCommand(args...)), nil
	}
}

// lifecycleResult renders a supervisor call as console output.
func lifecycleResult(verb string, err error) runner.Result {
	if err != nil {
		return runner.Result{ExitCode: 1, Output: fmt.Sprintf("gateway: %v\n", err)}
	}
	return runner.Result{Output: "gateway " + verb + "\n"}
}

// tailLines parses the optional line count, clamped to [1, maxTailLines].
func tailLines(arg string) (int, error) {
	if arg == "" {
		return defaultTailLines, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errBadArg("logs.tail takes a line count")
	}
	return max(1, min(n, maxTailLines)), nil
}

func (a *Admin) handleConsole(w http.ResponseWriter, r *http.Request) {
	var req ConsoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Cmd = strings.TrimSpace(req.Cmd)
	req.Arg = strings.TrimSpace(req.Arg)

	fn, ok := consoleCommands[req.Cmd]
	if !ok {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("command %q is not allowed", req.Cmd))
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	res, err := fn(a, ctx, req.Arg)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Info("console command", "cmd", req.Cmd, "exit_code", res.ExitCode)
	sendJSON(w, statusFor(res), runResponse{
		OK:     res.OK(),
		Output: newRedactor(a.cfg.Token).Redact(res.Output),
	})
}

// restartResponse is the body of POST /setup/api/restart.
type restartResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func (a *Admin) handleRestart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opContext(r)
	defer cancel()

	if err := a.gw.Restart(ctx); err != nil {
		a.logger.Warn("restart from setup failed", "error", err)
		sendJSON(w, http.StatusServiceUnavailable, restartResponse{
			Reason: newRedactor(a.cfg.Token).Redact(err.Error()),
		})
		return
	}
	sendJSON(w, http.StatusOK, restartResponse{OK: true})
}
