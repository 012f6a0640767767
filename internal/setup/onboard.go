// ABOUTME: Onboarding and pairing handlers that shell out to the gateway CLI
// ABOUTME: Maps the onboarding payload to `openclaw onboard` arguments and channel config

package setup

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/2389/coven-wrapper/internal/runner"
	"github.com/2389/coven-wrapper/internal/store"
)

// OnboardRequest is the body of POST /setup/api/run.
type OnboardRequest struct {
	Flow          string `json:"flow"`
	AuthChoice    string `json:"authChoice"`
	AuthSecret    string `json:"authSecret"`
	TelegramToken string `json:"telegramToken"`
	DiscordToken  string `json:"discordToken"`
	SlackBotToken string `json:"slackBotToken"`
	SlackAppToken string `json:"slackAppToken"`
}

// secrets lists the values that must never be echoed back.
func (r OnboardRequest) secrets() []string {
	return []string{r.AuthSecret, r.TelegramToken, r.DiscordToken, r.SlackBotToken, r.SlackAppToken}
}

var validFlows = map[string]bool{
	"quickstart": true,
	"advanced":   true,
	"manual":     true,
}

// authSecretFlags maps an auth choice to the onboard flag carrying its secret.
var authSecretFlags = map[string]string{
	"apiKey":                "--anthropic-api-key",
	"openai-api-key":        "--openai-api-key",
	"openrouter-api-key":    "--openrouter-api-key",
	"ai-gateway-api-key":    "--ai-gateway-api-key",
	"moonshot-api-key":      "--moonshot-api-key",
	"kimi-code-api-key":     "--kimi-code-api-key",
	"gemini-api-key":        "--gemini-api-key",
	"zai-api-key":           "--zai-api-key",
	"minimax-api":           "--minimax-api-key",
	"minimax-api-lightning": "--minimax-api-key",
	"synthetic-api-key":     "--synthetic-api-key",
	"opencode-zen":          "--opencode-zen-api-key",
}

var authChoicePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)

// Validate checks the payload before anything is executed.
func (r *OnboardRequest) Validate() error {
	r.Flow = strings.TrimSpace(r.Flow)
	if r.Flow == "" {
		r.Flow = "quickstart"
	}
	if !validFlows[r.Flow] {
		return fmt.Errorf("unknown flow %q", r.Flow)
	}

	r.AuthChoice = strings.TrimSpace(r.AuthChoice)
	if r.AuthChoice != "" && !authChoicePattern.MatchString(r.AuthChoice) {
		return fmt.Errorf("invalid authChoice %q", r.AuthChoice)
	}
	if _, needsSecret := authSecretFlags[r.AuthChoice]; needsSecret && strings.TrimSpace(r.AuthSecret) == "" {
		return fmt.Errorf("authChoice %q requires authSecret", r.AuthChoice)
	}

	if (r.SlackBotToken == "") != (r.SlackAppToken == "") {
		return fmt.Errorf("slack needs both slackBotToken and slackAppToken")
	}
	return nil
}

// buildOnboardArgs maps a validated request to `onboard` arguments. The
// gateway is always configured for loopback and token auth with the
// wrapper's own token and port.
func buildOnboardArgs(req OnboardRequest, cfg Config) []string {
	args := []string{
		"onboard",
		"--non-interactive",
		"--accept-risk",
		"--json",
		"--no-install-daemon",
		"--skip-health",
		"--workspace", cfg.WorkspaceDir,
		"--gateway-bind", "loopback",
		"--gateway-port", strconv.Itoa(cfg.GatewayPort),
		"--gateway-auth", "token",
		"--gateway-token", cfg.Token,
		"--flow", req.Flow,
	}

	if req.AuthChoice != "" {
		args = append(args, "--auth-choice", req.AuthChoice)
		if flag, ok := authSecretFlags[req.AuthChoice]; ok {
			args = append(args, flag, strings.TrimSpace(req.AuthSecret))
		}
	}
	return args
}

// channelConfig is one `config set --json channels.<name>` call.
type channelConfig struct {
	Name  string
	Value map[string]any
}

// channelConfigs returns the channel sections implied by the request.
func channelConfigs(req OnboardRequest) []channelConfig {
	var out []channelConfig
	if t := strings.TrimSpace(req.TelegramToken); t != "" {
		out = append(out, channelConfig{Name: "telegram", Value: map[string]any{
			"enabled":     true,
			"dmPolicy":    "pairing",
			"botToken":    t,
			"groupPolicy": "allowlist",
			"streamMode":  "partial",
		}})
	}
	if t := strings.TrimSpace(req.DiscordToken); t != "" {
		out = append(out, channelConfig{Name: "discord", Value: map[string]any{
			"enabled":     true,
			"token":       t,
			"groupPolicy": "allowlist",
			"dm":          map[string]any{"policy": "pairing"},
		}})
	}
	if req.SlackBotToken != "" && req.SlackAppToken != "" {
		out = append(out, channelConfig{Name: "slack", Value: map[string]any{
			"enabled":  true,
			"botToken": strings.TrimSpace(req.SlackBotToken),
			"appToken": strings.TrimSpace(req.SlackAppToken),
		}})
	}
	return out
}

// runResponse is returned by every endpoint that runs CLI commands.
type runResponse struct {
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

func (a *Admin) handleRun(w http.ResponseWriter, r *http.Request) {
	var req OnboardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	if a.gw.Configured() {
		out := "Already configured. Use reset to onboard again.\n"
		if err := a.gw.EnsureRunning(ctx); err != nil {
			out += fmt.Sprintf("[gateway] not running: %v\n", err)
		}
		sendJSON(w, http.StatusOK, runResponse{OK: true, Output: out})
		return
	}

	for _, dir := range []string{a.cfg.StateDir, a.cfg.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			a.logger.Error("failed to create directory", "path", dir, "error", err)
			sendJSONError(w, http.StatusInternalServerError, "could not create state directories")
			return
		}
	}

	red := newRedactor(append(req.secrets(), a.cfg.Token)...)
	var out strings.Builder

	res := a.run.Run(ctx, a.cliCommand(buildOnboardArgs(req, a.cfg)...))
	fmt.Fprintf(&out, "[onboard] exit=%d\n%s", res.ExitCode, ensureNewline(res.Output))
	ok := res.OK() && a.gw.Configured()

	var channels []string
	if ok {
		for _, ch := range channelConfigs(req) {
			value, err := json.Marshal(ch.Value)
			if err != nil {
				continue
			}
			cr := a.run.Run(ctx, a.cliCommand("config", "set", "--json", "channels."+ch.Name, string(value)))
			fmt.Fprintf(&out, "[%s] exit=%d\n%s", ch.Name, cr.ExitCode, ensureNewline(cr.Output))
			if cr.OK() {
				channels = append(channels, ch.Name)
			}
		}

		if err := a.gw.Restart(ctx); err != nil {
			fmt.Fprintf(&out, "[gateway] restart failed: %v\n", err)
		} else {
			out.WriteString("[gateway] running\n")
		}
	} else if res.OK() {
		out.WriteString("[onboard] finished but no config file was written\n")
	}

	a.logger.Info("onboarding finished", "ok", ok, "exit_code", res.ExitCode, "flow", req.Flow, "channels", channels)
	a.events.Record(ctx, store.EventOnboardRun, map[string]any{
		"ok":         ok,
		"exitCode":   res.ExitCode,
		"flow":       req.Flow,
		"authChoice": req.AuthChoice,
		"channels":   channels,
	})

	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	sendJSON(w, status, runResponse{OK: ok, Output: red.Redact(out.String())})
}

// PairingRequest is the body of POST /setup/api/pairing/approve.
type PairingRequest struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

var (
	channelPattern     = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)
	pairingCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)
)

func (a *Admin) handlePairingApprove(w http.ResponseWriter, r *http.Request) {
	var req PairingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	req.Code = strings.TrimSpace(req.Code)
	if !channelPattern.MatchString(req.Channel) {
		sendJSONError(w, http.StatusBadRequest, "invalid channel")
		return
	}
	if !pairingCodePattern.MatchString(req.Code) {
		sendJSONError(w, http.StatusBadRequest, "invalid pairing code")
		return
	}

	ctx, cancel := opContext(r)
	defer cancel()

	res := a.run.Run(ctx, a.cliCommand("pairing", "approve", req.Channel, req.Code))
	if res.OK() {
		a.events.Record(ctx, store.EventPairingApproved, map[string]any{"channel": req.Channel})
	}

	sendJSON(w, statusFor(res), runResponse{
		OK:     res.OK(),
		Output: newRedactor(a.cfg.Token).Redact(res.Output),
	})
}

// statusFor maps a CLI result to an HTTP status.
func statusFor(res runner.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
