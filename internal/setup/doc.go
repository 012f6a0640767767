// Package setup provides the password-protected onboarding UI at /setup.
//
// # Overview
//
// The setup surface lets an operator configure the gateway without a shell:
//
//   - Onboarding: maps a small JSON payload onto `openclaw onboard
//     --non-interactive` plus per-channel `config set --json` calls, then
//     restarts the gateway
//   - Pairing: approves channel pairing codes
//   - Console: a fixed allowlist of gateway and CLI diagnostics
//   - Raw config: view or replace openclaw.json (a .bak copy is kept)
//   - Reset: stops the gateway and deletes its config
//   - Events: recent entries from the wrapper's journal
//
// # Routes
//
//	GET  /setup/healthz           unauthenticated liveness
//	GET  /setup                   setup page (redirects to login when anonymous)
//	GET  /setup/login             login form
//	POST /setup/login             password login, sets session cookie
//	POST /setup/logout            clears the session
//	GET  /setup/api/status        gateway and token status
//	POST /setup/api/run           onboarding
//	POST /setup/api/pairing/approve
//	POST /setup/api/reset
//	POST /setup/api/restart
//	POST /setup/api/console
//	GET  /setup/api/config/raw
//	POST /setup/api/config/raw
//	GET  /setup/api/events
//
// Any other method or path under /setup answers 404 here and is never
// forwarded to the gateway.
//
// Authentication is handled by internal/auth. Every piece of CLI output
// returned to the browser is passed through a redactor that masks the
// gateway token and any secret submitted with the request.
package setup
