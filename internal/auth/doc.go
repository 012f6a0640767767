// Package auth guards the wrapper's /setup surface with the shared setup
// password.
//
// # Authentication Methods
//
// A request is authenticated by the first method that succeeds:
//
//   - Session cookie: a HS256 JWT issued by POST /setup/login after a bcrypt
//     password check. Sessions last SETUP_SESSION_TTL and are signed with a
//     per-process secret, so restarting the wrapper logs everyone out.
//
//   - Bearer token: the same session JWT in an Authorization header, for
//     scripts that logged in once.
//
//   - HTTP Basic: any username with the setup password, for curl and other
//     one-shot clients.
//
// # CSRF
//
// State-changing requests authenticated by cookie must echo the CSRF cookie
// in the X-CSRF-Token header (double-submit). Header-based methods are not
// sent automatically by browsers and skip the check.
//
// The authenticated method is attached to the request context:
//
//	ac := auth.FromContext(r.Context())
//	logger.Info("setup action", "via", ac.Method)
package auth
