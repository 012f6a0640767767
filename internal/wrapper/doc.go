// Package wrapper assembles the coven-wrapper process.
//
// A Wrapper owns the pieces that share the gateway token and its lifetime:
// the token resolver, the command runner, the gateway supervisor, the event
// journal, the /setup surface and the reverse proxy. They are mounted on a
// single http.ServeMux:
//
//	/setup/...   setup UI and API (password protected)
//	/            everything else, proxied to the gateway child
//
// Run serves the mux on a TCP listener, or on a Tailscale node when
// tailscale.enabled is set, starts the config drift watcher and brings the
// gateway up in the background when it is already configured. Cancelling
// the context shuts the HTTP server down, stops the gateway child and closes
// the journal.
package wrapper
