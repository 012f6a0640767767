// Package proxy forwards every non-setup request to the gateway child.
//
// Each request first asks the supervisor to ensure the child is running.
// Failures never reach the child: an unconfigured gateway sends browsers to
// /setup, and everything else gets a 503 with a short JSON reason.
//
// Plain HTTP goes through httputil.ReverseProxy. WebSocket upgrades are
// bridged with gorilla/websocket: the client side is upgraded only after the
// child accepted its own handshake, then frames are pumped both ways until
// either side closes.
//
// Both paths replace any client Authorization header with the wrapper's
// bearer token. The token never appears in responses.
package proxy
