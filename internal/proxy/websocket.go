// ABOUTME: WebSocket bridge between a client and the gateway child
// ABOUTME: Dials the child with the bearer token first, then upgrades the client and pumps frames

package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// forwardedWSHeaders are copied from the client handshake to the child's.
// gorilla sets the handshake headers itself and rejects duplicates.
var forwardedWSHeaders = []string{
	"Origin",
	"Cookie",
	"User-Agent",
	"Sec-WebSocket-Protocol",
	"X-Forwarded-For",
	"X-Forwarded-Proto",
}

func (p *Proxy) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	u := *p.target
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path, u.RawPath = joinURLPath(p.target, r.URL)
	u.RawQuery = r.URL.RawQuery

	header := http.Header{}
	for _, name := range forwardedWSHeaders {
		for _, v := range r.Header.Values(name) {
			header.Add(name, v)
		}
	}
	header.Set("Authorization", "Bearer "+p.token)

	backend, resp, err := p.dialer.DialContext(r.Context(), u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		p.logger.Warn("gateway websocket dial failed", "path", r.URL.Path, "status", status, "error", err)
		sendJSONError(w, http.StatusServiceUnavailable, "gateway websocket unavailable")
		return
	}

	var upgradeHeader http.Header
	if proto := resp.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		upgradeHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
	}
	client, err := p.upgrader.Upgrade(w, r, upgradeHeader)
	if err != nil {
		// Upgrade has already replied to the client.
		p.logger.Debug("client websocket upgrade failed", "error", err)
		backend.Close()
		return
	}

	p.logger.Debug("websocket bridged", "path", r.URL.Path)

	errc := make(chan error, 2)
	go pump(backend, client, errc)
	go pump(client, backend, errc)

	err = <-errc
	client.Close()
	backend.Close()
	<-errc

	if err != nil && !isNormalClose(err) {
		p.logger.Debug("websocket bridge closed", "path", r.URL.Path, "error", err)
	}
}

// pump copies messages from src to dst. A close frame from src is relayed
// to dst before returning.
func pump(dst, src *websocket.Conn, errc chan<- error) {
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code := ce.Code
				if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
					code = websocket.CloseNormalClosure
				}
				_ = dst.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ce.Text))
			}
			errc <- err
			return
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			errc <- err
			return
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// joinURLPath joins the target and request paths the way the HTTP proxy's
// SetURL does, keeping the request's percent-encoding in RawPath.
func joinURLPath(a, b *url.URL) (path, rawpath string) {
	if a.RawPath == "" && b.RawPath == "" {
		return singleJoiningSlash(a.Path, b.Path), ""
	}
	apath := a.EscapedPath()
	bpath := b.EscapedPath()

	aslash := strings.HasSuffix(apath, "/")
	bslash := strings.HasPrefix(bpath, "/")

	switch {
	case aslash && bslash:
		return a.Path + b.Path[1:], apath + bpath[1:]
	case !aslash && !bslash:
		return a.Path + "/" + b.Path, apath + "/" + bpath
	}
	return a.Path + b.Path, apath + bpath
}
