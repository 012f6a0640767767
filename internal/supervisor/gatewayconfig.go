// ABOUTME: Narrow read-only view of the gateway's persisted openclaw.json
// ABOUTME: Extracts gateway.auth fields with gjson and reports malformed documents distinctly

package supervisor

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// AuthView is the only part of the gateway's config the supervisor relies
// on. The rest of the document belongs to the gateway and is never decoded.
type AuthView struct {
	Mode  string
	Token string
}

// ReadAuthView reads path and extracts gateway.auth. A missing file is
// returned as the underlying fs error so callers can test os.ErrNotExist.
func ReadAuthView(path string) (AuthView, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AuthView{}, fmt.Errorf("reading gateway config: %w", err)
	}
	return ParseAuthView(data)
}

// ParseAuthView extracts gateway.auth from a JSON document. Documents that are
// not JSON, or whose auth section has the wrong shape, yield
// ErrMalformedConfig. An absent token is reported as an empty string.
func ParseAuthView(data []byte) (AuthView, error) {
	if !gjson.ValidBytes(data) {
		return AuthView{}, fmt.Errorf("%w: not valid JSON", ErrMalformedConfig)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return AuthView{}, fmt.Errorf("%w: top level is not an object", ErrMalformedConfig)
	}

	auth := root.Get("gateway.auth")
	if !auth.Exists() {
		return AuthView{}, nil
	}
	if !auth.IsObject() {
		return AuthView{}, fmt.Errorf("%w: gateway.auth is not an object", ErrMalformedConfig)
	}

	var view AuthView
	if mode := auth.Get("mode"); mode.Exists() {
		if mode.Type != gjson.String {
			return AuthView{}, fmt.Errorf("%w: gateway.auth.mode is not a string", ErrMalformedConfig)
		}
		view.Mode = mode.Str
	}
	if tok := auth.Get("token"); tok.Exists() {
		if tok.Type != gjson.String {
			return AuthView{}, fmt.Errorf("%w: gateway.auth.token is not a string", ErrMalformedConfig)
		}
		view.Token = tok.Str
	}
	return view, nil
}
