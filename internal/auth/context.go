// ABOUTME: Authentication context for tracking how a setup request authenticated
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Method names an authentication method.
type Method string

const (
	MethodSession Method = "session"
	MethodBearer  Method = "bearer"
	MethodBasic   Method = "basic"
)

// AuthContext holds the identity extracted from a request.
type AuthContext struct {
	Method  Method
	Subject string // session subject, or the Basic username
}

// ViaCookie reports whether the request relied on the browser session cookie
// and therefore needs CSRF protection.
func (a *AuthContext) ViaCookie() bool {
	return a.Method == MethodSession
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}
