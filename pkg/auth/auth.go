// Package auth provides authentication and authorization for MCP servers.
//
// Authenticators identify the caller of an HTTP request. HTTPMiddleware puts
// the resulting UserInfo in the request context; the HTTP transport derives
// each session's context from the request that opened it, so engine
// middleware such as RBAC.Middleware and RateLimiter.Middleware see the same
// user on every MCP request of that session.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
)

// Authenticator identifies the caller of an HTTP request.
type Authenticator interface {
	// Authenticate returns ErrNoCredentials when the request carries none of
	// the credentials this authenticator understands.
	Authenticate(ctx context.Context, r *http.Request) (*UserInfo, error)

	// Type returns the authentication type identifier, e.g. "bearer".
	Type() string
}

// UserInfo represents an authenticated caller.
type UserInfo struct {
	// ID is the unique user identifier
	ID string `json:"id"`

	// Username is the user's display name
	Username string `json:"username,omitempty"`

	// Roles assigned to the user for RBAC
	Roles []string `json:"roles,omitempty"`

	// Permissions granted directly, in addition to those of the roles
	Permissions []string `json:"permissions,omitempty"`

	// ExpiresAt is when the credential stops being valid
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Error codes used in MCP error responses. Both lie in the application range.
const (
	CodeAccessDenied = -31403
	CodeRateLimited  = -31429
)

var (
	// ErrNoCredentials means the request carried no credentials at all.
	ErrNoCredentials = errors.New("authentication required")

	// ErrInvalidCredentials means the credentials were present but unknown.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpired means the credentials were valid once.
	ErrExpired = errors.New("credentials expired")
)

type contextKey struct{}

// ContextWithUser returns ctx carrying user.
func ContextWithUser(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(contextKey{}).(*UserInfo)
	return user, ok && user != nil
}

// Chain tries each authenticator in turn. The first one that finds its
// credentials decides the outcome.
func Chain(authenticators ...Authenticator) Authenticator {
	return chain(authenticators)
}

type chain []Authenticator

func (c chain) Type() string { return "chain" }

func (c chain) Authenticate(ctx context.Context, r *http.Request) (*UserInfo, error) {
	for _, a := range c {
		user, err := a.Authenticate(ctx, r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		return user, err
	}
	return nil, ErrNoCredentials
}

func accessDenied(method string, user *UserInfo) mcperrors.MCPError {
	data := map[string]interface{}{"method": method}
	if user != nil {
		data["user"] = user.ID
	}
	return mcperrors.Application(CodeAccessDenied, "access denied", data)
}
