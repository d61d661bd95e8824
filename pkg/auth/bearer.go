package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// TokenValidationCallback validates tokens the provider did not issue, such
// as tokens checked against an external identity service. Returning
// ErrInvalidCredentials rejects the token.
type TokenValidationCallback func(ctx context.Context, token string) (*UserInfo, error)

// BearerTokenConfig configures a BearerTokenProvider.
type BearerTokenConfig struct {
	// TokenExpiry is the lifetime of issued tokens. Zero means they never
	// expire.
	TokenExpiry time.Duration

	// Validate is consulted for tokens the provider does not know.
	Validate TokenValidationCallback
}

// BearerTokenProvider authenticates "Authorization: Bearer" headers. Tokens
// are held as SHA-256 digests.
type BearerTokenProvider struct {
	mu       sync.RWMutex
	tokens   map[string]*tokenInfo
	expiry   time.Duration
	validate TokenValidationCallback
	now      func() time.Time
}

type tokenInfo struct {
	user      *UserInfo
	expiresAt time.Time
}

// NewBearerTokenProvider creates a bearer token provider.
func NewBearerTokenProvider(config BearerTokenConfig) *BearerTokenProvider {
	return &BearerTokenProvider{
		tokens:   make(map[string]*tokenInfo),
		expiry:   config.TokenExpiry,
		validate: config.Validate,
		now:      time.Now,
	}
}

// Type returns "bearer".
func (p *BearerTokenProvider) Type() string { return "bearer" }

// Issue creates a random token for user.
func (p *BearerTokenProvider) Issue(user *UserInfo) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	p.Add(token, user, p.expiry)
	return token, nil
}

// Add registers a known token. A zero ttl never expires.
func (p *BearerTokenProvider) Add(token string, user *UserInfo, ttl time.Duration) {
	info := &tokenInfo{user: user}
	if ttl > 0 {
		info.expiresAt = p.now().Add(ttl)
		exp := info.expiresAt
		u := *user
		u.ExpiresAt = &exp
		info.user = &u
	}

	p.mu.Lock()
	p.tokens[digest(token)] = info
	p.mu.Unlock()
}

// Revoke invalidates a token.
func (p *BearerTokenProvider) Revoke(token string) {
	p.mu.Lock()
	delete(p.tokens, digest(token))
	p.mu.Unlock()
}

// Authenticate validates the bearer token of r.
func (p *BearerTokenProvider) Authenticate(ctx context.Context, r *http.Request) (*UserInfo, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, ErrNoCredentials
	}
	return p.Validate(ctx, token)
}

// Validate returns the user a token belongs to.
func (p *BearerTokenProvider) Validate(ctx context.Context, token string) (*UserInfo, error) {
	p.mu.RLock()
	info, ok := p.tokens[digest(token)]
	p.mu.RUnlock()

	if !ok {
		if p.validate != nil {
			return p.validate(ctx, token)
		}
		return nil, ErrInvalidCredentials
	}
	if !info.expiresAt.IsZero() && !p.now().Before(info.expiresAt) {
		return nil, ErrExpired
	}
	return info.user, nil
}

// CleanupExpired drops expired tokens.
func (p *BearerTokenProvider) CleanupExpired() {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, info := range p.tokens {
		if !info.expiresAt.IsZero() && !now.Before(info.expiresAt) {
			delete(p.tokens, k)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
