package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// DefaultAPIKeyHeader carries API keys.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyConfig configures an APIKeyProvider.
type APIKeyConfig struct {
	// Header carries the key. Default: X-API-Key
	Header string

	// Prefix starts every generated key. Default: "mcp_"
	Prefix string
}

// APIKeyProvider authenticates static API keys. Keys are held as SHA-256
// digests and are never listed back.
type APIKeyProvider struct {
	header string
	prefix string

	mu   sync.RWMutex
	keys map[string]*apiKeyInfo
}

type apiKeyInfo struct {
	user        *UserInfo
	description string
}

// APIKeyInfo describes a key without revealing it.
type APIKeyInfo struct {
	ID          string
	UserID      string
	Description string
}

// NewAPIKeyProvider creates an API key provider.
func NewAPIKeyProvider(config APIKeyConfig) *APIKeyProvider {
	if config.Header == "" {
		config.Header = DefaultAPIKeyHeader
	}
	if config.Prefix == "" {
		config.Prefix = "mcp_"
	}
	return &APIKeyProvider{
		header: config.Header,
		prefix: config.Prefix,
		keys:   make(map[string]*apiKeyInfo),
	}
}

// Type returns "apikey".
func (p *APIKeyProvider) Type() string { return "apikey" }

// CreateAPIKey generates a key for user and returns it. The key cannot be
// recovered later.
func (p *APIKeyProvider) CreateAPIKey(user *UserInfo, description string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	key := p.prefix + hex.EncodeToString(buf)
	p.AddAPIKey(key, user, description)
	return key, nil
}

// AddAPIKey registers an existing key, for example one read from config.
func (p *APIKeyProvider) AddAPIKey(key string, user *UserInfo, description string) {
	p.mu.Lock()
	p.keys[digest(key)] = &apiKeyInfo{user: user, description: description}
	p.mu.Unlock()
}

// Revoke removes a key and reports whether it existed.
func (p *APIKeyProvider) Revoke(key string) bool {
	d := digest(key)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[d]
	delete(p.keys, d)
	return ok
}

// ListAPIKeys returns the keys of one user. Each is identified by a prefix
// of its digest.
func (p *APIKeyProvider) ListAPIKeys(userID string) []APIKeyInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []APIKeyInfo
	for d, info := range p.keys {
		if info.user.ID == userID {
			out = append(out, APIKeyInfo{ID: d[:12], UserID: userID, Description: info.description})
		}
	}
	return out
}

// Authenticate validates the API key header of r.
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request) (*UserInfo, error) {
	key := strings.TrimSpace(r.Header.Get(p.header))
	if key == "" {
		return nil, ErrNoCredentials
	}

	p.mu.RLock()
	info, ok := p.keys[digest(key)]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return info.user, nil
}
