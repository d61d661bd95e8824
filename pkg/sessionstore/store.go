// Package sessionstore records the live sessions of the HTTP transport so
// that an operator, or a second process sharing Redis, can see them.
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Record describes one live session.
type Record struct {
	ID         string    `json:"id"`
	Transport  string    `json:"transport"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// Store is a session directory. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
