// Package inflight tracks requests accepted for handling on one connection.
//
// Each request runs until its handler returns. Cancellation only marks the
// request and cancels its context; the handler decides when to stop. Exactly
// one terminal status is recorded per request.
package inflight

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// Status is the lifecycle state of an in-flight request.
type Status int32

const (
	Running Status = iota
	Completed
	Cancelled
	Abandoned
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

var (
	// ErrDuplicateID is returned by Begin when the id is already running.
	ErrDuplicateID = errors.New("request id already in flight")
	// ErrAlreadyTerminal is returned by Finish for a request that already
	// reached a terminal status, or that was never begun.
	ErrAlreadyTerminal = errors.New("request already terminal")
	// ErrClosed is returned by Begin after AbandonAll.
	ErrClosed = errors.New("manager closed")
)

// Request is one in-flight request. Handlers reference it through the
// context returned by Begin.
type Request struct {
	ID        protocol.ID
	Method    string
	StartedAt time.Time

	cancellationRequested atomic.Bool
	status                atomic.Int32
	ctx                   context.Context
	cancel                context.CancelFunc
}

// CancellationRequested reports whether the peer asked to cancel.
func (r *Request) CancellationRequested() bool {
	return r.cancellationRequested.Load()
}

// Status returns the current status.
func (r *Request) Status() Status {
	return Status(r.status.Load())
}

// Context is cancelled once cancellation is requested or the connection is
// abandoned.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Info is a point-in-time view of one request.
type Info struct {
	ID                    protocol.ID
	Method                string
	StartedAt             time.Time
	CancellationRequested bool
}

type requestKey struct{}

// FromContext returns the request a handler is serving.
func FromContext(ctx context.Context) (*Request, bool) {
	r, ok := ctx.Value(requestKey{}).(*Request)
	return r, ok
}

// CancellationRequested reports whether the request served under ctx was
// cancelled by the peer. Handlers poll it at safe checkpoints.
func CancellationRequested(ctx context.Context) bool {
	if r, ok := FromContext(ctx); ok {
		return r.CancellationRequested()
	}
	return false
}

// Manager is safe for concurrent use.
type Manager struct {
	// Deadline, when positive, bounds each request's context.
	Deadline time.Duration

	mu       sync.Mutex
	requests map[protocol.ID]*Request
	closed   bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{requests: make(map[protocol.ID]*Request)}
}

// Begin registers a running request and derives its context from parent.
func (m *Manager) Begin(parent context.Context, id protocol.ID, method string) (*Request, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}
	if _, exists := m.requests[id]; exists {
		return nil, nil, ErrDuplicateID
	}

	r := &Request{ID: id, Method: method, StartedAt: time.Now()}
	ctx, cancel := context.WithCancel(parent)
	if m.Deadline > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, m.Deadline)
		inner := cancel
		cancel = func() { stop(); inner() }
	}
	ctx = context.WithValue(ctx, requestKey{}, r)
	r.ctx, r.cancel = ctx, cancel

	m.requests[id] = r
	return r, ctx, nil
}

// RequestCancel marks the request and cancels its context. It reports
// whether a running request was found.
func (m *Manager) RequestCancel(id protocol.ID) bool {
	m.mu.Lock()
	r, ok := m.requests[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	r.cancellationRequested.Store(true)
	r.cancel()
	return true
}

// Finish records a terminal status and removes the request. Only the first
// call for an id succeeds.
func (m *Manager) Finish(id protocol.ID, status Status) error {
	if status != Completed && status != Cancelled {
		return errors.New("finish status must be completed or cancelled")
	}

	m.mu.Lock()
	r, ok := m.requests[id]
	if ok {
		delete(m.requests, id)
	}
	m.mu.Unlock()

	if !ok || !r.status.CompareAndSwap(int32(Running), int32(status)) {
		return ErrAlreadyTerminal
	}
	r.cancel()
	return nil
}

// AbandonAll marks every running request Abandoned, cancels their contexts
// and refuses new ones. It returns the number abandoned.
func (m *Manager) AbandonAll() int {
	m.mu.Lock()
	m.closed = true
	requests := m.requests
	m.requests = make(map[protocol.ID]*Request)
	m.mu.Unlock()

	n := 0
	for _, r := range requests {
		if r.status.CompareAndSwap(int32(Running), int32(Abandoned)) {
			n++
		}
		r.cancel()
	}
	return n
}

// Len returns the number of running requests.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Snapshot lists running requests, oldest first.
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, Info{
			ID:                    r.ID,
			Method:                r.Method,
			StartedAt:             r.StartedAt,
			CancellationRequested: r.CancellationRequested(),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
