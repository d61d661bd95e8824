// Package session implements the per-connection handshake state machine.
//
// A server session starts Unstarted, moves to Negotiating when it answers
// initialize, and becomes Ready on the peer's initialized notification. A
// client session moves to Negotiating when it sends initialize and to Ready
// once the result is accepted. Closed is terminal.
package session

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// State is the lifecycle state of a session.
type State int32

const (
	Unstarted State = iota
	Negotiating
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Negotiating:
		return "negotiating"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config is the local side of the handshake.
type Config struct {
	// SupportedVersions in preference order. Must not be empty.
	SupportedVersions []string
	Capabilities      protocol.Capabilities
	Info              protocol.Implementation
	Instructions      string
}

// Session is safe for concurrent use; the engine's handler goroutines read
// its state while the read loop mutates it.
type Session struct {
	id     string
	config Config

	mu                 sync.RWMutex
	state              State
	negotiatedVersion  string
	localCapabilities  protocol.Capabilities
	remoteCapabilities protocol.Capabilities
	remoteInfo         *protocol.Implementation

	nextID atomic.Int64
}

// New creates an Unstarted session.
func New(id string, config Config) *Session {
	return &Session{
		id:                id,
		config:            config,
		localCapabilities: config.Capabilities,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether functional methods may be dispatched.
func (s *Session) Ready() bool {
	return s.State() == Ready
}

// NegotiatedVersion is empty until initialize succeeds.
func (s *Session) NegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedVersion
}

// LocalCapabilities returns the capabilities this side advertised. Before
// the handshake it is the configured set.
func (s *Session) LocalCapabilities() protocol.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localCapabilities
}

// RemoteCapabilities returns what the peer advertised during the handshake.
func (s *Session) RemoteCapabilities() protocol.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteCapabilities
}

// RemoteInfo returns the peer's identity, if it sent one.
func (s *Session) RemoteInfo() *protocol.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteInfo
}

// NextID returns a fresh id for a locally originated request.
func (s *Session) NextID() protocol.ID {
	return protocol.IntID(s.nextID.Add(1))
}

// Close moves the session to Closed. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
}

// HandleInitialize answers the peer's initialize request. On a version
// mismatch the session is closed. A second initialize, or one naming no
// version at all, fails without touching the state.
func (s *Session) HandleInitialize(params protocol.InitializeParams) (*protocol.InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unstarted {
		return nil, mcperrors.AlreadyInitialized()
	}
	if params.ProtocolVersion == "" && len(params.SupportedVersions) == 0 {
		return nil, mcperrors.MissingParameter("protocolVersion")
	}
	s.state = Negotiating

	version, ok := s.selectVersion(params)
	if !ok {
		s.state = Closed
		return nil, mcperrors.VersionMismatch(requestedVersions(params), s.config.SupportedVersions)
	}

	s.negotiatedVersion = version
	s.remoteCapabilities = params.Capabilities
	s.remoteInfo = params.ClientInfo
	s.localCapabilities = intersect(s.config.Capabilities, params.Capabilities)

	info := s.config.Info
	return &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.localCapabilities,
		ServerInfo:      &info,
		Instructions:    s.config.Instructions,
	}, nil
}

// HandleInitialized confirms the handshake.
func (s *Session) HandleInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Negotiating {
		return fmt.Errorf("initialized received in state %s", s.state)
	}
	s.state = Ready
	return nil
}

// BeginInitialize builds the client's initialize params.
func (s *Session) BeginInitialize() (*protocol.InitializeParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unstarted {
		return nil, mcperrors.AlreadyInitialized()
	}
	if len(s.config.SupportedVersions) == 0 {
		return nil, fmt.Errorf("no supported protocol versions configured")
	}
	s.state = Negotiating

	info := s.config.Info
	return &protocol.InitializeParams{
		ProtocolVersion:   s.config.SupportedVersions[0],
		SupportedVersions: slices.Clone(s.config.SupportedVersions),
		Capabilities:      s.config.Capabilities,
		ClientInfo:        &info,
	}, nil
}

// CompleteInitialize accepts the server's initialize result. A version this
// side never offered closes the session.
func (s *Session) CompleteInitialize(result *protocol.InitializeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Negotiating {
		return fmt.Errorf("initialize result received in state %s", s.state)
	}
	if !slices.Contains(s.config.SupportedVersions, result.ProtocolVersion) {
		s.state = Closed
		return mcperrors.VersionMismatch([]string{result.ProtocolVersion}, s.config.SupportedVersions)
	}

	s.negotiatedVersion = result.ProtocolVersion
	s.remoteCapabilities = result.Capabilities
	s.remoteInfo = result.ServerInfo
	s.state = Ready
	return nil
}

// Fail closes a session whose handshake could not complete.
func (s *Session) Fail() {
	s.Close()
}

// selectVersion prefers the peer's requested version, then the first local
// preference the peer also lists.
func (s *Session) selectVersion(params protocol.InitializeParams) (string, bool) {
	if params.ProtocolVersion != "" && slices.Contains(s.config.SupportedVersions, params.ProtocolVersion) {
		return params.ProtocolVersion, true
	}
	for _, v := range s.config.SupportedVersions {
		if slices.Contains(params.SupportedVersions, v) {
			return v, true
		}
	}
	return "", false
}

func requestedVersions(params protocol.InitializeParams) []string {
	out := []string{}
	if params.ProtocolVersion != "" {
		out = append(out, params.ProtocolVersion)
	}
	for _, v := range params.SupportedVersions {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// intersect keeps the local categories the peer named. A peer that names no
// category accepts them all.
func intersect(local, requested protocol.Capabilities) protocol.Capabilities {
	if len(requested.Categories()) == 0 {
		return local
	}
	var out protocol.Capabilities
	if requested.Resources != nil {
		out.Resources = local.Resources
	}
	if requested.Tools != nil {
		out.Tools = local.Tools
	}
	if requested.Prompts != nil {
		out.Prompts = local.Prompts
	}
	return out
}

// IsFunctional reports whether method requires a Ready session.
func IsFunctional(method string) bool {
	switch method {
	case protocol.MethodInitialize, protocol.MethodPing:
		return false
	}
	return !protocol.IsInitializedMethod(method) && !protocol.IsCancelMethod(method)
}
