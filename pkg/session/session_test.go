package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

func serverConfig() Config {
	return Config{
		SupportedVersions: []string{"1.0", "0.9"},
		Capabilities: protocol.Capabilities{
			Tools:     &protocol.CategoryCapability{ListChanged: true},
			Resources: &protocol.CategoryCapability{},
			Prompts:   &protocol.CategoryCapability{},
		},
		Info: protocol.Implementation{Name: "test-server", Version: "0.1.0"},
	}
}

func TestHandshake(t *testing.T) {
	s := New("s1", serverConfig())
	assert.Equal(t, Unstarted, s.State())

	result, err := s.HandleInitialize(protocol.InitializeParams{
		ProtocolVersion: "1.0",
		ClientInfo:      &protocol.Implementation{Name: "client"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.0", result.ProtocolVersion)
	assert.Equal(t, "test-server", result.ServerInfo.Name)
	assert.Equal(t, []protocol.CapabilityType{protocol.CapabilityResources, protocol.CapabilityTools, protocol.CapabilityPrompts},
		result.Capabilities.Categories())
	assert.Equal(t, Negotiating, s.State())
	assert.False(t, s.Ready())

	require.NoError(t, s.HandleInitialized())
	assert.True(t, s.Ready())
	assert.Equal(t, "1.0", s.NegotiatedVersion())
	assert.Equal(t, "client", s.RemoteInfo().Name)
}

func TestVersionSelection(t *testing.T) {
	tests := []struct {
		name      string
		params    protocol.InitializeParams
		want      string
		wantError bool
	}{
		{"requested supported", protocol.InitializeParams{ProtocolVersion: "0.9"}, "0.9", false},
		{"fallback to offered list", protocol.InitializeParams{ProtocolVersion: "2.0", SupportedVersions: []string{"2.0", "0.9"}}, "0.9", false},
		{"local preference wins among offered", protocol.InitializeParams{SupportedVersions: []string{"0.9", "1.0"}}, "1.0", false},
		{"nothing shared", protocol.InitializeParams{ProtocolVersion: "2.0", SupportedVersions: []string{"2.0"}}, "", true},
		{"nothing requested", protocol.InitializeParams{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("s", serverConfig())
			result, err := s.HandleInitialize(tt.params)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, mcperrors.IsCode(err, mcperrors.CodeVersionMismatch))
				assert.Equal(t, Closed, s.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.ProtocolVersion)
		})
	}
}

func TestSecondInitializeKeepsState(t *testing.T) {
	s := New("s", serverConfig())
	_, err := s.HandleInitialize(protocol.InitializeParams{ProtocolVersion: "0.9"})
	require.NoError(t, err)
	require.NoError(t, s.HandleInitialized())

	_, err = s.HandleInitialize(protocol.InitializeParams{ProtocolVersion: "1.0"})
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeAlreadyInitialized))
	assert.Equal(t, "0.9", s.NegotiatedVersion())
	assert.Equal(t, Ready, s.State())
}

func TestInitializeWithoutVersionKeepsState(t *testing.T) {
	s := New("s", serverConfig())
	_, err := s.HandleInitialize(protocol.InitializeParams{})
	require.Error(t, err)
	assert.True(t, mcperrors.IsCode(err, mcperrors.CodeInvalidParams), "got %v", err)
	assert.Equal(t, Unstarted, s.State())

	result, err := s.HandleInitialize(protocol.InitializeParams{ProtocolVersion: "1.0"})
	require.NoError(t, err)
	assert.Equal(t, "1.0", result.ProtocolVersion)
}

func TestInitializedOutOfOrder(t *testing.T) {
	s := New("s", serverConfig())
	assert.Error(t, s.HandleInitialized())
	assert.Equal(t, Unstarted, s.State())
}

func TestCapabilityIntersection(t *testing.T) {
	s := New("s", serverConfig())
	result, err := s.HandleInitialize(protocol.InitializeParams{
		ProtocolVersion: "1.0",
		Capabilities:    protocol.Capabilities{Tools: &protocol.CategoryCapability{}},
	})
	require.NoError(t, err)
	assert.Equal(t, []protocol.CapabilityType{protocol.CapabilityTools}, result.Capabilities.Categories())
	assert.True(t, result.Capabilities.Tools.ListChanged)
	assert.True(t, s.RemoteCapabilities().Has(protocol.CapabilityTools))
}

func TestClientHandshake(t *testing.T) {
	c := New("c", Config{
		SupportedVersions: []string{"1.0", "0.9"},
		Info:              protocol.Implementation{Name: "client"},
	})

	params, err := c.BeginInitialize()
	require.NoError(t, err)
	assert.Equal(t, "1.0", params.ProtocolVersion)
	assert.Equal(t, []string{"1.0", "0.9"}, params.SupportedVersions)
	assert.Equal(t, Negotiating, c.State())

	_, err = c.BeginInitialize()
	assert.Error(t, err)

	require.NoError(t, c.CompleteInitialize(&protocol.InitializeResult{
		ProtocolVersion: "0.9",
		Capabilities:    protocol.Capabilities{Tools: &protocol.CategoryCapability{}},
	}))
	assert.True(t, c.Ready())
	assert.Equal(t, "0.9", c.NegotiatedVersion())
	assert.True(t, c.RemoteCapabilities().Has(protocol.CapabilityTools))
}

func TestClientRejectsUnofferedVersion(t *testing.T) {
	c := New("c", Config{SupportedVersions: []string{"1.0"}})
	_, err := c.BeginInitialize()
	require.NoError(t, err)

	err = c.CompleteInitialize(&protocol.InitializeResult{ProtocolVersion: "3.0"})
	require.Error(t, err)
	assert.Equal(t, Closed, c.State())
}

func TestNextIDIsMonotonic(t *testing.T) {
	s := New("s", serverConfig())
	a, b := s.NextID(), s.NextID()
	assert.Equal(t, "1", a.String())
	assert.Equal(t, "2", b.String())
}

func TestCloseIsTerminal(t *testing.T) {
	s := New("s", serverConfig())
	s.Close()
	s.Close()
	assert.Equal(t, Closed, s.State())

	_, err := s.HandleInitialize(protocol.InitializeParams{ProtocolVersion: "1.0"})
	assert.Error(t, err)
	assert.Equal(t, "closed", s.State().String())
}

func TestIsFunctional(t *testing.T) {
	for _, m := range []string{"initialize", "ping", "notifications/initialized", "initialized", "notifications/cancelled", "$/cancel"} {
		if IsFunctional(m) {
			t.Errorf("%s should not be functional", m)
		}
	}
	for _, m := range []string{"tools/list", "tools/call", "resources/read", "prompts/get", "unknown/method"} {
		if !IsFunctional(m) {
			t.Errorf("%s should be functional", m)
		}
	}
}
