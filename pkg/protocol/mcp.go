package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Methods for lifecycle management
	MethodInitialize        = "initialize"
	MethodInitialized       = "notifications/initialized"
	MethodInitializedLegacy = "initialized"
	MethodPing              = "ping"

	// Methods for server features
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListPrompts   = "prompts/list"
	MethodGetPrompt     = "prompts/get"

	// Change notifications
	MethodResourcesListChanged = "notifications/resources/list_changed"
	MethodToolsListChanged     = "notifications/tools/list_changed"
	MethodPromptsListChanged   = "notifications/prompts/list_changed"

	// Cancellation
	MethodCancelled    = "notifications/cancelled"
	MethodCancelLegacy = "$/cancel"
)

// IsInitializedMethod reports whether method confirms the handshake.
func IsInitializedMethod(method string) bool {
	return method == MethodInitialized || method == MethodInitializedLegacy
}

// IsCancelMethod reports whether method is a cancellation notification.
func IsCancelMethod(method string) bool {
	return method == MethodCancelled || method == MethodCancelLegacy
}

// IsNotificationMethod reports whether method lives under notifications/.
func IsNotificationMethod(method string) bool {
	return strings.HasPrefix(method, "notifications/") || strings.HasPrefix(method, "$/")
}

// CapabilityType names one of the three capability categories
type CapabilityType string

const (
	// CapabilityTools indicates the server supports tools
	CapabilityTools CapabilityType = "tools"
	// CapabilityResources indicates the server supports resources
	CapabilityResources CapabilityType = "resources"
	// CapabilityPrompts indicates the server supports prompts
	CapabilityPrompts CapabilityType = "prompts"
)

// ListChangedMethod returns the notification method announcing a list change
// for the category.
func (c CapabilityType) ListChangedMethod() string {
	switch c {
	case CapabilityTools:
		return MethodToolsListChanged
	case CapabilityResources:
		return MethodResourcesListChanged
	case CapabilityPrompts:
		return MethodPromptsListChanged
	}
	return ""
}

// CategoryCapability describes what a peer supports within one category.
type CategoryCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Capabilities is the capability set exchanged during initialize. A nil
// category means unsupported.
type Capabilities struct {
	Resources *CategoryCapability `json:"resources,omitempty"`
	Tools     *CategoryCapability `json:"tools,omitempty"`
	Prompts   *CategoryCapability `json:"prompts,omitempty"`
}

// Get returns the category entry, or nil.
func (c Capabilities) Get(t CapabilityType) *CategoryCapability {
	switch t {
	case CapabilityTools:
		return c.Tools
	case CapabilityResources:
		return c.Resources
	case CapabilityPrompts:
		return c.Prompts
	}
	return nil
}

// Has reports whether the category is supported.
func (c Capabilities) Has(t CapabilityType) bool {
	return c.Get(t) != nil
}

// Categories lists the supported categories in a fixed order.
func (c Capabilities) Categories() []CapabilityType {
	var out []CapabilityType
	for _, t := range []CapabilityType{CapabilityResources, CapabilityTools, CapabilityPrompts} {
		if c.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Implementation identifies a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	// SupportedVersions optionally lists every version the client can speak,
	// most preferred first.
	SupportedVersions []string        `json:"supportedVersions,omitempty"`
	Capabilities      Capabilities    `json:"capabilities"`
	ClientInfo        *Implementation `json:"clientInfo,omitempty"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    Capabilities    `json:"capabilities"`
	ServerInfo      *Implementation `json:"serverInfo,omitempty"`
	Instructions    string          `json:"instructions,omitempty"`
}

// CancelledParams defines parameters for the cancellation notification
type CancelledParams struct {
	RequestID ID     `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// legacyCancelParams is the $/cancel payload shape.
type legacyCancelParams struct {
	ID ID `json:"id"`
}

// ParseCancelParams reads either cancellation payload shape.
func ParseCancelParams(method string, raw json.RawMessage) (CancelledParams, error) {
	var params CancelledParams
	if len(raw) == 0 {
		return params, fmt.Errorf("%s: missing params", method)
	}
	if method == MethodCancelLegacy {
		var legacy legacyCancelParams
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return params, fmt.Errorf("%s: %w", method, err)
		}
		params.RequestID = legacy.ID
	} else if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("%s: %w", method, err)
	}
	if params.RequestID.IsZero() {
		return params, fmt.Errorf("%s: missing request id", method)
	}
	return params, nil
}

// PingResult is the response for ping
type PingResult struct{}

// ListParams carries the optional cursor of the list methods.
type ListParams struct {
	Cursor string `json:"cursor,omitempty"`
}
