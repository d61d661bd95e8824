package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// Role represents a role with permissions.
//
// Permissions are colon separated and hierarchical: "tools:call" grants
// "tools:call:get_weather", "tools:*" grants every tools permission and "*"
// grants everything.
type Role struct {
	Name        string
	Description string
	Permissions []string
	Parents     []string
}

// RBACConfig configures role-based access control.
type RBACConfig struct {
	// DefaultRole applies to authenticated users without roles.
	// Default: "user"
	DefaultRole string

	// AnonymousRole applies when no user is authenticated. Empty denies
	// anonymous callers everything but the handshake and ping.
	AnonymousRole string

	// Roles are added on top of the built-in admin, user and guest roles,
	// replacing any of them with the same name.
	Roles []Role
}

// RBAC maps MCP requests to permissions and checks them against the
// caller's roles.
type RBAC struct {
	mu            sync.RWMutex
	roles         map[string]*Role
	defaultRole   string
	anonymousRole string
}

// NewRBAC creates an RBAC with the built-in roles.
func NewRBAC(config RBACConfig) *RBAC {
	if config.DefaultRole == "" {
		config.DefaultRole = "user"
	}
	r := &RBAC{
		roles:         make(map[string]*Role),
		defaultRole:   config.DefaultRole,
		anonymousRole: config.AnonymousRole,
	}
	r.roles["admin"] = &Role{Name: "admin", Description: "Full access", Permissions: []string{"*"}}
	r.roles["user"] = &Role{Name: "user", Description: "Use every tool, resource and prompt",
		Permissions: []string{"tools:*", "resources:*", "prompts:*"}}
	r.roles["guest"] = &Role{Name: "guest", Description: "List and read only",
		Permissions: []string{"tools:list", "resources:list", "resources:read", "prompts:list"}}
	for i := range config.Roles {
		role := config.Roles[i]
		r.roles[role.Name] = &role
	}
	return r
}

// AddRole adds a role. Names must be unique.
func (r *RBAC) AddRole(role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[role.Name]; exists {
		return fmt.Errorf("role %s already exists", role.Name)
	}
	r.roles[role.Name] = &role
	return nil
}

// Allowed reports whether user holds permission. A nil user is anonymous.
func (r *RBAC) Allowed(user *UserInfo, permission string) bool {
	var roles, direct []string
	switch {
	case user == nil:
		if r.anonymousRole == "" {
			return false
		}
		roles = []string{r.anonymousRole}
	case len(user.Roles) == 0:
		roles = []string{r.defaultRole}
		direct = user.Permissions
	default:
		roles = user.Roles
		direct = user.Permissions
	}

	for _, p := range direct {
		if matchPermission(p, permission) {
			return true
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	visited := make(map[string]bool)
	for _, name := range roles {
		if r.roleAllows(name, permission, visited) {
			return true
		}
	}
	return false
}

func (r *RBAC) roleAllows(name, permission string, visited map[string]bool) bool {
	if visited[name] {
		return false
	}
	visited[name] = true

	role, ok := r.roles[name]
	if !ok {
		return false
	}
	for _, p := range role.Permissions {
		if matchPermission(p, permission) {
			return true
		}
	}
	for _, parent := range role.Parents {
		if r.roleAllows(parent, permission, visited) {
			return true
		}
	}
	return false
}

// Middleware rejects requests the caller has no permission for with
// CodeAccessDenied.
func (r *RBAC) Middleware() engine.Middleware {
	return func(next engine.HandlerFunc) engine.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (interface{}, error) {
			permission, checked := RequiredPermission(req)
			if !checked {
				return next(ctx, req)
			}
			user, _ := UserFromContext(ctx)
			if !r.Allowed(user, permission) {
				return nil, accessDenied(req.Method, user)
			}
			return next(ctx, req)
		}
	}
}

// RequiredPermission returns the permission a request needs. The handshake
// and ping need none.
func RequiredPermission(req *protocol.Request) (string, bool) {
	switch req.Method {
	case protocol.MethodInitialize, protocol.MethodPing:
		return "", false
	case protocol.MethodListTools:
		return "tools:list", true
	case protocol.MethodListResources:
		return "resources:list", true
	case protocol.MethodListPrompts:
		return "prompts:list", true
	case protocol.MethodCallTool:
		var p protocol.CallToolParams
		if json.Unmarshal(req.Params, &p) == nil && p.Name != "" {
			return "tools:call:" + p.Name, true
		}
		return "tools:call", true
	case protocol.MethodReadResource:
		var p protocol.ReadResourceParams
		if json.Unmarshal(req.Params, &p) == nil && p.URI != "" {
			return "resources:read:" + p.URI, true
		}
		return "resources:read", true
	case protocol.MethodGetPrompt:
		var p protocol.GetPromptParams
		if json.Unmarshal(req.Params, &p) == nil && p.Name != "" {
			return "prompts:get:" + p.Name, true
		}
		return "prompts:get", true
	}
	return strings.ReplaceAll(req.Method, "/", ":"), true
}

func matchPermission(pattern, permission string) bool {
	switch {
	case pattern == "*", pattern == permission:
		return true
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(permission, strings.TrimSuffix(pattern, "*"))
	}
	return strings.HasPrefix(permission, pattern+":")
}
