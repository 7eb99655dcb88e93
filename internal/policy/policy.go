// Package policy implements the declarative permission engine: role →
// allowed-tools union, workspace override/deny, and per-tool required-role
// gates.
package policy

import (
	"fmt"
	"os"
	"sync"

	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/gwerr"
	"gopkg.in/yaml.v3"
)

const Wildcard = auth.Wildcard

// Config is the declarative ruleset: roles → allowed tools; workspaces →
// allow/deny overrides; tools → required roles.
type Config struct {
	DefaultAction string                      `yaml:"default_action"`
	Roles         map[string]RoleConfig       `yaml:"roles"`
	Workspaces    map[string]WorkspaceConfig  `yaml:"workspaces"`
	Tools         map[string]ToolPolicyConfig `yaml:"tools"`
}

type RoleConfig struct {
	AllowedTools []string `yaml:"allowed_tools"`
}

type WorkspaceConfig struct {
	AllowedTools []string `yaml:"allowed_tools,omitempty"`
	DeniedTools  []string `yaml:"denied_tools,omitempty"`
}

type ToolPolicyConfig struct {
	RequiredRoles []string `yaml:"required_roles,omitempty"`
}

// Engine loads a Config once and memoizes it; Reload re-reads the backing
// file explicitly.
type Engine struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

func NewEngine(path string) *Engine {
	return &Engine{path: path}
}

// Load reads and memoizes the policy file if not already loaded.
func (e *Engine) Load() error {
	e.mu.RLock()
	loaded := e.cfg != nil
	e.mu.RUnlock()
	if loaded {
		return nil
	}
	return e.Reload()
}

// Reload re-reads the policy file from disk, replacing the memoized Config.
func (e *Engine) Reload() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse policy yaml: %w", err)
	}
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = "deny"
	}

	e.mu.Lock()
	e.cfg = &cfg
	e.mu.Unlock()
	return nil
}

func (e *Engine) config() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg == nil {
		return &Config{DefaultAction: "deny"}
	}
	return e.cfg
}

// AllowedTools computes allowed_tools for a user, pure and deterministic
// given the same claims and memoized Config.
//
//  1. Union the allowed_tools of each role the user holds; any role listing
//     "*" inserts the wildcard sentinel.
//  2. If the user's workspace is set and its allowed_tools is a concrete
//     list, it replaces the union; a workspace "*" only adds the wildcard.
//  3. Subtract the workspace's denied_tools. Subtraction alone cannot
//     reach a wildcard holder, so DeniedTools re-derives the same denies
//     as an exclusion set checked ahead of the wildcard.
func (e *Engine) AllowedTools(claims auth.UserClaims) map[string]bool {
	cfg := e.config()

	allowed := map[string]bool{}
	for role := range claims.Roles {
		rc, ok := cfg.Roles[role]
		if !ok {
			continue
		}
		for _, t := range rc.AllowedTools {
			allowed[t] = true
		}
	}

	if claims.Workspace != "" {
		if ws, ok := cfg.Workspaces[claims.Workspace]; ok {
			if len(ws.AllowedTools) > 0 {
				replaced := map[string]bool{}
				hasWildcard := false
				for _, t := range ws.AllowedTools {
					if t == Wildcard {
						hasWildcard = true
						continue
					}
					replaced[t] = true
				}
				if hasWildcard {
					replaced[Wildcard] = true
				}
				allowed = replaced
			}
			for _, t := range ws.DeniedTools {
				delete(allowed, t)
			}
		}
	}

	return allowed
}

// DeniedTools computes the workspace's denied_tools for a user as an
// explicit exclusion set. Denies apply even to a wildcard-holding admin;
// they are never exempted.
func (e *Engine) DeniedTools(claims auth.UserClaims) map[string]bool {
	denied := map[string]bool{}
	if claims.Workspace == "" {
		return denied
	}
	cfg := e.config()
	if ws, ok := cfg.Workspaces[claims.Workspace]; ok {
		for _, t := range ws.DeniedTools {
			denied[t] = true
		}
	}
	return denied
}

// CheckToolPermission reports whether user may invoke tool per allowed_tools
// (wildcard included) AND the tool's required_roles gate, enforced here at
// check-time so a wildcard holder is still filtered by a gate on a
// specific tool. A workspace deny is checked first: it beats the wildcard
// and every role.
func (e *Engine) CheckToolPermission(user auth.AuthenticatedUser, toolName string) bool {
	if user.DeniedTools[toolName] {
		return false
	}
	if !user.AllowedTools[toolName] && !user.HasWildcard() {
		return false
	}
	return e.checkRequiredRoles(user.Claims, toolName)
}

// CheckRequiredRoles reports whether claims satisfy the tool's configured
// required_roles (any-of), or true if the tool has none configured.
func (e *Engine) CheckRequiredRoles(claims auth.UserClaims, toolName string) bool {
	return e.checkRequiredRoles(claims, toolName)
}

func (e *Engine) checkRequiredRoles(claims auth.UserClaims, toolName string) bool {
	cfg := e.config()
	tc, ok := cfg.Tools[toolName]
	if !ok || len(tc.RequiredRoles) == 0 {
		return true
	}
	for _, r := range tc.RequiredRoles {
		if claims.HasRole(r) {
			return true
		}
	}
	return false
}

// EnforceToolPermission returns a ToolNotAllowed *gwerr.Error when
// CheckToolPermission fails, nil otherwise.
func (e *Engine) EnforceToolPermission(user auth.AuthenticatedUser, toolName string) error {
	if e.CheckToolPermission(user, toolName) {
		return nil
	}
	return gwerr.New(gwerr.ToolNotAllowed, "tool %q not allowed for user %q", toolName, user.Claims.UserID)
}

// RequiredRolesFor returns the configured required_roles for a tool name,
// or nil if none are configured.
func (e *Engine) RequiredRolesFor(toolName string) []string {
	cfg := e.config()
	return cfg.Tools[toolName].RequiredRoles
}
