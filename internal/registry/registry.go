package registry

import (
	"context"
	"sort"
	"time"

	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/cache"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/store"
)

const cacheTTL = 5 * time.Minute

// sentinel cache keys. The all-active and core views each get one fixed
// key, and the by-scope view one key per scope (scopePrefix + scope), to
// ride the generic Cache's singleflight-protected GetOrLoad.
const (
	keyAllActive = "all_active"
	keyCoreTools = "core"
	scopePrefix  = "scope:"
)

// Registry serves cached, active-only snapshots of the tool catalog with
// a 5-minute TTL, explicitly invalidated after a catalog sync.
type Registry struct {
	store store.Store
	cache *cache.Cache[string, []store.Tool]
}

func New(s store.Store) *Registry {
	return &Registry{
		store: s,
		cache: cache.New[string, []store.Tool](64, cacheTTL),
	}
}

// AllActiveTools returns every active tool row, cached for up to 5 minutes.
func (r *Registry) AllActiveTools(ctx context.Context) ([]store.Tool, error) {
	return r.cache.GetOrLoad(keyAllActive, func() ([]store.Tool, error) {
		return r.store.ListActiveTools(ctx)
	})
}

// ToolsByScope returns active tools filtered to a single scope, cached.
func (r *Registry) ToolsByScope(ctx context.Context, scope string) ([]store.Tool, error) {
	return r.cache.GetOrLoad(scopePrefix+scope, func() ([]store.Tool, error) {
		all, err := r.store.ListActiveTools(ctx)
		if err != nil {
			return nil, err
		}
		var out []store.Tool
		for _, t := range all {
			if t.Scope == scope {
				out = append(out, t)
			}
		}
		return out, nil
	})
}

// CoreTools returns active tools whose categories intersect {"core"}.
func (r *Registry) CoreTools(ctx context.Context) ([]store.Tool, error) {
	return r.cache.GetOrLoad(keyCoreTools, func() ([]store.Tool, error) {
		all, err := r.store.ListActiveTools(ctx)
		if err != nil {
			return nil, err
		}
		var out []store.Tool
		for _, t := range all {
			if hasCategory(t.Categories, "core") {
				out = append(out, t)
			}
		}
		return out, nil
	})
}

// GetActiveTool looks up one active tool by name from the cached
// all-active view.
func (r *Registry) GetActiveTool(ctx context.Context, name string) (*store.Tool, error) {
	all, err := r.AllActiveTools(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// ListForUser intersects all_active_tools with the user's allowed_tools
// (wildcard passes all), applies per-tool required_roles, and returns a
// stable, name-sorted list.
func (r *Registry) ListForUser(ctx context.Context, pol *policy.Engine, user auth.AuthenticatedUser) ([]store.Tool, error) {
	all, err := r.AllActiveTools(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.Tool
	for _, t := range all {
		if !user.HasWildcard() && !user.AllowedTools[t.Name] {
			continue
		}
		if !user.Claims.HasAnyRole(t.RequiredRoles) {
			continue
		}
		if !pol.CheckToolPermission(user, t.Name) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListForUserInScope is ListForUser further filtered to a single scope,
// used by the scoped MCP tools/list dispatcher. Meta-tool names are not
// filtered here; the dispatcher drops them from scoped listings.
func (r *Registry) ListForUserInScope(ctx context.Context, pol *policy.Engine, user auth.AuthenticatedUser, scope string) ([]store.Tool, error) {
	all, err := r.ListForUser(ctx, pol, user)
	if err != nil {
		return nil, err
	}
	var out []store.Tool
	for _, t := range all {
		if t.Scope == scope {
			out = append(out, t)
		}
	}
	return out, nil
}

// Invalidate clears every cached view, called after a catalog sync.
func (r *Registry) Invalidate() {
	r.cache.Flush()
}

// IncrementUsage updates usage_count and last_used_at for a successful
// invocation. Called only on a successful backend response.
func (r *Registry) IncrementUsage(ctx context.Context, toolID string) error {
	return r.store.IncrementToolUsage(ctx, toolID, time.Now().UTC())
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}
