package auth

// UserClaims is the normalized set of claims extracted from a validated
// bearer token. Extra is a bag for unrecognized claims; Validator.Validate
// does not fill it, so it is nil on every UserClaims that Validate returns.
type UserClaims struct {
	UserID    string
	Email     string
	Roles     map[string]bool
	Groups    map[string]bool
	Workspace string
	Extra     map[string]any
}

// HasRole reports whether the user holds the given role.
func (c UserClaims) HasRole(role string) bool {
	return c.Roles[role]
}

// HasAnyRole reports whether the user holds at least one of roles.
// An empty roles list is vacuously satisfied.
func (c UserClaims) HasAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if c.Roles[r] {
			return true
		}
	}
	return false
}

// AuthenticatedUser pairs validated claims with the tool sets derived by
// the policy engine at token-validation time. AllowedTools may contain
// the wildcard sentinel "*". DeniedTools carries the workspace's denies
// as an explicit exclusion set: a wildcard allowance cannot satisfy a
// name that was denied, so the denies must survive set derivation.
type AuthenticatedUser struct {
	Claims       UserClaims
	AllowedTools map[string]bool
	DeniedTools  map[string]bool
}

// Wildcard is the sentinel meaning "any tool name", still subject to
// per-tool role gates and workspace denies.
const Wildcard = "*"

// HasWildcard reports whether the user's allowed-tools set contains the
// wildcard sentinel.
func (u AuthenticatedUser) HasWildcard() bool {
	return u.AllowedTools[Wildcard]
}
