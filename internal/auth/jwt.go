package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/revittco/toolgw/internal/config"
	"github.com/revittco/toolgw/internal/gwerr"
)

// Validator verifies bearer tokens and extracts UserClaims per the
// configured claim names, algorithm allowlist, clock skew, max age, and
// API-version constraints.
type Validator struct {
	cfg *config.Config
}

func NewValidator(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate parses and verifies a bearer token string, returning UserClaims
// on success. It returns a *gwerr.Error with code ExpiredToken when the
// token's exp (beyond clock skew) has passed, or InvalidToken for every
// other failure: signature, format, missing claim, disallowed algorithm,
// bad audience/issuer, future nbf, implausible iat, excess age, or
// unsupported api version.
func (v *Validator) Validate(bearer string) (UserClaims, error) {
	// alg=none is scrubbed before parsing, not merely excluded by default;
	// no parser option alone guarantees it is never matched.
	allowed := scrubNone(v.cfg.JWTAllowedAlgorithms)
	if len(allowed) == 0 {
		return UserClaims{}, gwerr.New(gwerr.InvalidToken, "no algorithms allowed")
	}

	// The library only knows the registered "exp" claim; a renamed expiry
	// claim is verified by hand after parsing.
	standardExp := v.cfg.JWTExpClaim == "" || v.cfg.JWTExpClaim == "exp"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(allowed),
		jwt.WithLeeway(v.cfg.JWTClockSkew),
	}
	if standardExp {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	if v.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.JWTIssuer))
	}
	parser := jwt.NewParser(opts...)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(bearer, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.cfg.JWTSecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return UserClaims{}, gwerr.New(gwerr.ExpiredToken, "token expired")
		}
		return UserClaims{}, gwerr.New(gwerr.InvalidToken, "%s", err.Error())
	}
	if !token.Valid {
		return UserClaims{}, gwerr.New(gwerr.InvalidToken, "token invalid")
	}

	if !standardExp {
		exp, ok := asTime(claims[v.cfg.JWTExpClaim])
		if !ok {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "missing %s claim", v.cfg.JWTExpClaim)
		}
		if time.Now().Add(-v.cfg.JWTClockSkew).After(exp) {
			return UserClaims{}, gwerr.New(gwerr.ExpiredToken, "token expired")
		}
	}

	if v.cfg.JWTAudience != "" {
		aud, _ := claims.GetAudience()
		found := false
		for _, a := range aud {
			if a == v.cfg.JWTAudience {
				found = true
				break
			}
		}
		if !found {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "audience mismatch")
		}
	}

	if nbf, ok := claims["nbf"]; ok {
		if t, ok := asTime(nbf); ok && t.After(time.Now().Add(v.cfg.JWTClockSkew)) {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "nbf in the future")
		}
	}

	var iat time.Time
	iatClaim, hasIat := claims[v.cfg.JWTIatClaim]
	if hasIat {
		t, ok := asTime(iatClaim)
		if !ok {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "implausible iat")
		}
		iat = t
		if iat.After(time.Now().Add(v.cfg.JWTClockSkew)) {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "implausible iat")
		}
	}

	if v.cfg.JWTMaxTokenAge > 0 {
		if !hasIat {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "iat required for max token age check")
		}
		if time.Since(iat) > v.cfg.JWTMaxTokenAge {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "token older than max age")
		}
	}

	if len(v.cfg.JWTAllowedAPIVersions) > 0 {
		ver, _ := claims[v.cfg.JWTAPIVersionClaim].(string)
		if !containsExact(v.cfg.JWTAllowedAPIVersions, ver) {
			return UserClaims{}, gwerr.New(gwerr.InvalidToken, "unsupported api version %q", ver)
		}
	}

	userID, _ := claims[v.cfg.JWTUserIDClaim].(string)
	if userID == "" {
		return UserClaims{}, gwerr.New(gwerr.InvalidToken, "missing %s claim", v.cfg.JWTUserIDClaim)
	}

	email, _ := claims["email"].(string)
	tenant, _ := claims[v.cfg.JWTTenantClaim].(string)

	return UserClaims{
		UserID:    userID,
		Email:     email,
		Roles:     toSet(claims["roles"]),
		Groups:    toSet(claims["groups"]),
		Workspace: tenant,
	}, nil
}

// scrubNone removes "none" from an algorithm allowlist, whatever its case,
// so alg=none is rejected before any other check runs.
func scrubNone(algs []string) []string {
	out := make([]string, 0, len(algs))
	for _, a := range algs {
		if strings.EqualFold(a, "none") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func asTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case jwt.NumericDate:
		return n.Time, true
	default:
		return time.Time{}, false
	}
}

func containsExact(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func toSet(v any) map[string]bool {
	out := map[string]bool{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok {
			out[s] = true
		}
	}
	return out
}
