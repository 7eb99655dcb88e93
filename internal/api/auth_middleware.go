package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/gwerr"
	"github.com/revittco/toolgw/internal/policy"
)

type userContextKey string

const userKey userContextKey = "authenticated_user"

// authenticator validates the bearer token and attaches an
// auth.AuthenticatedUser (claims plus policy-derived allowed_tools) to the
// request context.
type authenticator struct {
	validator *auth.Validator
	policy    *policy.Engine
}

func newAuthenticator(v *auth.Validator, p *policy.Engine) *authenticator {
	return &authenticator{validator: v, policy: p}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.authenticate(r)
		if err != nil {
			writeGatewayError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *authenticator) authenticate(r *http.Request) (auth.AuthenticatedUser, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return auth.AuthenticatedUser{}, gwerr.New(gwerr.InvalidToken, "missing bearer token")
	}
	bearer := strings.TrimPrefix(header, prefix)

	claims, err := a.validator.Validate(bearer)
	if err != nil {
		return auth.AuthenticatedUser{}, err
	}

	return auth.AuthenticatedUser{
		Claims:       claims,
		AllowedTools: a.policy.AllowedTools(claims),
		DeniedTools:  a.policy.DeniedTools(claims),
	}, nil
}

func userFromContext(r *http.Request) (auth.AuthenticatedUser, bool) {
	u, ok := r.Context().Value(userKey).(auth.AuthenticatedUser)
	return u, ok
}

// requireAdmin wraps next, rejecting any user without the admin role.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r)
		if !ok || !user.Claims.HasRole("admin") {
			writeGatewayError(w, gwerr.New(gwerr.AdminRequired, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
