package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"samples-backend/internal/apperr"
	"samples-backend/internal/httpx"
)

const MsgAuthenticationRequired = "Full authentication is required to access this resource"

// Identity is the authenticated caller bound to a request context.
type Identity struct {
	ID       int64
	Username string
	Role     Role
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type UserLookup interface {
	FindUserByUsername(ctx context.Context, username string) (User, error)
}

// Authenticate binds the bearer token's user to the request. Requests without
// a token pass through anonymously; a present but invalid or expired token is
// rejected with 401.
func Authenticate(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httpx.BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				httpx.WriteError(w, r, tokenError(err))
				return
			}

			user, err := users.FindUserByUsername(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					httpx.WriteError(w, r, apperr.Unauthorized(MsgInvalidToken))
					return
				}
				httpx.WriteError(w, r, fmt.Errorf("load token subject: %w", err))
				return
			}

			if !tokens.IsValid(token, user) {
				httpx.WriteError(w, r, apperr.Unauthorized(MsgInvalidToken))
				return
			}

			ctx := WithIdentity(r.Context(), Identity{ID: user.ID, Username: user.Username, Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			httpx.WriteError(w, r, apperr.Unauthorized(MsgAuthenticationRequired))
			return
		}
		next.ServeHTTP(w, r)
	})
}
