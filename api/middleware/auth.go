package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/lokrise/checkout/api/responses"
	pkgAuth "github.com/lokrise/checkout/pkg/auth"
	"github.com/lokrise/checkout/pkg/config"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
)

// Auth requires a valid bearer token and seeds the request context with its claims.
// The raw token stays on the context so marketplace calls act on the caller's behalf.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return bearerAuth(cfg, logg, true)
}

// OptionalAuth lets anonymous requests through untouched. A token that is
// present but invalid is still rejected.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return bearerAuth(cfg, logg, false)
}

func bearerAuth(cfg config.JWTConfig, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			switch {
			case token == "" && required:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			case token == "":
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r.Context(), cfg, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts the scheme in any case; a header without a scheme is taken as the token.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

func authenticate(ctx context.Context, cfg config.JWTConfig, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}

	ctx = WithUserID(ctx, claims.UserID)
	ctx = WithRole(ctx, claims.Role.String())
	ctx = marketplace.WithBearer(ctx, token)

	if logg != nil {
		ctx = logg.WithUserID(ctx, claims.UserID)
		ctx = logg.WithActorRole(ctx, claims.Role.String())
	}
	return ctx, nil
}
