package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lokrise/checkout/pkg/logger"
)

// GuestTokenHeader carries the guest cart token in both directions.
const GuestTokenHeader = "X-Guest-Token"

const maxGuestTokenLen = 64

// GuestToken resolves the guest cart token of an anonymous caller. A caller without
// a usable token gets a fresh one, echoed in the response header so the client can
// keep it. Authenticated callers keep any token they send, which is what the
// migration endpoint needs, but are never issued a new one.
func GuestToken(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := strings.TrimSpace(r.Header.Get(GuestTokenHeader))
			if len(token) > maxGuestTokenLen {
				token = ""
			}
			if token == "" && UserIDFromContext(ctx) == "" {
				token = uuid.NewString()
				w.Header().Set(GuestTokenHeader, token)
			}
			if token != "" {
				ctx = WithGuestToken(ctx, token)
				if logg != nil {
					ctx = logg.WithGuestToken(ctx, token)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
