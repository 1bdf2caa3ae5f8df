package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/pharmacy-backend/api/responses"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// StaffRateLimit caps mutating requests per staff member in a fixed window.
// Reads pass through. A zero limit, window or store disables it.
func StaffRateLimit(limit int, window time.Duration, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 || window <= 0 || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staffID, ok := StaffIDFromContext(r.Context())
			if !ok || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			allowed, count, err := store.FixedWindowAllow(ctx, "staff:"+staffID.String(), int64(limit), window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"attempts":       count,
					"limit":          limit,
					"window_seconds": int(window.Seconds()),
				}), "staff.rate_limit.blocked")
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
