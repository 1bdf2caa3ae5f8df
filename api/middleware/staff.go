package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacy-backend/api/responses"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

// StaffHeader carries the staff member id asserted by the upstream gateway.
const StaffHeader = "X-Staff-Id"

// Staff requires a well-formed staff id and seeds it into the request context.
func Staff(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(StaffHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing staff identity"))
				return
			}
			staffID, err := uuid.Parse(raw)
			if err != nil || staffID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid staff identity"))
				return
			}

			ctx := WithStaffID(r.Context(), staffID)
			ctx = logg.WithStaffID(ctx, staffID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
