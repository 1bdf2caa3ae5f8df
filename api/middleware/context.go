package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxStaffID contextKey = "staff_id"

// StaffIDFromContext returns the authenticated staff member, if any.
func StaffIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxStaffID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithStaffID injects the staff identifier into the context.
func WithStaffID(ctx context.Context, staffID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxStaffID, staffID)
}
