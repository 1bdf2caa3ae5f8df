package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
)

// transitions is the complete lifecycle table. Anything absent is illegal,
// including self transitions.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusInPreparation:    {enums.OrderStatusReadyForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusReadyForDelivery: {enums.OrderStatusCompleted, enums.OrderStatusFailedDelivery},
	enums.OrderStatusFailedDelivery:   {enums.OrderStatusReadyForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusCompleted:        nil,
	enums.OrderStatusCancelled:        nil,
}

// InvalidTransitionError is returned for any pair missing from the table.
type InvalidTransitionError struct {
	From enums.OrderStatus
	To   enums.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// TransitionContext carries the caller-supplied data a transition may need.
type TransitionContext struct {
	ActorID         uuid.UUID
	Reason          string
	DeliveryAgentID *uuid.UUID
	Now             time.Time
}

// TransitionResult is the order after the transition plus the side effects
// the caller must perform in the same transaction.
type TransitionResult struct {
	Order        models.Order
	From         enums.OrderStatus
	ReleaseStock bool
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from the given one.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	out := make([]enums.OrderStatus, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status enums.OrderStatus) bool {
	return status.IsValid() && len(transitions[status]) == 0
}

// Transition validates and applies a status change without touching storage.
// Cancelling requires a reason; cancelling an order still in preparation
// asks the caller to release its reserved stock.
func Transition(order models.Order, target enums.OrderStatus, tc TransitionContext) (TransitionResult, error) {
	from := order.Status
	if !CanTransition(from, target) {
		return TransitionResult{}, &InvalidTransitionError{From: from, To: target}
	}

	next := order
	next.Status = target
	if !tc.Now.IsZero() {
		next.UpdatedAt = tc.Now
	}

	result := TransitionResult{From: from}
	switch target {
	case enums.OrderStatusCancelled:
		reason := strings.TrimSpace(tc.Reason)
		if reason == "" {
			return TransitionResult{}, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
		}
		next.CancellationReason = &reason
		result.ReleaseStock = from == enums.OrderStatusInPreparation
	case enums.OrderStatusReadyForDelivery:
		if tc.DeliveryAgentID != nil && *tc.DeliveryAgentID != uuid.Nil {
			agent := *tc.DeliveryAgentID
			next.DeliveryAgentID = &agent
		}
	}

	result.Order = next
	return result, nil
}
