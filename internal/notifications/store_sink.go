package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

type notificationCreator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// StoreSink persists events as in-app notifications.
type StoreSink struct {
	repo notificationCreator
}

func NewStoreSink(repo notificationCreator) (*StoreSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &StoreSink{repo: repo}, nil
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, event Event) error {
	if event.UserID == uuid.Nil {
		return ErrNoUser
	}
	title, message := render(event)
	return s.repo.Create(ctx, &models.Notification{
		ID:      event.ID,
		UserID:  event.UserID,
		Kind:    event.Kind,
		Title:   title,
		Message: message,
		Payload: event.Payload,
	})
}

func render(event Event) (string, string) {
	p := event.Payload
	switch event.Kind {
	case enums.NotificationKindOrderCreated:
		return "Order created", fmt.Sprintf("Your order %v is being prepared.", p["order_id"])
	case enums.NotificationKindOrderStatusChanged:
		return "Order updated", fmt.Sprintf("Your order %v is now %v.", p["order_id"], p["to"])
	case enums.NotificationKindPrescriptionRejected:
		return "Prescription rejected", fmt.Sprintf("Prescription %v was rejected: %v", p["reference_code"], p["reason"])
	case enums.NotificationKindLowStock:
		return "Low stock", fmt.Sprintf("%v is down to %v units (minimum %v).", p["name"], p["quantity"], p["minimum_threshold"])
	default:
		return string(event.Kind), ""
	}
}
