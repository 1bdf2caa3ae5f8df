package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// OrderStatusChange is the append-only audit trail of order transitions.
// FromStatus is nil for the creation entry.
type OrderStatusChange struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:text"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:text;not null"`
	ActorID    uuid.UUID          `gorm:"column:actor_id;type:uuid;not null"`
	Reason     *string            `gorm:"column:reason"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (c *OrderStatusChange) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
