package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// InventoryMovement records an immutable stock change and the balance it left.
type InventoryMovement struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	MedicationID uuid.UUID                   `gorm:"column:medication_id;type:uuid;not null;index"`
	OrderID      *uuid.UUID                  `gorm:"column:order_id;type:uuid;index"`
	ActorID      *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	Type         enums.InventoryMovementType `gorm:"column:type;type:text;not null"`
	Quantity     int                         `gorm:"column:quantity;not null"`
	BalanceAfter int                         `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
