package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// Order is created once per prescription by the fulfillment flow.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ClientID           uuid.UUID         `gorm:"column:client_id;type:uuid;not null;index"`
	PrescriptionID     uuid.UUID         `gorm:"column:prescription_id;type:uuid;not null;uniqueIndex"`
	TotalAmount        decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status             enums.OrderStatus `gorm:"column:status;type:text;not null;default:'in_preparation'"`
	DeliveryAgentID    *uuid.UUID        `gorm:"column:delivery_agent_id;type:uuid"`
	CancellationReason *string           `gorm:"column:cancellation_reason"`
	CreatedBy          uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	Items              []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
