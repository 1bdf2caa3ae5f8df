package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineItem captures the price snapshot of one medication in an order.
type OrderLineItem struct {
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;primaryKey"`
	MedicationID   uuid.UUID       `gorm:"column:medication_id;type:uuid;primaryKey"`
	MedicationName string          `gorm:"column:medication_name;not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal      decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
