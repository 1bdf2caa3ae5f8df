package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Medication is a catalog entry together with its stock counter.
// CurrentQuantity is only written by the inventory ledger.
type Medication struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	CurrentQuantity  int             `gorm:"column:current_quantity;not null;default:0"`
	MinimumThreshold int             `gorm:"column:minimum_threshold;not null;default:0"`
	Active           bool            `gorm:"column:active;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Medication) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BelowThreshold reports whether stock sits at or under the reorder point.
func (m Medication) BelowThreshold() bool {
	return m.CurrentQuantity <= m.MinimumThreshold
}
