package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// Prescription is a client submission reviewed by staff before fulfillment.
type Prescription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ReferenceCode   string                   `gorm:"column:reference_code;not null;uniqueIndex" json:"reference_code"`
	ClientID        uuid.UUID                `gorm:"column:client_id;type:uuid;not null;index" json:"client_id"`
	Status          enums.PrescriptionStatus `gorm:"column:status;type:text;not null;default:'pending'" json:"status"`
	RejectionReason *string                  `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	ProcessedBy     *uuid.UUID               `gorm:"column:processed_by;type:uuid" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time               `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Prescription) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
