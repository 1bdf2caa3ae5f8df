package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// Notification stores in-app notification facts addressed to one user.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Kind      enums.NotificationKind `gorm:"column:kind;type:text;not null" json:"kind"`
	Title     string                 `gorm:"column:title;not null" json:"title"`
	Message   string                 `gorm:"column:message;not null" json:"message"`
	Payload   map[string]any         `gorm:"column:payload;type:jsonb;serializer:json" json:"payload,omitempty"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
