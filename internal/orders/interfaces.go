package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their audit trail.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	RecordStatusChange(ctx context.Context, change *models.OrderStatusChange) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPrescriptionID(ctx context.Context, prescriptionID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, order *models.Order, from enums.OrderStatus) error
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusChange, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, error)
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status   *enums.OrderStatus
	ClientID *uuid.UUID
}
