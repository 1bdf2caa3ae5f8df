package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

// TransitionInput captures a staff request to move an order to a new status.
type TransitionInput struct {
	OrderID         uuid.UUID
	Target          enums.OrderStatus
	ActorID         uuid.UUID
	Reason          string
	DeliveryAgentID *uuid.UUID
}

// ListParams combines filters with cursor pagination.
type ListParams struct {
	pagination.Params
	Filter ListFilter
}

type LineItemDTO struct {
	MedicationID   uuid.UUID       `json:"medication_id"`
	MedicationName string          `json:"medication_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	ID                 uuid.UUID         `json:"id"`
	ClientID           uuid.UUID         `json:"client_id"`
	PrescriptionID     uuid.UUID         `json:"prescription_id"`
	Status             enums.OrderStatus `json:"status"`
	TotalAmount        decimal.Decimal   `json:"total_amount"`
	DeliveryAgentID    *uuid.UUID        `json:"delivery_agent_id,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	CreatedBy          uuid.UUID         `json:"created_by"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Items              []LineItemDTO     `json:"items"`
}

type StatusChangeDTO struct {
	From      *enums.OrderStatus `json:"from,omitempty"`
	To        enums.OrderStatus  `json:"to"`
	ActorID   uuid.UUID          `json:"actor_id"`
	Reason    *string            `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// OrderDetail is an order together with its status history.
type OrderDetail struct {
	OrderDTO
	History []StatusChangeDTO `json:"history"`
}

type ListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// NewOrderDTO maps a persisted order and its loaded items.
func NewOrderDTO(order models.Order) OrderDTO {
	items := make([]LineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemDTO{
			MedicationID:   item.MedicationID,
			MedicationName: item.MedicationName,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			LineTotal:      item.LineTotal,
		})
	}
	return OrderDTO{
		ID:                 order.ID,
		ClientID:           order.ClientID,
		PrescriptionID:     order.PrescriptionID,
		Status:             order.Status,
		TotalAmount:        order.TotalAmount,
		DeliveryAgentID:    order.DeliveryAgentID,
		CancellationReason: order.CancellationReason,
		CreatedBy:          order.CreatedBy,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		Items:              items,
	}
}

func newStatusChangeDTOs(changes []models.OrderStatusChange) []StatusChangeDTO {
	out := make([]StatusChangeDTO, 0, len(changes))
	for _, change := range changes {
		out = append(out, StatusChangeDTO{
			From:      change.FromStatus,
			To:        change.ToStatus,
			ActorID:   change.ActorID,
			Reason:    change.Reason,
			CreatedAt: change.CreatedAt,
		})
	}
	return out
}
