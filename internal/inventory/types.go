package inventory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Item is one (medication, quantity) pair handed to the ledger.
type Item struct {
	MedicationID uuid.UUID `json:"medication_id"`
	Quantity     int       `json:"quantity"`
}

// Source ties a stock movement to the order and staff member that caused it.
type Source struct {
	OrderID *uuid.UUID
	ActorID *uuid.UUID
}

type ShortageReason string

const (
	ShortageInsufficient ShortageReason = "insufficient"
	ShortageInactive     ShortageReason = "inactive"
	ShortageNotFound     ShortageReason = "not_found"
)

// Shortage describes one item that blocked a reservation.
type Shortage struct {
	MedicationID uuid.UUID      `json:"medication_id"`
	Available    int            `json:"available"`
	Requested    int            `json:"requested"`
	Reason       ShortageReason `json:"reason"`
}

// InsufficientStockError lists every item that failed the reservation check.
// Nothing was decremented when it is returned.
type InsufficientStockError struct {
	Items []Shortage
}

func (e *InsufficientStockError) Error() string {
	if e == nil || len(e.Items) == 0 {
		return "insufficient stock"
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s(%s available=%d requested=%d)", item.MedicationID, item.Reason, item.Available, item.Requested))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// StockLevel is the balance a medication was left with after a ledger call.
type StockLevel struct {
	MedicationID     uuid.UUID `json:"medication_id"`
	Name             string    `json:"name"`
	Quantity         int       `json:"quantity"`
	MinimumThreshold int       `json:"minimum_threshold"`
	// CrossedThreshold is set when this call moved the balance from above
	// the minimum threshold to at or below it.
	CrossedThreshold bool `json:"crossed_threshold"`
}
