package models

// All lists every persisted model; sqlite mode and tests auto-migrate it.
func All() []any {
	return []any{
		&Medication{},
		&Prescription{},
		&Order{},
		&OrderLineItem{},
		&OrderStatusChange{},
		&InventoryMovement{},
		&Notification{},
	}
}
