package enums

import "fmt"

// InventoryMovementType is stored in inventory_movements.type.
type InventoryMovementType string

const (
	InventoryMovementReserve InventoryMovementType = "reserve"
	InventoryMovementRelease InventoryMovementType = "release"
	InventoryMovementRestock InventoryMovementType = "restock"
)

var validInventoryMovementTypes = []InventoryMovementType{
	InventoryMovementReserve,
	InventoryMovementRelease,
	InventoryMovementRestock,
}

func (t InventoryMovementType) String() string {
	return string(t)
}

func (t InventoryMovementType) IsValid() bool {
	for _, candidate := range validInventoryMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseInventoryMovementType(value string) (InventoryMovementType, error) {
	for _, candidate := range validInventoryMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory movement type %q", value)
}
