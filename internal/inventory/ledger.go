package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

// Ledger is the only writer of medications.current_quantity. Every method
// runs on a caller-owned transaction and locks medication rows one at a time
// in ascending id order, so overlapping callers serialize on the shared rows
// and never wait on each other in a cycle.
type Ledger struct {
	logg *logger.Logger
}

func NewLedger(logg *logger.Logger) *Ledger {
	return &Ledger{logg: logg}
}

// Reserve checks and decrements stock for every item, all or nothing.
// When any item is missing, inactive or short, no row is changed and an
// *InsufficientStockError naming all offending items is returned.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, src Source, items []Item) ([]StockLevel, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reserve requires a transaction")
	}
	sorted, err := ValidateItems(items)
	if err != nil {
		return nil, err
	}

	locked := make([]models.Medication, len(sorted))
	var shortages []Shortage
	for i, item := range sorted {
		med, found, err := lockMedication(tx, item.MedicationID)
		if err != nil {
			return nil, err
		}
		if !found {
			shortages = append(shortages, Shortage{
				MedicationID: item.MedicationID,
				Requested:    item.Quantity,
				Reason:       ShortageNotFound,
			})
			continue
		}
		locked[i] = med
		switch {
		case !med.Active:
			shortages = append(shortages, Shortage{
				MedicationID: item.MedicationID,
				Available:    med.CurrentQuantity,
				Requested:    item.Quantity,
				Reason:       ShortageInactive,
			})
		case med.CurrentQuantity < item.Quantity:
			shortages = append(shortages, Shortage{
				MedicationID: item.MedicationID,
				Available:    med.CurrentQuantity,
				Requested:    item.Quantity,
				Reason:       ShortageInsufficient,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Items: shortages}
	}

	levels := make([]StockLevel, 0, len(sorted))
	for i, item := range sorted {
		med := locked[i]
		if err := adjustQuantity(tx, med.ID, -item.Quantity); err != nil {
			return nil, err
		}
		after := med.CurrentQuantity - item.Quantity
		if err := recordMovement(tx, med.ID, enums.InventoryMovementReserve, item.Quantity, after, src); err != nil {
			return nil, err
		}
		levels = append(levels, StockLevel{
			MedicationID:     med.ID,
			Name:             med.Name,
			Quantity:         after,
			MinimumThreshold: med.MinimumThreshold,
			CrossedThreshold: med.CurrentQuantity > med.MinimumThreshold && after <= med.MinimumThreshold,
		})
	}
	return levels, nil
}

// Release puts stock back, typically for a cancelled order. Medications that
// no longer exist are logged and skipped; only storage failures are returned.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, src Source, items []Item) ([]StockLevel, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "release requires a transaction")
	}
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	levels := make([]StockLevel, 0, len(merged))
	for _, item := range merged {
		med, found, err := lockMedication(tx, item.MedicationID)
		if err != nil {
			return nil, err
		}
		if !found {
			warnCtx := l.logg.WithFields(ctx, map[string]any{
				"medication_id": item.MedicationID.String(),
				"quantity":      item.Quantity,
			})
			l.logg.Warn(warnCtx, "inventory.release.medication_missing")
			continue
		}
		if err := adjustQuantity(tx, med.ID, item.Quantity); err != nil {
			return nil, err
		}
		after := med.CurrentQuantity + item.Quantity
		if err := recordMovement(tx, med.ID, enums.InventoryMovementRelease, item.Quantity, after, src); err != nil {
			return nil, err
		}
		levels = append(levels, StockLevel{
			MedicationID:     med.ID,
			Name:             med.Name,
			Quantity:         after,
			MinimumThreshold: med.MinimumThreshold,
		})
	}
	return levels, nil
}

// Restock adds received units to a single medication.
func (l *Ledger) Restock(ctx context.Context, tx *gorm.DB, actorID uuid.UUID, medicationID uuid.UUID, quantity int) (StockLevel, error) {
	if tx == nil {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeInternal, "restock requires a transaction")
	}
	if quantity <= 0 {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"quantity": quantity})
	}

	med, found, err := lockMedication(tx, medicationID)
	if err != nil {
		return StockLevel{}, err
	}
	if !found {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeNotFound, "medication not found")
	}
	if err := adjustQuantity(tx, med.ID, quantity); err != nil {
		return StockLevel{}, err
	}
	after := med.CurrentQuantity + quantity
	actor := actorID
	if err := recordMovement(tx, med.ID, enums.InventoryMovementRestock, quantity, after, Source{ActorID: &actor}); err != nil {
		return StockLevel{}, err
	}

	infoCtx := l.logg.WithFields(ctx, map[string]any{
		"medication_id": med.ID.String(),
		"quantity":      quantity,
		"balance":       after,
	})
	l.logg.Info(infoCtx, "inventory.restocked")

	return StockLevel{
		MedicationID:     med.ID,
		Name:             med.Name,
		Quantity:         after,
		MinimumThreshold: med.MinimumThreshold,
	}, nil
}

// ValidateItems rejects empty lists, non-positive quantities and duplicate
// medication ids, and returns a copy sorted by ascending medication id.
func ValidateItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for i, item := range items {
		if item.MedicationID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "medication id is required").
				WithDetails(map[string]any{"index": i})
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"index": i, "medication_id": item.MedicationID.String(), "quantity": item.Quantity})
		}
		if _, dup := seen[item.MedicationID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate medication in request").
				WithDetails(map[string]any{"index": i, "medication_id": item.MedicationID.String()})
		}
		seen[item.MedicationID] = struct{}{}
	}
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sortByMedicationID(sorted)
	return sorted, nil
}

func mergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"medication_id": item.MedicationID.String(), "quantity": item.Quantity})
		}
		totals[item.MedicationID] += item.Quantity
	}
	merged := make([]Item, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Item{MedicationID: id, Quantity: qty})
	}
	sortByMedicationID(merged)
	return merged, nil
}

func sortByMedicationID(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].MedicationID[:], items[j].MedicationID[:]) < 0
	})
}

func lockMedication(tx *gorm.DB, id uuid.UUID) (models.Medication, bool, error) {
	var med models.Medication
	err := db.ForUpdate(tx).Where("id = ?", id).Take(&med).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Medication{}, false, nil
	}
	if err != nil {
		return models.Medication{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock medication")
	}
	return med, true, nil
}

func adjustQuantity(tx *gorm.DB, id uuid.UUID, delta int) error {
	res := tx.Model(&models.Medication{}).
		Where("id = ? AND current_quantity + ? >= 0", id, delta).
		UpdateColumn("current_quantity", gorm.Expr("current_quantity + ?", delta))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update medication quantity")
	}
	if res.RowsAffected != 1 {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("stock update for %s affected %d rows", id, res.RowsAffected))
	}
	return nil
}

func recordMovement(tx *gorm.DB, medicationID uuid.UUID, kind enums.InventoryMovementType, qty, balance int, src Source) error {
	movement := models.InventoryMovement{
		MedicationID: medicationID,
		OrderID:      src.OrderID,
		ActorID:      src.ActorID,
		Type:         kind,
		Quantity:     qty,
		BalanceAfter: balance,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory movement")
	}
	return nil
}
