package inventory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.NewFromGorm(conn, 0)
}

func seedMedication(t *testing.T, conn *gorm.DB, name string, qty, threshold int, active bool) models.Medication {
	t.Helper()
	med := models.Medication{
		Name:             name,
		UnitPrice:        decimal.RequireFromString("4.25"),
		CurrentQuantity:  qty,
		MinimumThreshold: threshold,
		Active:           active,
	}
	require.NoError(t, conn.Create(&med).Error)
	return med
}

func quantityOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var med models.Medication
	require.NoError(t, conn.Where("id = ?", id).Take(&med).Error)
	return med.CurrentQuantity
}

func movementCount(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.InventoryMovement{}).Count(&count).Error)
	return count
}

func TestReserveDecrementsEveryItem(t *testing.T) {
	client := newTestClient(t)
	conn := client.DB()
	ledger := NewLedger(nil)
	a := seedMedication(t, conn, "amoxicillin", 100, 10, true)
	b := seedMedication(t, conn, "ibuprofen", 20, 5, true)
	orderID := uuid.New()

	var levels []StockLevel
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		levels, err = ledger.Reserve(context.Background(), tx, Source{OrderID: &orderID}, []Item{
			{MedicationID: a.ID, Quantity: 10},
			{MedicationID: b.ID, Quantity: 15},
		})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 90, quantityOf(t, conn, a.ID))
	assert.Equal(t, 5, quantityOf(t, conn, b.ID))
	require.Len(t, levels, 2)
	for _, level := range levels {
		if level.MedicationID == b.ID {
			assert.True(t, level.CrossedThreshold, "ibuprofen dropped to its threshold")
		} else {
			assert.False(t, level.CrossedThreshold)
		}
	}

	var movements []models.InventoryMovement
	require.NoError(t, conn.Order("balance_after").Find(&movements).Error)
	require.Len(t, movements, 2)
	assert.Equal(t, enums.InventoryMovementReserve, movements[0].Type)
	require.NotNil(t, movements[0].OrderID)
	assert.Equal(t, orderID, *movements[0].OrderID)
}

func TestReserveReportsEveryShortageWithoutMutation(t *testing.T) {
	client := newTestClient(t)
	conn := client.DB()
	ledger := NewLedger(nil)
	short := seedMedication(t, conn, "insulin", 5, 1, true)
	inactive := seedMedication(t, conn, "discontinued", 50, 1, false)
	plenty := seedMedication(t, conn, "paracetamol", 80, 1, true)
	missing := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := ledger.Reserve(context.Background(), tx, Source{}, []Item{
			{MedicationID: short.ID, Quantity: 10},
			{MedicationID: plenty.ID, Quantity: 10},
			{MedicationID: inactive.ID, Quantity: 1},
			{MedicationID: missing, Quantity: 2},
		})
		return err
	})

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "expected InsufficientStockError, got %v", err)
	require.Len(t, stockErr.Items, 3)

	byID := map[uuid.UUID]Shortage{}
	for _, s := range stockErr.Items {
		byID[s.MedicationID] = s
	}
	assert.Equal(t, Shortage{MedicationID: short.ID, Available: 5, Requested: 10, Reason: ShortageInsufficient}, byID[short.ID])
	assert.Equal(t, ShortageInactive, byID[inactive.ID].Reason)
	assert.Equal(t, ShortageNotFound, byID[missing].Reason)

	assert.Equal(t, 5, quantityOf(t, conn, short.ID))
	assert.Equal(t, 80, quantityOf(t, conn, plenty.ID))
	assert.Equal(t, int64(0), movementCount(t, conn))
}

func TestReserveRejectsMalformedItems(t *testing.T) {
	client := newTestClient(t)
	ledger := NewLedger(nil)
	med := seedMedication(t, client.DB(), "saline", 10, 0, true)

	cases := map[string][]Item{
		"empty":     nil,
		"zero":      {{MedicationID: med.ID, Quantity: 0}},
		"negative":  {{MedicationID: med.ID, Quantity: -3}},
		"duplicate": {{MedicationID: med.ID, Quantity: 1}, {MedicationID: med.ID, Quantity: 2}},
		"nil id":    {{MedicationID: uuid.Nil, Quantity: 1}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := ledger.Reserve(context.Background(), tx, Source{}, items)
				return err
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
	assert.Equal(t, 10, quantityOf(t, client.DB(), med.ID))
}

func TestReserveRequiresTransaction(t *testing.T) {
	_, err := NewLedger(nil).Reserve(context.Background(), nil, Source{}, []Item{{MedicationID: uuid.New(), Quantity: 1}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestReleaseSkipsMissingMedication(t *testing.T) {
	client := newTestClient(t)
	conn := client.DB()
	buf := &bytes.Buffer{}
	ledger := NewLedger(logger.New(logger.Options{ServiceName: "test", Output: buf}))
	med := seedMedication(t, conn, "omeprazole", 3, 1, true)
	missing := uuid.New()

	var levels []StockLevel
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		levels, err = ledger.Release(context.Background(), tx, Source{}, []Item{
			{MedicationID: missing, Quantity: 4},
			{MedicationID: med.ID, Quantity: 7},
		})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 10, quantityOf(t, conn, med.ID))
	require.Len(t, levels, 1)
	assert.Equal(t, 10, levels[0].Quantity)
	assert.Contains(t, buf.String(), "inventory.release.medication_missing")
	assert.Contains(t, buf.String(), missing.String())
}

func TestReleaseMergesRepeatedMedication(t *testing.T) {
	client := newTestClient(t)
	ledger := NewLedger(nil)
	med := seedMedication(t, client.DB(), "cetirizine", 0, 1, true)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := ledger.Release(context.Background(), tx, Source{}, []Item{
			{MedicationID: med.ID, Quantity: 2},
			{MedicationID: med.ID, Quantity: 3},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 5, quantityOf(t, client.DB(), med.ID))
	assert.Equal(t, int64(1), movementCount(t, client.DB()))
}

func TestRestock(t *testing.T) {
	client := newTestClient(t)
	ledger := NewLedger(nil)
	med := seedMedication(t, client.DB(), "loratadine", 2, 5, true)
	actor := uuid.New()

	var level StockLevel
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		level, err = ledger.Restock(context.Background(), tx, actor, med.ID, 20)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 22, level.Quantity)
	assert.Equal(t, 22, quantityOf(t, client.DB(), med.ID))

	var movement models.InventoryMovement
	require.NoError(t, client.DB().Take(&movement).Error)
	assert.Equal(t, enums.InventoryMovementRestock, movement.Type)
	require.NotNil(t, movement.ActorID)
	assert.Equal(t, actor, *movement.ActorID)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := ledger.Restock(context.Background(), tx, actor, uuid.New(), 1)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	client := newTestClient(t)
	ledger := NewLedger(logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	med := seedMedication(t, client.DB(), "metformin", 100, 0, true)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
				_, err := ledger.Reserve(context.Background(), tx, Source{}, []Item{{MedicationID: med.ID, Quantity: 15}})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &stockErr):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100/15, successes)
	assert.Equal(t, workers-100/15, conflicts)
	assert.Equal(t, 100-15*(100/15), quantityOf(t, client.DB(), med.ID))
}

func TestValidateItemsSortsByMedicationID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	mid := uuid.MustParse("7fffffff-0000-0000-0000-000000000000")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	sorted, err := ValidateItems([]Item{
		{MedicationID: high, Quantity: 1},
		{MedicationID: low, Quantity: 2},
		{MedicationID: mid, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{low, mid, high}, []uuid.UUID{sorted[0].MedicationID, sorted[1].MedicationID, sorted[2].MedicationID})
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	err := &InsufficientStockError{Items: []Shortage{{MedicationID: id, Available: 5, Requested: 10, Reason: ShortageInsufficient}}}
	assert.Equal(t, "insufficient stock: 11111111-1111-1111-1111-111111111111(insufficient available=5 requested=10)", err.Error())
}
