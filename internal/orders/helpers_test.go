package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.NewFromGorm(conn, 0)
}

type seededOrder struct {
	order      models.Order
	medication models.Medication
}

// seedOrder stores an order in the given status holding qty units of a fresh
// medication whose remaining stock is left at stock.
func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus, qty, stock int, createdAt time.Time) seededOrder {
	t.Helper()
	med := models.Medication{
		Name:             "amoxicillin-" + uuid.NewString()[:8],
		UnitPrice:        decimal.RequireFromString("3.50"),
		CurrentQuantity:  stock,
		MinimumThreshold: 1,
		Active:           true,
	}
	require.NoError(t, conn.Create(&med).Error)

	prescription := models.Prescription{
		ReferenceCode: "RX-" + uuid.NewString()[:8],
		ClientID:      uuid.New(),
		Status:        enums.PrescriptionStatusProcessed,
	}
	require.NoError(t, conn.Create(&prescription).Error)

	lineTotal := med.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
	order := models.Order{
		ClientID:       prescription.ClientID,
		PrescriptionID: prescription.ID,
		TotalAmount:    lineTotal,
		Status:         status,
		CreatedBy:      uuid.New(),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(t, conn.Omit("Items").Create(&order).Error)

	item := models.OrderLineItem{
		OrderID:        order.ID,
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Quantity:       qty,
		UnitPrice:      med.UnitPrice,
		LineTotal:      lineTotal,
	}
	require.NoError(t, conn.Create(&item).Error)
	order.Items = []models.OrderLineItem{item}

	return seededOrder{order: order, medication: med}
}

func quantityOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var med models.Medication
	require.NoError(t, conn.Where("id = ?", id).Take(&med).Error)
	return med.CurrentQuantity
}

type emitted struct {
	userID  uuid.UUID
	kind    enums.NotificationKind
	payload map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingNotifier) Emit(_ context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{userID: userID, kind: kind, payload: payload})
}

func (r *recordingNotifier) all() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emitted, len(r.events))
	copy(out, r.events)
	return out
}
