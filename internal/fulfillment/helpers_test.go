package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/internal/orders"
	"github.com/angelmondragon/pharmacy-backend/internal/prescriptions"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
)

type fixture struct {
	client   *db.Client
	conn     *gorm.DB
	registry *prometheus.Registry
	notes    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:fulfillment_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return &fixture{
		client:   db.NewFromGorm(conn, 0),
		conn:     conn,
		registry: prometheus.NewRegistry(),
		notes:    &recordingNotifier{},
	}
}

func (f *fixture) params(t *testing.T) ServiceParams {
	t.Helper()
	catalogSvc, err := catalog.NewService(catalog.NewRepository(f.conn))
	require.NoError(t, err)
	return ServiceParams{
		Tx:            f.client,
		Prescriptions: prescriptions.NewRepository(f.conn),
		Orders:        orders.NewRepository(f.conn),
		Catalog:       catalogSvc,
		Ledger:        inventory.NewLedger(nil),
		Notifier:      f.notes,
		Metrics:       metrics.NewEngineMetrics(f.registry),
	}
}

func (f *fixture) service(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(f.params(t))
	require.NoError(t, err)
	return svc
}

func (f *fixture) medication(t *testing.T, name, price string, qty, threshold int) models.Medication {
	t.Helper()
	med := models.Medication{
		Name:             name,
		UnitPrice:        decimal.RequireFromString(price),
		CurrentQuantity:  qty,
		MinimumThreshold: threshold,
		Active:           true,
	}
	require.NoError(t, f.conn.Create(&med).Error)
	return med
}

func (f *fixture) prescription(t *testing.T) models.Prescription {
	t.Helper()
	rx := models.Prescription{
		ReferenceCode: "RX-" + uuid.NewString()[:8],
		ClientID:      uuid.New(),
		Status:        enums.PrescriptionStatusPending,
	}
	require.NoError(t, f.conn.Create(&rx).Error)
	return rx
}

func (f *fixture) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var med models.Medication
	require.NoError(t, f.conn.Where("id = ?", id).Take(&med).Error)
	return med.CurrentQuantity
}

func (f *fixture) prescriptionStatus(t *testing.T, id uuid.UUID) enums.PrescriptionStatus {
	t.Helper()
	var rx models.Prescription
	require.NoError(t, f.conn.Where("id = ?", id).Take(&rx).Error)
	return rx.Status
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
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

func (r *recordingNotifier) byKind(kind enums.NotificationKind) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}
