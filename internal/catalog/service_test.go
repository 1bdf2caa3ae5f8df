package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return NewRepository(conn)
}

func mustCreate(t *testing.T, repo *Repository, name, price string, qty, threshold int, active bool) *models.Medication {
	t.Helper()
	med, err := repo.Create(context.Background(), &models.Medication{
		Name:             name,
		UnitPrice:        decimal.RequireFromString(price),
		CurrentQuantity:  qty,
		MinimumThreshold: threshold,
		Active:           active,
	})
	require.NoError(t, err)
	return med
}

func TestGetPriceAndStatus(t *testing.T) {
	repo := newTestRepo(t)
	svc, err := NewService(repo)
	require.NoError(t, err)
	med := mustCreate(t, repo, "ibuprofen 400mg", "5.00", 10, 2, false)

	got, err := svc.GetPriceAndStatus(context.Background(), med.ID)
	require.NoError(t, err)
	assert.True(t, got.UnitPrice.Equal(decimal.RequireFromString("5.00")))
	assert.False(t, got.Active)

	_, err = svc.GetPriceAndStatus(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSnapshotSkipsUnknownIDs(t *testing.T) {
	repo := newTestRepo(t)
	svc, err := NewService(repo)
	require.NoError(t, err)
	a := mustCreate(t, repo, "paracetamol", "2.10", 10, 2, true)
	b := mustCreate(t, repo, "loratadine", "7.99", 10, 2, true)
	missing := uuid.New()

	snap, err := svc.Snapshot(context.Background(), []uuid.UUID{a.ID, b.ID, missing})
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.True(t, snap[b.ID].UnitPrice.Equal(decimal.RequireFromString("7.99")))
	_, ok := snap[missing]
	assert.False(t, ok)
}

func TestLowStockListsActiveAtOrBelowThreshold(t *testing.T) {
	repo := newTestRepo(t)
	svc, err := NewService(repo)
	require.NoError(t, err)
	mustCreate(t, repo, "plenty", "1.00", 50, 5, true)
	atThreshold := mustCreate(t, repo, "at threshold", "1.00", 5, 5, true)
	empty := mustCreate(t, repo, "empty", "1.00", 0, 5, true)
	mustCreate(t, repo, "inactive", "1.00", 0, 5, false)

	low, err := svc.LowStock(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, empty.ID, low[0].MedicationID)
	assert.Equal(t, atThreshold.ID, low[1].MedicationID)

	count, err := svc.CountLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCountLowStockIsNotCappedByPageSize(t *testing.T) {
	repo := newTestRepo(t)
	svc, err := NewService(repo)
	require.NoError(t, err)
	total := pagination.MaxLimit + 3
	for i := 0; i < total; i++ {
		mustCreate(t, repo, fmt.Sprintf("low-%03d", i), "1.00", 0, 5, true)
	}

	page, err := svc.LowStock(context.Background(), pagination.MaxLimit)
	require.NoError(t, err)
	assert.Len(t, page, pagination.MaxLimit)

	count, err := svc.CountLowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, total, count)
}
