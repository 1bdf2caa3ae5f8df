package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
)

// Repository reads medication catalog rows. Stock counters are written only
// by the inventory ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a medication; used by seeding and local tooling.
func (r *Repository) Create(ctx context.Context, med *models.Medication) (*models.Medication, error) {
	if err := r.db.WithContext(ctx).Create(med).Error; err != nil {
		return nil, err
	}
	return med, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Medication, error) {
	var med models.Medication
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&med).Error; err != nil {
		return nil, err
	}
	return &med, nil
}

// FindByIDs returns the medications that exist among ids, in no particular order.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Medication, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var meds []models.Medication
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&meds).Error; err != nil {
		return nil, err
	}
	return meds, nil
}

func (r *Repository) lowStock(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Medication{}).
		Where("active = ? AND current_quantity <= minimum_threshold", true)
}

// CountLowStock counts every active medication at or below its threshold.
func (r *Repository) CountLowStock(ctx context.Context) (int64, error) {
	var n int64
	err := r.lowStock(ctx).Count(&n).Error
	return n, err
}

// ListLowStock returns active medications at or below their minimum threshold,
// emptiest first.
func (r *Repository) ListLowStock(ctx context.Context, limit int) ([]models.Medication, error) {
	var meds []models.Medication
	err := r.lowStock(ctx).
		Order("current_quantity ASC").
		Order("name ASC").
		Limit(limit).
		Find(&meds).Error
	return meds, err
}
