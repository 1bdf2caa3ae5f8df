package prescriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
)

// ErrNotPending is returned when a conditional update finds the prescription
// already processed or rejected.
var ErrNotPending = errors.New("prescription is no longer pending")

// Repository exposes prescription persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a prescription repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new pending prescription.
func (r *Repository) Create(ctx context.Context, prescription *models.Prescription) (*models.Prescription, error) {
	if prescription.Status == "" {
		prescription.Status = enums.PrescriptionStatusPending
	}
	if err := r.db.WithContext(ctx).Create(prescription).Error; err != nil {
		return nil, err
	}
	return prescription, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Prescription, error) {
	var prescription models.Prescription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&prescription).Error; err != nil {
		return nil, err
	}
	return &prescription, nil
}

// MarkProcessed moves a pending prescription to processed. It is the storage
// side of the exactly-once guarantee: a second caller affects zero rows and
// gets ErrNotPending.
func (r *Repository) MarkProcessed(ctx context.Context, id, staffID uuid.UUID, at time.Time) error {
	return r.finalize(ctx, id, map[string]any{
		"status":       enums.PrescriptionStatusProcessed,
		"processed_by": staffID,
		"processed_at": at,
		"updated_at":   at,
	})
}

// Reject moves a pending prescription to rejected with the given reason.
func (r *Repository) Reject(ctx context.Context, id, staffID uuid.UUID, reason string, at time.Time) error {
	return r.finalize(ctx, id, map[string]any{
		"status":           enums.PrescriptionStatusRejected,
		"rejection_reason": reason,
		"processed_by":     staffID,
		"processed_at":     at,
		"updated_at":       at,
	})
}

func (r *Repository) finalize(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.Prescription{}).
		Where("id = ? AND status = ?", id, enums.PrescriptionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
