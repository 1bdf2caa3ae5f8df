package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

// PriceStatus is the price and availability of a medication at read time.
type PriceStatus struct {
	MedicationID uuid.UUID       `json:"medication_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Active       bool            `json:"active"`
}

// StockSummary is the API shape of a low-stock medication.
type StockSummary struct {
	MedicationID     uuid.UUID `json:"medication_id"`
	Name             string    `json:"name"`
	CurrentQuantity  int       `json:"current_quantity"`
	MinimumThreshold int       `json:"minimum_threshold"`
}

type medicationsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Medication, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Medication, error)
	ListLowStock(ctx context.Context, limit int) ([]models.Medication, error)
	CountLowStock(ctx context.Context) (int64, error)
}

// Service answers catalog reads for fulfillment and staff dashboards.
type Service interface {
	GetPriceAndStatus(ctx context.Context, id uuid.UUID) (PriceStatus, error)
	Snapshot(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]PriceStatus, error)
	LowStock(ctx context.Context, limit int) ([]StockSummary, error)
	CountLowStock(ctx context.Context) (int, error)
}

type service struct {
	repo medicationsRepository
}

func NewService(repo medicationsRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("medications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetPriceAndStatus(ctx context.Context, id uuid.UUID) (PriceStatus, error) {
	med, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PriceStatus{}, pkgerrors.New(pkgerrors.CodeNotFound, "medication not found")
		}
		return PriceStatus{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup medication")
	}
	return toPriceStatus(*med), nil
}

// Snapshot reads price and status for every id in one query. Unknown ids are
// absent from the result; the inventory ledger reports them as not found.
func (s *service) Snapshot(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]PriceStatus, error) {
	meds, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot medications")
	}
	out := make(map[uuid.UUID]PriceStatus, len(meds))
	for _, med := range meds {
		out[med.ID] = toPriceStatus(med)
	}
	return out, nil
}

func (s *service) LowStock(ctx context.Context, limit int) ([]StockSummary, error) {
	meds, err := s.repo.ListLowStock(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	out := make([]StockSummary, 0, len(meds))
	for _, med := range meds {
		out = append(out, StockSummary{
			MedicationID:     med.ID,
			Name:             med.Name,
			CurrentQuantity:  med.CurrentQuantity,
			MinimumThreshold: med.MinimumThreshold,
		})
	}
	return out, nil
}

// CountLowStock is not bounded by the page size LowStock applies.
func (s *service) CountLowStock(ctx context.Context) (int, error) {
	n, err := s.repo.CountLowStock(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count low stock")
	}
	return int(n), nil
}

func toPriceStatus(med models.Medication) PriceStatus {
	return PriceStatus{
		MedicationID: med.ID,
		Name:         med.Name,
		UnitPrice:    med.UnitPrice,
		Active:       med.Active,
	}
}
