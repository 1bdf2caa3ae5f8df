package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

type lowStockLister interface {
	LowStock(ctx context.Context, limit int) ([]catalog.StockSummary, error)
	CountLowStock(ctx context.Context) (int, error)
}

type LowStockJobParams struct {
	Logger  *logger.Logger
	Catalog lowStockLister
	Metrics *metrics.JobMetrics
}

// NewLowStockJob logs medications at or below their threshold and updates the
// low stock gauge.
func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Catalog == nil {
		return nil, errors.New("catalog required")
	}
	return &lowStockJob{logg: params.Logger, catalog: params.Catalog, metrics: params.Metrics}, nil
}

type lowStockJob struct {
	logg    *logger.Logger
	catalog lowStockLister
	metrics *metrics.JobMetrics
}

func (j *lowStockJob) Name() string { return "low-stock-sweep" }

// Run sets the gauge from a full count; the logged ids are the emptiest page.
func (j *lowStockJob) Run(ctx context.Context) error {
	count, err := j.catalog.CountLowStock(ctx)
	if err != nil {
		return fmt.Errorf("count low stock: %w", err)
	}
	j.metrics.SetLowStock(count)
	if count == 0 {
		return nil
	}

	items, err := j.catalog.LowStock(ctx, pagination.MaxLimit)
	if err != nil {
		return fmt.Errorf("list low stock: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MedicationID.String())
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"count":          count,
		"medication_ids": ids,
		"truncated":      count > len(ids),
	}), "medications below minimum threshold")
	return nil
}
