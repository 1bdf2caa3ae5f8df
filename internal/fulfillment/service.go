package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/internal/orders"
	"github.com/angelmondragon/pharmacy-backend/internal/prescriptions"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
)

const (
	defaultBusyBackoff = 50 * time.Millisecond
	maxBusyBackoff     = time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type priceSnapshotter interface {
	Snapshot(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.PriceStatus, error)
}

type stockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, src inventory.Source, items []inventory.Item) ([]inventory.StockLevel, error)
}

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any)
}

// Request asks for one prescription to be turned into an order.
type Request struct {
	PrescriptionID uuid.UUID
	Items          []inventory.Item
	StaffID        uuid.UUID
}

// Service is the transaction boundary that turns a pending prescription into
// an order, reserving stock and marking the prescription processed atomically.
type Service interface {
	Process(ctx context.Context, req Request) (*orders.OrderDTO, error)
	ProcessWithRetry(ctx context.Context, req Request) (*orders.OrderDTO, error)
}

// ServiceParams wires the fulfillment service. Notifier, Metrics and Logger
// are optional.
type ServiceParams struct {
	Tx            txRunner
	Prescriptions *prescriptions.Repository
	Orders        orders.Repository
	Catalog       priceSnapshotter
	Ledger        stockReserver
	Notifier      notifier
	Metrics       *metrics.EngineMetrics
	Logger        *logger.Logger
	TxTimeout     time.Duration
	BusyRetries   uint64
	BusyBackoff   time.Duration
}

type service struct {
	tx            txRunner
	prescriptions *prescriptions.Repository
	orders        orders.Repository
	catalog       priceSnapshotter
	ledger        stockReserver
	notifier      notifier
	metrics       *metrics.EngineMetrics
	logg          *logger.Logger
	txTimeout     time.Duration
	busyRetries   uint64
	busyBackoff   time.Duration
}

func NewService(p ServiceParams) (Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Prescriptions == nil {
		return nil, fmt.Errorf("prescriptions repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	backoff := p.BusyBackoff
	if backoff <= 0 {
		backoff = defaultBusyBackoff
	}
	return &service{
		tx:            p.Tx,
		prescriptions: p.Prescriptions,
		orders:        p.Orders,
		catalog:       p.Catalog,
		ledger:        p.Ledger,
		notifier:      p.Notifier,
		metrics:       p.Metrics,
		logg:          p.Logger,
		txTimeout:     p.TxTimeout,
		busyRetries:   p.BusyRetries,
		busyBackoff:   backoff,
	}, nil
}

func (s *service) Process(ctx context.Context, req Request) (*orders.OrderDTO, error) {
	out, err := s.process(ctx, req)
	s.metrics.IncFulfillment(outcomeFor(err))
	return out, err
}

// ProcessWithRetry repeats Process while it fails with a busy error, backing
// off exponentially. Every other outcome is returned as is.
func (s *service) ProcessWithRetry(ctx context.Context, req Request) (*orders.OrderDTO, error) {
	backoff := retry.WithMaxRetries(s.busyRetries,
		retry.WithCappedDuration(maxBusyBackoff,
			retry.WithJitterPercent(10, retry.NewExponential(s.busyBackoff))))

	attempt := 0
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (*orders.OrderDTO, error) {
		attempt++
		out, err := s.Process(ctx, req)
		if pkgerrors.IsCode(err, pkgerrors.CodeBusy) {
			logCtx := s.logg.WithPrescriptionID(ctx, req.PrescriptionID.String())
			s.logg.Warn(s.logg.WithField(logCtx, "attempt", attempt), "fulfillment.busy_retry")
			return nil, retry.RetryableError(err)
		}
		return out, err
	})
}

func (s *service) process(ctx context.Context, req Request) (*orders.OrderDTO, error) {
	items, err := validate(req)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithPrescriptionID(ctx, req.PrescriptionID.String())
	ctx = s.logg.WithStaffID(ctx, req.StaffID.String())

	prescription, err := s.prescriptions.FindByID(ctx, req.PrescriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "prescription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup prescription")
	}
	if prescription.Status != enums.PrescriptionStatusPending {
		return nil, s.alreadyProcessed(ctx, prescription.ID, prescription.Status)
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MedicationID)
	}
	// Prices are read before any lock is taken; this snapshot is what the
	// order records even if the catalog changes before the reservation.
	prices, err := s.catalog.Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New()
	staffID := req.StaffID
	order := models.Order{
		ID:             orderID,
		ClientID:       prescription.ClientID,
		PrescriptionID: prescription.ID,
		Status:         enums.OrderStatusInPreparation,
		CreatedBy:      staffID,
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	started := time.Now()
	var levels []inventory.StockLevel
	err = s.tx.WithTx(txCtx, func(tx *gorm.DB) error {
		var err error
		levels, err = s.ledger.Reserve(txCtx, tx, inventory.Source{OrderID: &orderID, ActorID: &staffID}, items)
		if err != nil {
			return err
		}

		lines, total, err := buildLineItems(orderID, items, prices)
		if err != nil {
			return err
		}
		order.TotalAmount = total

		repo := s.orders.WithTx(tx)
		if err := repo.Create(txCtx, &order); err != nil {
			return err
		}
		if err := repo.CreateLineItems(txCtx, lines); err != nil {
			return err
		}
		if err := repo.RecordStatusChange(txCtx, &models.OrderStatusChange{
			OrderID:  orderID,
			ToStatus: enums.OrderStatusInPreparation,
			ActorID:  staffID,
		}); err != nil {
			return err
		}
		order.Items = lines

		return s.prescriptions.WithTx(tx).MarkProcessed(txCtx, prescription.ID, staffID, time.Now().UTC())
	})
	s.metrics.ObserveReservation(time.Since(started))
	if err != nil {
		return nil, s.mapTxError(ctx, prescription.ID, err)
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"items": len(items),
		"total": order.TotalAmount.StringFixed(2),
	}), "fulfillment.order_created")

	s.emit(ctx, order, staffID, levels)

	dto := orders.NewOrderDTO(order)
	return &dto, nil
}

func validate(req Request) ([]inventory.Item, error) {
	if req.PrescriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prescription id is required")
	}
	if req.StaffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id is required")
	}
	return inventory.ValidateItems(req.Items)
}

func buildLineItems(orderID uuid.UUID, items []inventory.Item, prices map[uuid.UUID]catalog.PriceStatus) ([]models.OrderLineItem, decimal.Decimal, error) {
	lines := make([]models.OrderLineItem, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		price, ok := prices[item.MedicationID]
		if !ok {
			// reserved under lock but absent from the snapshot: the row was
			// created after the price read, so there is no price to record.
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeConflict, "medication catalog changed during fulfillment").
				WithDetails(map[string]any{"medication_id": item.MedicationID.String()})
		}
		unit := price.UnitPrice.Round(2)
		lineTotal := unit.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		lines = append(lines, models.OrderLineItem{
			OrderID:        orderID,
			MedicationID:   item.MedicationID,
			MedicationName: price.Name,
			Quantity:       item.Quantity,
			UnitPrice:      unit,
			LineTotal:      lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total.Round(2), nil
}

func (s *service) mapTxError(ctx context.Context, prescriptionID uuid.UUID, err error) error {
	var shortage *inventory.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		s.logg.Info(s.logg.WithField(ctx, "shortages", len(shortage.Items)), "fulfillment.stock_conflict")
		return pkgerrors.Wrap(pkgerrors.CodeStockConflict, err, "insufficient stock").
			WithDetails(map[string]any{"items": shortage.Items})
	case errors.Is(err, prescriptions.ErrNotPending), db.IsUniqueViolation(err, "prescription_id"):
		return s.alreadyProcessed(ctx, prescriptionID, "")
	case db.IsBusy(err):
		s.logg.Warn(ctx, "fulfillment.busy")
		return pkgerrors.Wrap(pkgerrors.CodeBusy, err, "stock is locked by another fulfillment")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	s.logg.Error(ctx, "fulfillment.failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill prescription")
}

func (s *service) alreadyProcessed(ctx context.Context, prescriptionID uuid.UUID, status enums.PrescriptionStatus) error {
	details := map[string]any{"prescription_id": prescriptionID.String()}
	if status != "" {
		details["status"] = status.String()
	}
	if existing, err := s.orders.FindByPrescriptionID(ctx, prescriptionID); err == nil {
		details["order_id"] = existing.ID.String()
	}
	return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "prescription already processed").WithDetails(details)
}

func (s *service) emit(ctx context.Context, order models.Order, staffID uuid.UUID, levels []inventory.StockLevel) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, order.ClientID, enums.NotificationKindOrderCreated, map[string]any{
		"order_id":        order.ID.String(),
		"prescription_id": order.PrescriptionID.String(),
		"total_amount":    order.TotalAmount.StringFixed(2),
	})
	for _, level := range levels {
		if !level.CrossedThreshold {
			continue
		}
		s.notifier.Emit(ctx, staffID, enums.NotificationKindLowStock, map[string]any{
			"medication_id":     level.MedicationID.String(),
			"name":              level.Name,
			"quantity":          level.Quantity,
			"minimum_threshold": level.MinimumThreshold,
		})
	}
}

func (s *service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeError
	}
	switch typed.Code() {
	case pkgerrors.CodeStockConflict:
		return metrics.OutcomeStockConflict
	case pkgerrors.CodeAlreadyProcessed:
		return metrics.OutcomeAlreadyProcessed
	case pkgerrors.CodeBusy:
		return metrics.OutcomeBusy
	case pkgerrors.CodeValidation:
		return metrics.OutcomeInvalid
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
