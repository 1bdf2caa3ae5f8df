package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/metrics"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockReleaser returns reserved units when an order is cancelled before it
// leaves the pharmacy.
type StockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, src inventory.Source, items []inventory.Item) ([]inventory.StockLevel, error)
}

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any)
}

// Service exposes order lifecycle operations.
type Service interface {
	Transition(ctx context.Context, input TransitionInput) (*OrderDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// ServiceParams wires the order service. Notifier, Metrics and Logger are optional.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Stock     StockReleaser
	Notifier  notifier
	Metrics   *metrics.EngineMetrics
	Logger    *logger.Logger
	TxTimeout time.Duration
}

type service struct {
	repo      Repository
	tx        txRunner
	stock     StockReleaser
	notifier  notifier
	metrics   *metrics.EngineMetrics
	logg      *logger.Logger
	txTimeout time.Duration
}

// NewService builds the order service.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		stock:     p.Stock,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
		logg:      p.Logger,
		txTimeout: p.TxTimeout,
	}, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*OrderDTO, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}

	txCtx, cancel := s.txContext(ctx)
	defer cancel()

	var result TransitionResult
	err := s.tx.WithTx(txCtx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDForUpdate(txCtx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}

		res, err := Transition(*order, input.Target, TransitionContext{
			ActorID:         input.ActorID,
			Reason:          input.Reason,
			DeliveryAgentID: input.DeliveryAgentID,
			Now:             time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		if res.ReleaseStock && len(order.Items) > 0 {
			items := make([]inventory.Item, 0, len(order.Items))
			for _, line := range order.Items {
				items = append(items, inventory.Item{MedicationID: line.MedicationID, Quantity: line.Quantity})
			}
			orderID, actorID := order.ID, input.ActorID
			if _, err := s.stock.Release(txCtx, tx, inventory.Source{OrderID: &orderID, ActorID: &actorID}, items); err != nil {
				return err
			}
		}

		if err := repo.UpdateStatus(txCtx, &res.Order, res.From); err != nil {
			if errors.Is(err, ErrStatusChanged) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
			}
			return err
		}

		from := res.From
		change := &models.OrderStatusChange{
			OrderID:    order.ID,
			FromStatus: &from,
			ToStatus:   res.Order.Status,
			ActorID:    input.ActorID,
			Reason:     reasonPtr(input.Reason),
		}
		if err := repo.RecordStatusChange(txCtx, change); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, "transition order")
	}

	s.metrics.IncTransition(result.From.String(), result.Order.Status.String())

	logCtx := s.logg.WithOrderID(ctx, result.Order.ID.String())
	logCtx = s.logg.WithStaffID(logCtx, input.ActorID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"from":          result.From.String(),
		"to":            result.Order.Status.String(),
		"stock_release": result.ReleaseStock,
	}), "orders.transitioned")

	s.emit(ctx, result)

	dto := NewOrderDTO(result.Order)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	return &OrderDetail{
		OrderDTO: NewOrderDTO(*order),
		History:  newStatusChangeDTOs(history),
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Filter.Status != nil && !params.Filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, params.Filter, params.Params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	result := &ListResult{Orders: make([]OrderDTO, 0, len(rows))}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	for _, row := range rows {
		result.Orders = append(result.Orders, NewOrderDTO(row))
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, res TransitionResult) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"order_id": res.Order.ID.String(),
		"from":     res.From.String(),
		"to":       res.Order.Status.String(),
	}
	if res.Order.CancellationReason != nil && res.Order.Status == enums.OrderStatusCancelled {
		payload["reason"] = *res.Order.CancellationReason
	}
	s.notifier.Emit(ctx, res.Order.ClientID, enums.NotificationKindOrderStatusChanged, payload)
}

func (s *service) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

func (s *service) mapError(err error, op string) error {
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		allowed := make([]string, 0, 2)
		for _, target := range AllowedTargets(invalid.From) {
			allowed = append(allowed, target.String())
		}
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, invalid.Error()).WithDetails(map[string]any{
			"from":    invalid.From.String(),
			"to":      invalid.To.String(),
			"allowed": allowed,
		})
	}
	if db.IsBusy(err) {
		return pkgerrors.Wrap(pkgerrors.CodeBusy, err, op)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func reasonPtr(reason string) *string {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
