package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RestockInput captures units received for one medication.
type RestockInput struct {
	MedicationID uuid.UUID
	Quantity     int
	StaffID      uuid.UUID
}

// Service runs standalone ledger operations in their own transaction.
type Service struct {
	tx        txRunner
	ledger    *Ledger
	logg      *logger.Logger
	txTimeout time.Duration
}

func NewService(tx txRunner, ledger *Ledger, logg *logger.Logger, txTimeout time.Duration) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	return &Service{tx: tx, ledger: ledger, logg: logg, txTimeout: txTimeout}, nil
}

func (s *Service) Restock(ctx context.Context, input RestockInput) (StockLevel, error) {
	if input.StaffID == uuid.Nil {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if input.MedicationID == uuid.Nil {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "medication id is required")
	}

	txCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.txTimeout > 0 {
		txCtx, cancel = context.WithTimeout(ctx, s.txTimeout)
	}
	defer cancel()

	var level StockLevel
	err := s.tx.WithTx(txCtx, func(tx *gorm.DB) error {
		var err error
		level, err = s.ledger.Restock(txCtx, tx, input.StaffID, input.MedicationID, input.Quantity)
		return err
	})
	if err != nil {
		if db.IsBusy(err) {
			return StockLevel{}, pkgerrors.Wrap(pkgerrors.CodeBusy, err, "restock medication")
		}
		if typed := pkgerrors.As(err); typed != nil {
			return StockLevel{}, typed
		}
		return StockLevel{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock medication")
	}
	return level, nil
}
