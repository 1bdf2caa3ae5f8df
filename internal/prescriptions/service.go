package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pharmacy-backend/pkg/db/models"
	"github.com/angelmondragon/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

const maxReasonLength = 500

type prescriptionsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Prescription, error)
	Reject(ctx context.Context, id, staffID uuid.UUID, reason string, at time.Time) error
}

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, payload map[string]any)
}

// Service exposes staff review operations on prescriptions that do not
// create an order.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Prescription, error)
	Reject(ctx context.Context, input RejectInput) (*models.Prescription, error)
}

// RejectInput captures a staff rejection.
type RejectInput struct {
	PrescriptionID uuid.UUID
	StaffID        uuid.UUID
	Reason         string
}

type service struct {
	repo     prescriptionsRepository
	notifier notifier
	logg     *logger.Logger
}

// NewService builds the prescription service. notifier and logg may be nil.
func NewService(repo prescriptionsRepository, notifier notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("prescriptions repository required")
	}
	return &service{repo: repo, notifier: notifier, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Prescription, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prescription id is required")
	}
	prescription, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "prescription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup prescription")
	}
	return prescription, nil
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.Prescription, error) {
	if input.StaffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is too long").
			WithDetails(map[string]any{"max_length": maxReasonLength})
	}

	prescription, err := s.Get(ctx, input.PrescriptionID)
	if err != nil {
		return nil, err
	}
	if prescription.Status != enums.PrescriptionStatusPending {
		return nil, alreadyFinalized(prescription)
	}

	now := time.Now().UTC()
	if err := s.repo.Reject(ctx, prescription.ID, input.StaffID, reason, now); err != nil {
		if errors.Is(err, ErrNotPending) {
			// lost a race with fulfillment or another reviewer
			current, lookupErr := s.Get(ctx, prescription.ID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return nil, alreadyFinalized(current)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject prescription")
	}

	staff := input.StaffID
	prescription.Status = enums.PrescriptionStatusRejected
	prescription.RejectionReason = &reason
	prescription.ProcessedBy = &staff
	prescription.ProcessedAt = &now
	prescription.UpdatedAt = now

	logCtx := s.logg.WithPrescriptionID(ctx, prescription.ID.String())
	logCtx = s.logg.WithStaffID(logCtx, staff.String())
	s.logg.Info(logCtx, "prescriptions.rejected")

	if s.notifier != nil {
		s.notifier.Emit(ctx, prescription.ClientID, enums.NotificationKindPrescriptionRejected, map[string]any{
			"prescription_id": prescription.ID.String(),
			"reference_code":  prescription.ReferenceCode,
			"reason":          reason,
		})
	}
	return prescription, nil
}

func alreadyFinalized(prescription *models.Prescription) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "prescription already finalized").
		WithDetails(map[string]any{
			"prescription_id": prescription.ID.String(),
			"status":          prescription.Status.String(),
		})
}
