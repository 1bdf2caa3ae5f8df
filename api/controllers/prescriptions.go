package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacy-backend/api/middleware"
	"github.com/angelmondragon/pharmacy-backend/api/responses"
	"github.com/angelmondragon/pharmacy-backend/api/validators"
	"github.com/angelmondragon/pharmacy-backend/internal/fulfillment"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	"github.com/angelmondragon/pharmacy-backend/internal/prescriptions"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

type fulfillItem struct {
	MedicationID string `json:"medication_id" validate:"required,uuid"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
}

type fulfillRequest struct {
	Items []fulfillItem `json:"items" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// FulfillPrescription turns a pending prescription into an order.
func FulfillPrescription(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		staffID, err := staffFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prescriptionID, err := validators.ParsePathUUID(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body fulfillRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]inventory.Item, 0, len(body.Items))
		for _, item := range body.Items {
			medicationID, err := uuid.Parse(item.MedicationID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid medication id"))
				return
			}
			items = append(items, inventory.Item{MedicationID: medicationID, Quantity: item.Quantity})
		}

		ctx := logg.WithPrescriptionID(r.Context(), prescriptionID.String())
		order, err := svc.ProcessWithRetry(ctx, fulfillment.Request{
			PrescriptionID: prescriptionID,
			Items:          items,
			StaffID:        staffID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// RejectPrescription finalizes a pending prescription without an order.
func RejectPrescription(svc prescriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prescriptions service unavailable"))
			return
		}

		staffID, err := staffFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prescriptionID, err := validators.ParsePathUUID(r, "prescriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		prescription, err := svc.Reject(r.Context(), prescriptions.RejectInput{
			PrescriptionID: prescriptionID,
			StaffID:        staffID,
			Reason:         body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prescription)
	}
}

func staffFromRequest(r *http.Request) (uuid.UUID, error) {
	staffID, ok := middleware.StaffIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff context missing")
	}
	return staffID, nil
}
