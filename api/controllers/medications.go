package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/pharmacy-backend/api/responses"
	"github.com/angelmondragon/pharmacy-backend/api/validators"
	"github.com/angelmondragon/pharmacy-backend/internal/catalog"
	"github.com/angelmondragon/pharmacy-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/pharmacy-backend/pkg/errors"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
	"github.com/angelmondragon/pharmacy-backend/pkg/pagination"
)

type restockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type restocker interface {
	Restock(ctx context.Context, input inventory.RestockInput) (inventory.StockLevel, error)
}

// RestockMedication records received units for one medication.
func RestockMedication(svc restocker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		staffID, err := staffFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		medicationID, err := validators.ParsePathUUID(r, "medicationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body restockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		level, err := svc.Restock(r.Context(), inventory.RestockInput{
			MedicationID: medicationID,
			Quantity:     body.Quantity,
			StaffID:      staffID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, level)
	}
}

// LowStockMedications lists active medications at or below their threshold.
func LowStockMedications(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.LowStock(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
