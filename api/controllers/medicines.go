package controllers

import (
	"net/http"

	"github.com/medimart/storefront/api/responses"
	"github.com/medimart/storefront/api/validators"
	"github.com/medimart/storefront/internal/medicines"
	"github.com/medimart/storefront/pkg/logger"
)

func MedicineList(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := validators.SanitizeString(r.URL.Query().Get("category"), 80)
		list, err := svc.List(r.Context(), category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func MedicineGet(svc medicines.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "medicineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		medicine, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, medicine)
	}
}
