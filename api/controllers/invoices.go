package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/medimart/storefront/api/responses"
	"github.com/medimart/storefront/api/validators"
	"github.com/medimart/storefront/internal/invoices"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
)

// InvoiceCreate issues the invoice for a recorded payment. Repeating the call
// for the same payment returns the original with 200.
func InvoiceCreate(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req types.CreateInvoiceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuid.Parse(req.PaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}
		issued, err := svc.Create(r.Context(), userID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if issued.Created {
			responses.WriteCreated(w, invoices.FromModel(issued.Invoice))
			return
		}
		responses.WriteSuccess(w, invoices.FromModel(issued.Invoice))
	}
}

func InvoiceGet(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		inv, err := svc.Get(r.Context(), invoices.Viewer{UserID: userID, Role: currentRole(r)}, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoices.FromModel(inv))
	}
}

func InvoiceList(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]types.Invoice, 0, len(rows))
		for i := range rows {
			out = append(out, *invoices.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
