package invoices

import (
	"github.com/medimart/storefront/internal/payments"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/types"
)

// FromModel expects Payment.Items and User to be preloaded.
func FromModel(inv *models.Invoice) *types.Invoice {
	if inv == nil {
		return nil
	}
	out := &types.Invoice{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		PaymentID:     inv.PaymentID.String(),
		Status:        string(inv.Status),
		Currency:      string(inv.Currency),
		Total:         money.FromMinorUnits(inv.TotalCents),
		IssuedAt:      inv.IssuedAt,
		Items:         []types.PaymentItem{},
	}
	if inv.Payment != nil {
		out.IntentID = inv.Payment.IntentID
		out.Items = payments.ItemsFromModel(inv.Payment.Items)
	}
	if inv.User != nil {
		out.Customer = types.InvoiceCustomer{Name: inv.User.Username, Email: inv.User.Email}
	}
	return out
}
