package payments

import (
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/types"
)

func FromModel(p *models.Payment) *types.Payment {
	if p == nil {
		return nil
	}
	out := &types.Payment{
		ID:               p.ID.String(),
		UserID:           p.UserID.String(),
		IntentID:         p.IntentID,
		Amount:           money.FromMinorUnits(p.AmountCents),
		AmountMinorUnits: p.AmountCents,
		Currency:         string(p.Currency),
		Method:           string(p.Method),
		Status:           string(p.Status),
		Items:            ItemsFromModel(p.Items),
		CreatedAt:        p.CreatedAt,
	}
	return out
}

func ItemsFromModel(items []models.PaymentItem) []types.PaymentItem {
	out := make([]types.PaymentItem, 0, len(items))
	for _, item := range items {
		unit := money.FromMinorUnits(item.UnitPriceCents)
		out = append(out, types.PaymentItem{
			ProductID: item.MedicineID.String(),
			Name:      item.Name,
			Brand:     item.Brand,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			LineTotal: money.LineTotal(unit, item.Quantity),
		})
	}
	return out
}
