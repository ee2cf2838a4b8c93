package medicines

import (
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/types"
)

func FromModel(m *models.Medicine) types.Medicine {
	out := types.Medicine{
		ID:       m.ID.String(),
		Name:     m.Name,
		Brand:    m.Brand,
		Category: m.Category,
		Tags:     append([]string(nil), m.Tags...),
		Price:    money.FromMinorUnits(m.PriceCents),
	}
	if m.Description != nil {
		out.Description = *m.Description
	}
	if m.ImageURL != nil {
		out.ImageURL = *m.ImageURL
	}
	return out
}
