package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medimart/storefront/internal/medicines"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/money"
	"github.com/medimart/storefront/pkg/types"
)

const maxLineQuantity = 999

// Service manages the one server-side cart each customer has.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*types.Cart, error)
	Replace(ctx context.Context, userID uuid.UUID, items []types.CartItemInput) (*types.Cart, error)
	// TotalCents returns the stored cart total and its line count.
	TotalCents(ctx context.Context, userID uuid.UUID) (int64, int, error)
}

type ServiceParams struct {
	Repo    CartRepository
	Catalog medicines.Catalog
	Tx      txRunner
}

type service struct {
	repo    CartRepository
	catalog medicines.Catalog
	tx      txRunner
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("medicine catalog is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &service{repo: params.Repo, catalog: params.Catalog, tx: params.Tx}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*types.Cart, error) {
	record, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &types.Cart{Items: []types.CartLine{}, Total: decimal.Zero}, nil
	}

	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.MedicineID)
	}
	catalog, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}

	out := &types.Cart{Items: make([]types.CartLine, 0, len(record.Items)), Total: decimal.Zero}
	for _, item := range record.Items {
		product := types.Medicine{ID: item.MedicineID.String()}
		if m, ok := catalog[item.MedicineID]; ok {
			product = medicines.FromModel(&m)
		}
		unit := money.FromMinorUnits(item.UnitPriceCents)
		out.Items = append(out.Items, types.CartLine{Product: product, Quantity: item.Quantity, UnitPrice: unit})
		out.Total = out.Total.Add(money.LineTotal(unit, item.Quantity))
	}
	updated := record.UpdatedAt
	out.UpdatedAt = &updated
	return out, nil
}

// Replace overwrites the cart. Duplicate product ids are merged and every
// line is priced from the catalog at write time.
func (s *service) Replace(ctx context.Context, userID uuid.UUID, items []types.CartItemInput) (*types.Cart, error) {
	merged, order, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.FindByIDs(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart products")
	}
	rows := make([]models.CartItem, 0, len(order))
	for i, id := range order {
		m, ok := catalog[id]
		if !ok || !m.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
				WithDetails(map[string]any{"productId": id.String()})
		}
		rows = append(rows, models.CartItem{
			MedicineID:     id,
			Quantity:       merged[id],
			UnitPriceCents: m.PriceCents,
			Position:       i,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByUser(ctx, userID)
		if err != nil {
			if !db.IsNotFound(err) {
				return err
			}
			record, err = repo.Create(ctx, &models.CartRecord{UserID: userID})
			if err != nil {
				return err
			}
		}
		if err := repo.ReplaceItems(ctx, record.ID, rows); err != nil {
			return err
		}
		return repo.Touch(ctx, record.ID)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace cart")
	}
	return s.Get(ctx, userID)
}

func (s *service) TotalCents(ctx context.Context, userID uuid.UUID) (int64, int, error) {
	record, err := s.load(ctx, userID)
	if err != nil || record == nil {
		return 0, 0, err
	}
	var total int64
	for _, item := range record.Items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	return total, len(record.Items), nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return record, nil
}

func mergeItems(items []types.CartItemInput) (map[uuid.UUID]int, []uuid.UUID, error) {
	merged := make(map[uuid.UUID]int, len(items))
	order := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		id, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		if item.Quantity < 1 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] = min(merged[id]+item.Quantity, maxLineQuantity)
	}
	return merged, order, nil
}
