package invoices

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimart/storefront/internal/repo"
	"github.com/medimart/storefront/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	return r.DB(ctx).Omit("Payment", "User").Create(inv).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Invoice, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

// ListByUser returns the user's invoices, most recently issued first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	var out []models.Invoice
	err := r.preloaded(ctx).
		Where("user_id = ?", userID).
		Order("issued_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.Invoice, error) {
	return repo.FindOne[models.Invoice](r.preloaded(ctx), query, arg)
}

func (r *Repository) preloaded(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Preload("Payment.Items").Preload("User")
}
