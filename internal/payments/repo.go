package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/pagination"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the payment and its items in one transaction.
func (r *Repository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	for i := range payment.Items {
		if payment.Items[i].ID == uuid.Nil {
			payment.Items[i].ID = uuid.New()
		}
		payment.Items[i].PaymentID = payment.ID
	}
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Preload("Items").First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Preload("Items").Where("intent_id = ?", intentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns the user's payments, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

// ListAll pages through every payment, newest first. It fetches one extra
// row so callers can tell whether another page exists.
func (r *Repository) ListAll(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Payment, error) {
	q := r.db.WithContext(ctx).Preload("Items")
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var out []models.Payment
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
