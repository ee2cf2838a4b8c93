package medicines

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

// ListActive returns active medicines ordered by name, optionally narrowed to
// one category.
func (r *Repository) ListActive(ctx context.Context, category string) ([]models.Medicine, error) {
	q := r.DB(ctx).Where("is_active = ?", true)
	if category != "" {
		q = q.Where("LOWER(category) = LOWER(?)", category)
	}
	var out []models.Medicine
	if err := q.Order("name ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error) {
	return repo.FindOne[models.Medicine](r.DB(ctx), "id = ?", id)
}

// FindByIDs loads the requested medicines keyed by id; missing ids are
// simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Medicine, error) {
	out := make(map[uuid.UUID]models.Medicine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Medicine
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}
