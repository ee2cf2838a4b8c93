package medicines

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/types"
)

// Service exposes the public catalog.
type Service interface {
	List(ctx context.Context, category string) ([]types.Medicine, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Medicine, error)
}

// Catalog is the lookup the cart service prices lines against.
type Catalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Medicine, error)
}

type repository interface {
	Catalog
	ListActive(ctx context.Context, category string) ([]models.Medicine, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Medicine, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("medicines repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, category string) ([]types.Medicine, error) {
	rows, err := s.repo.ListActive(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list medicines")
	}
	out := make([]types.Medicine, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*types.Medicine, error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load medicine")
	}
	if !m.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "medicine not found")
	}
	out := FromModel(m)
	return &out, nil
}
