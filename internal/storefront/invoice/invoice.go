// Package invoice fetches and presents invoices and order history.
package invoice

import (
	"context"
	"errors"
	"strings"

	"github.com/medimart/storefront/pkg/types"
)

type API interface {
	GetInvoice(ctx context.Context, token, id string) (*types.Invoice, error)
	ListInvoices(ctx context.Context, token string) ([]types.Invoice, error)
	ListPayments(ctx context.Context, token string) ([]types.Payment, error)
	ListAllPayments(ctx context.Context, token string) ([]types.Payment, error)
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Service struct {
	api    API
	tokens TokenSource
}

func NewService(api API, tokens TokenSource) *Service {
	return &Service{api: api, tokens: tokens}
}

func (s *Service) Fetch(ctx context.Context, id string) (*types.Invoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("invoice: id is required")
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.GetInvoice(ctx, token, id)
}

// Orders lists the caller's invoices, newest first.
func (s *Service) Orders(ctx context.Context) ([]types.Invoice, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.ListInvoices(ctx, token)
}

// Payments lists the caller's payments; all=true is the admin view.
func (s *Service) Payments(ctx context.Context, all bool) ([]types.Payment, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if all {
		return s.api.ListAllPayments(ctx, token)
	}
	return s.api.ListPayments(ctx, token)
}
