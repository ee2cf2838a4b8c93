// Package backend is the storefront's REST client for the MediMart API.
package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/medimart/storefront/internal/storefront/transport"
	"github.com/medimart/storefront/pkg/types"
)

const apiPrefix = "/api/v1"

type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("backend: base url is required")
	}
	c := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: transport.DefaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) GetUserByIdentity(ctx context.Context, token, identityID string) (*types.User, error) {
	var out types.User
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "users", "by-identity", url.PathEscape(identityID)); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser returns a conflict error when the identity already has a record.
func (c *Client) CreateUser(ctx context.Context, token string, req types.CreateUserRequest) (*types.User, error) {
	var out types.User
	if err := c.do(ctx, http.MethodPost, token, "", req, &out, "users"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetCart(ctx context.Context, token string) (*types.Cart, error) {
	var out types.Cart
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "cart"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplaceCart overwrites the server cart with items.
func (c *Client) ReplaceCart(ctx context.Context, token string, items []types.CartItemInput) (*types.Cart, error) {
	if items == nil {
		items = []types.CartItemInput{}
	}
	var out types.Cart
	if err := c.do(ctx, http.MethodPut, token, "", types.ReplaceCartRequest{Items: items}, &out, "cart"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMedicines(ctx context.Context, category string) ([]types.Medicine, error) {
	path := "medicines"
	if category = strings.TrimSpace(category); category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out []types.Medicine
	if err := c.do(ctx, http.MethodGet, "", "", nil, &out, path); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMedicine(ctx context.Context, id string) (*types.Medicine, error) {
	var out types.Medicine
	if err := c.do(ctx, http.MethodGet, "", "", nil, &out, "medicines", url.PathEscape(id)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, token string, req types.CreateIntentRequest) (*types.PaymentIntent, error) {
	var out types.PaymentIntent
	if err := c.do(ctx, http.MethodPost, token, "", req, &out, "payments", "create-intent"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RecordPayment(ctx context.Context, token, idempotencyKey string, req types.RecordPaymentRequest) (*types.Payment, error) {
	var out types.Payment
	if err := c.do(ctx, http.MethodPost, token, idempotencyKey, req, &out, "payments"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPayments(ctx context.Context, token string) ([]types.Payment, error) {
	var out []types.Payment
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "payments"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAllPayments is the admin view across every customer.
// TODO: follow X-Next-Cursor; this returns the first page only.
func (c *Client) ListAllPayments(ctx context.Context, token string) ([]types.Payment, error) {
	var out []types.Payment
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "admin", "payments"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateInvoice(ctx context.Context, token, idempotencyKey string, req types.CreateInvoiceRequest) (*types.Invoice, error) {
	var out types.Invoice
	if err := c.do(ctx, http.MethodPost, token, idempotencyKey, req, &out, "invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetInvoice(ctx context.Context, token, id string) (*types.Invoice, error) {
	var out types.Invoice
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "invoice", url.PathEscape(id)); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInvoices(ctx context.Context, token string) ([]types.Invoice, error) {
	var out []types.Invoice
	if err := c.do(ctx, http.MethodGet, token, "", nil, &out, "invoice"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, token, idempotencyKey string, body, out any, path ...string) error {
	parts := append([]string{apiPrefix}, path...)
	return transport.Do(ctx, c.httpClient, transport.Request{
		Method:         method,
		URL:            transport.JoinURL(c.baseURL, parts...),
		Token:          token,
		IdempotencyKey: idempotencyKey,
		Body:           body,
	}, out)
}
