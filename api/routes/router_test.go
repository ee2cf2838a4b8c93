package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medimart/storefront/internal/auth"
	"github.com/medimart/storefront/internal/cart"
	"github.com/medimart/storefront/internal/invoices"
	"github.com/medimart/storefront/internal/medicines"
	"github.com/medimart/storefront/internal/payments"
	"github.com/medimart/storefront/internal/users"
	"github.com/medimart/storefront/pkg/auth/session"
	"github.com/medimart/storefront/pkg/config"
	"github.com/medimart/storefront/pkg/db"
	"github.com/medimart/storefront/pkg/db/models"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/metrics"
	"github.com/medimart/storefront/pkg/migrate"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/medimart/storefront/pkg/types"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memStore) NextSequence(ctx context.Context, name string, ttl time.Duration) (int64, error) {
	return m.IncrWithTTL(ctx, "seq:"+name, ttl)
}

func (m *memStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }
func (m *memStore) RateLimitKey(scope string) string        { return "rl:" + scope }
func (m *memStore) Ping(context.Context) error               { return nil }

type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (s *memSessions) Generate(_ context.Context, sessionID string, identityID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = identityID.String()
	return "refresh-" + sessionID, nil
}

func (s *memSessions) Rotate(ctx context.Context, oldSessionID, provided string) (session.Rotation, error) {
	s.mu.Lock()
	identity, ok := s.tokens[oldSessionID]
	delete(s.tokens, oldSessionID)
	s.mu.Unlock()
	if !ok || provided != "refresh-"+oldSessionID {
		return session.Rotation{}, session.ErrInvalidRefreshToken
	}
	next := session.NewSessionID()
	token, _ := s.Generate(ctx, next, uuid.MustParse(identity))
	return session.Rotation{SessionID: next, RefreshToken: token, IdentityID: uuid.MustParse(identity)}, nil
}

func (s *memSessions) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}

func (s *memSessions) HasSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[sessionID]
	return ok, nil
}

type memGateway struct {
	mu      sync.Mutex
	intents map[string]pkgstripe.Intent
}

func (g *memGateway) CreateIntent(_ context.Context, in pkgstripe.CreateIntentInput) (pkgstripe.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("pi_%d", len(g.intents)+1)
	// The test card always succeeds.
	intent := pkgstripe.Intent{ID: id, ClientSecret: id + "_secret", Amount: in.Amount, Currency: in.Currency, Status: "succeeded", Metadata: in.Metadata}
	g.intents[id] = intent
	return intent, nil
}

func (g *memGateway) RetrieveIntent(_ context.Context, id string) (pkgstripe.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents[id], nil
}

type harness struct {
	srv      *httptest.Server
	aspirin  models.Medicine
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(migrate.Models()...))

	aspirin := models.Medicine{ID: uuid.New(), Name: "Aspirin", Brand: "Bayer", Category: "Pain Relief", PriceCents: 499, IsActive: true}
	require.NoError(t, conn.Create(&aspirin).Error)

	cfg := &config.Config{
		App:      config.AppConfig{Env: "test"},
		JWT:      config.JWTConfig{Secret: "router-secret", Issuer: "medimart-identity", ExpirationMinutes: 30, RefreshTokenTTLMinutes: 60},
		Password: config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32, MinLength: 6},
		Invoice:  config.InvoiceConfig{NumberPrefix: "INV", IdempotencyTTL: time.Hour},
	}
	store := newMemStore()
	sessions := &memSessions{tokens: map[string]string{}}
	dbClient := db.FromGorm(conn)

	identitySvc, err := auth.NewService(auth.ServiceParams{
		Repo:           auth.NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	require.NoError(t, err)
	usersSvc, err := users.NewService(users.NewRepository(conn))
	require.NoError(t, err)
	catalog := medicines.NewRepository(conn)
	medicinesSvc, err := medicines.NewService(catalog)
	require.NoError(t, err)
	cartSvc, err := cart.NewService(cart.ServiceParams{Repo: cart.NewRepository(conn), Catalog: catalog, Tx: dbClient})
	require.NoError(t, err)
	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(conn),
		Gateway: &memGateway{intents: map[string]pkgstripe.Intent{}},
		Carts:   cartSvc,
	})
	require.NoError(t, err)
	invoicesSvc, err := invoices.NewService(invoices.ServiceParams{
		Repo:      invoices.NewRepository(conn),
		Payments:  paymentsSvc,
		Sequencer: store,
		Prefix:    cfg.Invoice.NumberPrefix,
	})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	handler := NewRouter(Deps{
		Config:    cfg,
		Logger:    logger.Nop(),
		DB:        dbClient,
		Store:     store,
		Sessions:  sessions,
		Metrics:   metrics.NewHTTPMetrics(registry),
		Gatherer:  registry,
		Identity:  identitySvc,
		Users:     usersSvc,
		Medicines: medicinesSvc,
		Cart:      cartSvc,
		Payments:  paymentsSvc,
		Invoices:  invoicesSvc,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, aspirin: aspirin, registry: registry}
}

type call struct {
	method         string
	path           string
	token          string
	idempotencyKey string
	body           any
}

func (h *harness) do(t *testing.T, c call) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req, err := http.NewRequest(c.method, h.srv.URL+c.path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", c.idempotencyKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestHealthAndCatalogArePublic(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/medicines?category=pain%20relief"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeData[[]types.Medicine](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Aspirin", list[0].Name)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/medicines/not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/cart"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var text bytes.Buffer
	_, _ = text.ReadFrom(resp.Body)
	assert.Contains(t, text.String(), `route="/api/v1/medicines"`)
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, call{method: http.MethodPost, path: "/identity/v1/signup", body: types.SignUpRequest{
		Email: "dana@example.com", Password: "secret123", DisplayName: "Dana",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tokens := decodeData[types.TokenResponse](t, resp)
	token := tokens.IDToken
	identityID := tokens.Principal.ID

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/users/by-identity/" + identityID, token: token})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/cart", token: token})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "cart needs a backend user")

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/users", token: token, body: types.CreateUserRequest{
		IdentityID: identityID, Username: "Dana", Email: "dana@example.com", Role: "user",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodPut, path: "/api/v1/cart", token: token, body: types.ReplaceCartRequest{
		Items: []types.CartItemInput{{ProductID: h.aspirin.ID.String(), Quantity: 2}},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stored := decodeData[types.Cart](t, resp)
	assert.Equal(t, "9.98", stored.Total.StringFixed(2))

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments/create-intent", token: token, body: types.CreateIntentRequest{AmountMinorUnits: 500, Currency: "usd"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "amount must match the stored cart")

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments/create-intent", token: token, body: types.CreateIntentRequest{AmountMinorUnits: 998, Currency: "usd"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	intent := decodeData[types.PaymentIntent](t, resp)

	record := types.RecordPaymentRequest{
		IntentID: intent.IntentID, AmountMinorUnits: 998, Currency: "usd", Method: "card", Status: "paid",
		Items: []types.PaymentItemInput{{ProductID: h.aspirin.ID.String(), Name: "Aspirin", Brand: "Bayer", Quantity: 2, UnitPrice: stored.Items[0].UnitPrice}},
	}
	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments", token: token, body: record})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "recording requires an Idempotency-Key")

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments", token: token, idempotencyKey: "pay-1", body: record})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	payment := decodeData[types.Payment](t, resp)

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments", token: token, idempotencyKey: "pay-1", body: record})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "replayed response keeps the original status")
	assert.Equal(t, payment.ID, decodeData[types.Payment](t, resp).ID)

	resp = h.do(t, call{method: http.MethodPost, path: "/api/v1/invoice", token: token, idempotencyKey: "inv-1", body: types.CreateInvoiceRequest{PaymentID: payment.ID}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invoice := decodeData[types.Invoice](t, resp)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))
	assert.True(t, strings.HasSuffix(invoice.InvoiceNumber, "-000001"))
	assert.Equal(t, "Dana", invoice.Customer.Name)
	assert.Equal(t, "9.98", invoice.Total.StringFixed(2))

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/invoice/" + invoice.ID, token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, invoice.InvoiceNumber, decodeData[types.Invoice](t, resp).InvoiceNumber)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/admin/payments", token: token})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodPost, path: "/identity/v1/logout", token: token})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, call{method: http.MethodGet, path: "/api/v1/payments", token: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "revoked sessions are rejected")
}

func TestRefreshRotatesSession(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, call{method: http.MethodPost, path: "/identity/v1/signup", body: types.SignUpRequest{
		Email: "lee@example.com", Password: "secret123", DisplayName: "Lee",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeData[types.TokenResponse](t, resp)

	resp = h.do(t, call{method: http.MethodPost, path: "/identity/v1/refresh", token: first.IDToken, body: types.RefreshRequest{RefreshToken: first.RefreshToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeData[types.TokenResponse](t, resp)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	resp = h.do(t, call{method: http.MethodPost, path: "/identity/v1/refresh", token: first.IDToken, body: types.RefreshRequest{RefreshToken: first.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "a rotated refresh token cannot be reused")

	resp = h.do(t, call{method: http.MethodGet, path: "/identity/v1/me", token: second.IDToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lee@example.com", decodeData[types.Principal](t, resp).Email)
}
