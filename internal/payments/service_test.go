package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/pagination"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/medimart/storefront/pkg/types"
)

type stubGateway struct {
	intents  map[string]pkgstripe.Intent
	created  []pkgstripe.CreateIntentInput
	retrieve int
}

func (g *stubGateway) CreateIntent(_ context.Context, in pkgstripe.CreateIntentInput) (pkgstripe.Intent, error) {
	g.created = append(g.created, in)
	id := fmt.Sprintf("pi_%d", len(g.created))
	intent := pkgstripe.Intent{ID: id, ClientSecret: id + "_secret_x", Amount: in.Amount, Currency: in.Currency, Status: "requires_payment_method", Metadata: in.Metadata}
	g.intents[id] = intent
	return intent, nil
}

func (g *stubGateway) RetrieveIntent(_ context.Context, id string) (pkgstripe.Intent, error) {
	g.retrieve++
	intent, ok := g.intents[id]
	if !ok {
		return pkgstripe.Intent{}, fmt.Errorf("no such intent %s", id)
	}
	return intent, nil
}

func (g *stubGateway) succeed(id string) {
	intent := g.intents[id]
	intent.Status = "succeeded"
	g.intents[id] = intent
}

type stubCarts struct {
	total int64
	lines int
}

func (c stubCarts) TotalCents(context.Context, uuid.UUID) (int64, int, error) {
	return c.total, c.lines, nil
}

func newTestService(t *testing.T, carts stubCarts) (Service, *stubGateway) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Payment{}, &models.PaymentItem{}))

	gateway := &stubGateway{intents: map[string]pkgstripe.Intent{}}
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Gateway: gateway, Carts: carts})
	require.NoError(t, err)
	return svc, gateway
}

func recordRequest(intentID string) types.RecordPaymentRequest {
	return types.RecordPaymentRequest{
		IntentID:         intentID,
		AmountMinorUnits: 998,
		Currency:         "usd",
		Method:           "card",
		Status:           "paid",
		Items: []types.PaymentItemInput{{
			ProductID: uuid.NewString(),
			Name:      "Aspirin",
			Brand:     "Bayer",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("4.99"),
		}},
	}
}

func TestCreateIntentChecksStoredCartTotal(t *testing.T) {
	svc, gateway := newTestService(t, stubCarts{total: 998, lines: 1})
	userID := uuid.New()

	_, err := svc.CreateIntent(context.Background(), userID, types.CreateIntentRequest{AmountMinorUnits: 500, Currency: "usd"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	assert.Empty(t, gateway.created)

	intent, err := svc.CreateIntent(context.Background(), userID, types.CreateIntentRequest{AmountMinorUnits: 998, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret_x", intent.ClientSecret)
	assert.Equal(t, userID.String(), gateway.created[0].Metadata[metadataUserID])
}

func TestCreateIntentAllowsAnyPositiveAmountWithoutStoredCart(t *testing.T) {
	svc, _ := newTestService(t, stubCarts{})
	_, err := svc.CreateIntent(context.Background(), uuid.New(), types.CreateIntentRequest{AmountMinorUnits: 1234, Currency: "usd"})
	require.NoError(t, err)

	_, err = svc.CreateIntent(context.Background(), uuid.New(), types.CreateIntentRequest{AmountMinorUnits: 0, Currency: "usd"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordRequiresSucceededIntentAndIsIdempotent(t *testing.T) {
	svc, gateway := newTestService(t, stubCarts{})
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.CreateIntent(ctx, userID, types.CreateIntentRequest{AmountMinorUnits: 998, Currency: "usd"})
	require.NoError(t, err)

	_, _, err = svc.Record(ctx, userID, recordRequest(intent.IntentID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePayment), "unconfirmed intents are rejected, got %v", err)

	gateway.succeed(intent.IntentID)
	first, created, err := svc.Record(ctx, userID, recordRequest(intent.IntentID))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "9.98", first.Amount.StringFixed(2))
	require.Len(t, first.Items, 1)
	assert.Equal(t, "9.98", first.Items[0].LineTotal.StringFixed(2))

	calls := gateway.retrieve
	second, created, err := svc.Record(ctx, userID, recordRequest(intent.IntentID))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, calls, gateway.retrieve, "a repeated intent does not hit the provider")

	_, _, err = svc.Record(ctx, uuid.New(), recordRequest(intent.IntentID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestRecordRejectsMismatchedAmounts(t *testing.T) {
	svc, gateway := newTestService(t, stubCarts{})
	ctx := context.Background()
	userID := uuid.New()

	intent, err := svc.CreateIntent(ctx, userID, types.CreateIntentRequest{AmountMinorUnits: 500, Currency: "usd"})
	require.NoError(t, err)
	gateway.succeed(intent.IntentID)

	_, _, err = svc.Record(ctx, userID, recordRequest(intent.IntentID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePayment), "got %v", err)

	req := recordRequest(intent.IntentID)
	req.AmountMinorUnits = 500
	_, _, err = svc.Record(ctx, userID, req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "items must add up, got %v", err)
}

func TestListAllPaginates(t *testing.T) {
	svc, gateway := newTestService(t, stubCarts{})
	ctx := context.Background()
	userID := uuid.New()

	for range 3 {
		intent, err := svc.CreateIntent(ctx, userID, types.CreateIntentRequest{AmountMinorUnits: 998, Currency: "usd"})
		require.NoError(t, err)
		gateway.succeed(intent.IntentID)
		_, _, err = svc.Record(ctx, userID, recordRequest(intent.IntentID))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	page, next, err := svc.ListAll(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "pi_3", page[0].IntentID)

	rest, next, err := svc.ListAll(ctx, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Empty(t, next)
	assert.Equal(t, "pi_1", rest[0].IntentID)

	mine, err := svc.ListForUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}
