package stripe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimart/storefront/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_123", Env: "test"}, nil)
	assert.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
}

func TestCreateAndRetrieveIntent(t *testing.T) {
	var createdForm string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			_ = r.ParseForm()
			createdForm = r.PostForm.Encode()
			fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","amount":1550,"currency":"usd","status":"requires_payment_method","client_secret":"pi_123_secret_abc","metadata":{"user_id":"u1"}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payment_intents/pi_123":
			fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","amount":1550,"currency":"usd","status":"succeeded"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`)
		}
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123"}, nil, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	intent, err := client.CreateIntent(context.Background(), CreateIntentInput{
		Amount:   1550,
		Currency: "USD",
		Metadata: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.False(t, intent.Succeeded())
	assert.Contains(t, createdForm, "amount=1550")
	assert.Contains(t, createdForm, "currency=usd")

	got, err := client.RetrieveIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.True(t, got.Succeeded())
	assert.Equal(t, int64(1550), got.Amount)

	_, err = client.RetrieveIntent(context.Background(), "pi_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123"}, nil)
	require.NoError(t, err)
	_, err = client.CreateIntent(context.Background(), CreateIntentInput{Amount: 0, Currency: "usd"})
	assert.Error(t, err)
}

func TestIntentIDFromClientSecret(t *testing.T) {
	id, err := IntentIDFromClientSecret("pi_3Abc_secret_xyz")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Abc", id)

	for _, bad := range []string{"", "secret_only", "pm_123_secret_x", "pi_123"} {
		_, err := IntentIDFromClientSecret(bad)
		assert.Error(t, err, bad)
	}
	assert.False(t, strings.Contains(id, "secret"))
}
