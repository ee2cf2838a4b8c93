package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medimart/storefront/internal/storefront/checkout"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewStripeProvider("pk_test_123", pkgstripe.WithBaseURL(srv.URL), pkgstripe.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return p
}

func TestNewStripeProviderRequiresPublishableKey(t *testing.T) {
	_, err := NewStripeProvider("sk_test_123")
	assert.ErrorIs(t, err, errPublishableKey)
}

func TestTokenizeCard(t *testing.T) {
	var form map[string][]string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_methods" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pm_123","object":"payment_method","type":"card"}`)
	})

	ref, err := p.TokenizeCard(context.Background(), checkout.CardDetails{Number: "4242 4242 4242 4242", ExpMonth: 12, ExpYear: 2030, CVC: "123"})
	require.NoError(t, err)
	assert.Equal(t, "pm_123", ref)
	assert.Equal(t, "card", form["type"][0])
	assert.Equal(t, "4242424242424242", form["card[number]"][0])
	assert.Equal(t, "12", form["card[exp_month]"][0])

	_, err = p.TokenizeCard(context.Background(), checkout.CardDetails{Number: "4242", ExpMonth: 13, ExpYear: 2030, CVC: "1"})
	assert.Error(t, err)
}

func TestConfirmPaymentIntent(t *testing.T) {
	var form map[string][]string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents/pi_123/confirm" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_123","object":"payment_intent","status":"succeeded"}`)
	})

	status, err := p.ConfirmPaymentIntent(context.Background(), "pi_123_secret_abc", "pm_123")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, "pm_123", form["payment_method"][0])
	assert.Equal(t, "pi_123_secret_abc", form["client_secret"][0])

	_, err = p.ConfirmPaymentIntent(context.Background(), "garbage", "pm_123")
	assert.Error(t, err)
}

func TestConfirmPaymentIntentDeclined(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	})

	_, err := p.ConfirmPaymentIntent(context.Background(), "pi_123_secret_abc", "pm_123")
	assert.Error(t, err)
}
