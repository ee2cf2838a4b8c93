// Package payment is the storefront's client-side payment provider: card
// tokenization and intent confirmation with a publishable key.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medimart/storefront/internal/storefront/checkout"
	pkgstripe "github.com/medimart/storefront/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

var errPublishableKey = errors.New("payment: a Stripe publishable key (pk_...) is required")

// StripeProvider implements checkout.PaymentProvider.
type StripeProvider struct {
	api *stripe.Client
}

var _ checkout.PaymentProvider = (*StripeProvider)(nil)

func NewStripeProvider(publishableKey string, opts ...pkgstripe.Option) (*StripeProvider, error) {
	key := strings.TrimSpace(publishableKey)
	if !strings.HasPrefix(key, "pk_") {
		return nil, errPublishableKey
	}
	return &StripeProvider{api: pkgstripe.NewAPI(key, opts...)}, nil
}

// TokenizeCard exchanges raw card details for a payment method id.
func (p *StripeProvider) TokenizeCard(ctx context.Context, card checkout.CardDetails) (string, error) {
	number := strings.ReplaceAll(strings.TrimSpace(card.Number), " ", "")
	if number == "" || card.ExpMonth < 1 || card.ExpMonth > 12 || card.ExpYear <= 0 || strings.TrimSpace(card.CVC) == "" {
		return "", errors.New("payment: incomplete card details")
	}

	pm, err := p.api.V1PaymentMethods.Create(ctx, &stripe.PaymentMethodCreateParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCreateCardParams{
			Number:   stripe.String(number),
			ExpMonth: stripe.Int64(int64(card.ExpMonth)),
			ExpYear:  stripe.Int64(int64(card.ExpYear)),
			CVC:      stripe.String(strings.TrimSpace(card.CVC)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("payment: tokenize card: %w", err)
	}
	return pm.ID, nil
}

// ConfirmPaymentIntent confirms the intent behind clientSecret with the
// given payment method and returns the resulting intent status.
func (p *StripeProvider) ConfirmPaymentIntent(ctx context.Context, clientSecret, paymentMethodRef string) (string, error) {
	intentID, err := pkgstripe.IntentIDFromClientSecret(clientSecret)
	if err != nil {
		return "", fmt.Errorf("payment: %w", err)
	}
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodRef),
	}
	params.AddExtra("client_secret", clientSecret)

	pi, err := p.api.V1PaymentIntents.Confirm(ctx, intentID, params)
	if err != nil {
		return "", fmt.Errorf("payment: confirm intent: %w", err)
	}
	return string(pi.Status), nil
}
