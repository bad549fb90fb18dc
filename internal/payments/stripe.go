package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/webhook"
)

var ErrBadSignature = errors.New("webhook signature verification failed")

type StripeProvider struct {
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, err
	}
	return fromStripeIntent(pi), nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return Intent{}, err
	}
	return fromStripeIntent(pi), nil
}

func (p *StripeProvider) Refund(ctx context.Context, intentID, reason string) (RefundReceipt, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return RefundReceipt{}, err
	}
	return RefundReceipt{ID: r.ID, Status: string(r.Status)}, nil
}

func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, ErrBadSignature
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return WebhookEvent{}, err
		}
		out.IntentID = pi.ID
	}
	return out, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) Intent {
	intent := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Metadata:     pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.ChargeID = pi.LatestCharge.ID
	}
	return intent
}

// SanitizeError maps provider errors to a client-safe message so Stripe
// internals never leak into responses.
func SanitizeError(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			return "payment was declined"
		case stripe.ErrorTypeInvalidRequest:
			return "payment request was rejected"
		}
	}
	return "payment provider unavailable"
}
