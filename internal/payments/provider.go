package payments

import "context"

const (
	StatusSucceeded = "succeeded"

	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
	ChargeID     string
}

type RefundReceipt struct {
	ID     string
	Status string
}

// WebhookEvent is an authenticated provider event.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
}

// Provider abstracts the external payment service so booking logic stays
// testable without network access.
type Provider interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
	Refund(ctx context.Context, intentID, reason string) (RefundReceipt, error)
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}
