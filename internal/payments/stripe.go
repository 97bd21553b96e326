package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Gateway funds the fare lifecycle: a hold when a driver accepts, capture on
// completion, release on cancellation. Holds are best effort and never block
// the ride state machine.
type Gateway interface {
	Hold(ctx context.Context, amountCents int64, currency, riderID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID string) error
}

// StripeClient implements Gateway with manual-capture PaymentIntents.
type StripeClient struct{}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient() *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeClient{}
}

func (s *StripeClient) Hold(ctx context.Context, amountCents int64, currency, riderID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
	}
	if riderID != "" {
		params.Customer = stripe.String(riderID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeClient) Capture(ctx context.Context, holdID string) error {
	_, err := paymentintent.Capture(holdID, nil)
	return err
}

func (s *StripeClient) Release(ctx context.Context, holdID string) error {
	_, err := paymentintent.Cancel(holdID, nil)
	return err
}

// Nop is the gateway used when no Stripe key is configured.
type Nop struct{}

func (Nop) Hold(context.Context, int64, string, string) (string, error) { return "", nil }
func (Nop) Capture(context.Context, string) error                       { return nil }
func (Nop) Release(context.Context, string) error                       { return nil }
