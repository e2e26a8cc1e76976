package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient is the card-method gateway: Initiate creates a manual-capture
// PaymentIntent for the fare; Capture finalizes it once the ride completes
// and Cancel releases the hold after a cancellation.
type StripeClient struct {
	Currency string
}

// NewStripeClient initializes the stripe client with the given API key.
func NewStripeClient(apiKey, currency string) *StripeClient {
	stripe.Key = apiKey
	if currency == "" {
		currency = "kes"
	}
	return &StripeClient{Currency: currency}
}

// Initiate holds the fare against the passenger's card. The phone number is
// unused for card payments; reference becomes the intent description so
// settlement records tie back to the ride.
func (s *StripeClient) Initiate(ctx context.Context, phoneNumber string, amount int64, reference string) error {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(s.Currency),
		Description: stripe.String("ride " + reference),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	_, err := paymentintent.New(params)
	return err
}

// Capture finalizes a previously-held PaymentIntent.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Cancel releases the hold on a PaymentIntent.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
