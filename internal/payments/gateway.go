package payments

import (
	"context"
	"errors"
	"fmt"
)

// Gateway initiates collection of a fare. Settlement is asynchronous and
// notified out-of-band; Initiate only reports whether the request was
// accepted for processing.
type Gateway interface {
	// Initiate asks the provider to collect amount (smallest currency unit)
	// from phoneNumber, tagged with reference (the ride id).
	Initiate(ctx context.Context, phoneNumber string, amount int64, reference string) error
}

// ErrRejected wraps a provider-side rejection; the provider's message is
// preserved verbatim for the UI.
var ErrRejected = errors.New("payment rejected")

func rejected(msg string) error {
	return fmt.Errorf("%w: %s", ErrRejected, msg)
}
