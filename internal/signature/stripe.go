package signature

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

const StripeHeader = "Stripe-Signature"

// Stripe delegates to the SDK's timestamped v1 scheme.
type Stripe struct {
	Secret    string
	Tolerance time.Duration
}

func (s Stripe) Verify(r *http.Request, body []byte) error {
	if s.Secret == "" {
		return ErrNotConfigured
	}
	header := r.Header.Get(StripeHeader)
	if header == "" {
		return ErrMissingSignature
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = webhook.DefaultTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(body, header, s.Secret, tol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
