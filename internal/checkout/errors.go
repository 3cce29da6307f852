package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Local precondition failures. Nothing has been submitted when these are
// returned, so the cart is always intact.
var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrAuthRequired     = errors.New("authentication required")
	ErrCheckoutInFlight = errors.New("checkout already in progress")
)

// SubmissionError wraps a network or HTTP failure from the Order API. The
// cart is left untouched and the attempt may be retried.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("order submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
