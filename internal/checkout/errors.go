package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	FailureMessage = "Something went wrong. Please try again or contact us directly."
	SuccessMessage = "We will contact you shortly to confirm your order."
	ContactPhone   = "+91 8349985566"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrSubmissionInFlight = errors.New("a submission for this session is already in flight")
)

type PriceChange struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Old  decimal.Decimal `json:"old_price"`
	New  decimal.Decimal `json:"new_price"`
}

// PriceChangedError means the catalog price moved since the items were added.
// The cart already carries the new prices; the shopper only has to confirm again.
type PriceChangedError struct {
	Changes []PriceChange
}

func (e *PriceChangedError) Error() string {
	ids := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("prices changed for %s", strings.Join(ids, ", "))
}

// UnavailableError lists cart products that are gone from the catalog or out of stock.
type UnavailableError struct {
	IDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("no longer available: %s", strings.Join(e.IDs, ", "))
}

// SubmissionError is the single user-facing failure for any remote write
// problem. The cause is kept for logs only.
type SubmissionError struct {
	Message      string
	ContactPhone string
	cause        error
}

func newSubmissionError(cause error) *SubmissionError {
	return &SubmissionError{Message: FailureMessage, ContactPhone: ContactPhone, cause: cause}
}

func (e *SubmissionError) Error() string { return "order submission failed: " + e.cause.Error() }

func (e *SubmissionError) Unwrap() error { return e.cause }
