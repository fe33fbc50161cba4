package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	UserID          *string         `json:"user_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	CustomerEmail   *string         `json:"customer_email"`
	ShippingAddress string          `json:"shipping_address"`
	City            string          `json:"city"`
	State           string          `json:"state"`
	Pincode         string          `json:"pincode"`
	Notes           *string         `json:"notes"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// NewOrder is what checkout hands to the repo. Optional contact fields are nil
// when the shopper left them blank. ExternalID makes the write idempotent: a
// second order with the same key returns the first one.
type NewOrder struct {
	ExternalID      string
	UserID          *string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   *string
	ShippingAddress string
	City            string
	State           string
	Pincode         string
	Notes           *string
	TotalAmount     decimal.Decimal
	Items           []NewItem
}

type NewItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

var (
	ErrNoItems       = errors.New("order has no items")
	ErrTotalMismatch = errors.New("order total does not match its items")
	ErrInvalidItem   = errors.New("invalid order item")
)

// Invalid reports whether err is a data error that no retry can fix.
func Invalid(err error) bool {
	return errors.Is(err, ErrNoItems) || errors.Is(err, ErrTotalMismatch) || errors.Is(err, ErrInvalidItem)
}

func (n NewOrder) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range n.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Check enforces the creation invariants: at least one line, every line
// positive, and sum(quantity*price) == TotalAmount.
func (n NewOrder) Check() error {
	if len(n.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range n.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrInvalidItem)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: quantity for product %s", ErrInvalidItem, it.ProductID)
		}
		if !it.Price.IsPositive() {
			return fmt.Errorf("%w: price for product %s", ErrInvalidItem, it.ProductID)
		}
	}
	if got := n.ItemsTotal(); !got.Equal(n.TotalAmount) {
		return fmt.Errorf("%w: items %s, total %s", ErrTotalMismatch, got, n.TotalAmount)
	}
	return nil
}

// ShortID is the human reference shown to shoppers, e.g. "1A2B3C4D".
func ShortID(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}
