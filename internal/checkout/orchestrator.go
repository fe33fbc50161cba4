package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/ariefcatur/go-saree-storefront/internal/cart"
	"github.com/ariefcatur/go-saree-storefront/internal/catalog"
	"github.com/ariefcatur/go-saree-storefront/internal/orders"
)

type CatalogReader interface {
	Prices(ctx context.Context, ids []string) (map[string]catalog.PriceInfo, error)
}

type OrderWriter interface {
	CreateWithItems(ctx context.Context, n orders.NewOrder) (orders.Order, error)
}

type EventPublisher interface {
	OrderPlaced(ctx context.Context, o orders.Order, traceID string) error
}

type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, s orders.Status) error
}

type Deps struct {
	Sessions *cart.Sessions
	Catalog  CatalogReader
	Orders   OrderWriter
	Events   EventPublisher // optional
	Status   StatusCache    // optional
	Phases   *Tracker       // optional, a private tracker is used when nil
	Log      *slog.Logger
}

type Options struct {
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Request struct {
	SessionID string
	UserID    *string
	Form      Form
	TraceID   string
	// IdempotencyKey is optional; without it the cart's checkout key is used,
	// so resubmitting an unchanged cart never writes a second order.
	IdempotencyKey string
}

type Receipt struct {
	OrderID  string          `json:"order_id"`
	ShortID  string          `json:"short_id"`
	Total    decimal.Decimal `json:"total_amount"`
	Status   orders.Status   `json:"status"`
	Message  string          `json:"message"`
	Redirect string          `json:"redirect"`
}

// Orchestrator turns a session's cart plus a checkout form into a durable order.
type Orchestrator struct {
	sessions *cart.Sessions
	catalog  CatalogReader
	orders   OrderWriter
	events   EventPublisher
	status   StatusCache
	phases   *Tracker
	breaker  *gobreaker.CircuitBreaker[orders.Order]
	timeout  time.Duration
	log      *slog.Logger
}

func NewOrchestrator(d Deps, opts Options) *Orchestrator {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Phases == nil {
		d.Phases = NewTracker()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	failures := opts.BreakerFailures
	log := d.Log.With("component", "checkout")
	cb := gobreaker.NewCircuitBreaker[orders.Order](gobreaker.Settings{
		Name:        "order-writer",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// a shopper leaving or a malformed order says nothing about the database
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || orders.Invalid(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Orchestrator{
		sessions: d.Sessions,
		catalog:  d.Catalog,
		orders:   d.Orders,
		events:   d.Events,
		status:   d.Status,
		phases:   d.Phases,
		breaker:  cb,
		timeout:  opts.Timeout,
		log:      log,
	}
}

func (o *Orchestrator) Phases() *Tracker { return o.phases }

// Submit validates the form, revalidates the cart against the catalog and
// writes the order with its items in one transaction. The cart is cleared only
// after the write succeeded; every failure leaves it as it was.
//
// Errors: *ValidationError, ErrEmptyCart, ErrSubmissionInFlight,
// *PriceChangedError, *UnavailableError, *SubmissionError.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Receipt, error) {
	form, err := Validate(req.Form)
	if err != nil {
		return Receipt{}, err
	}

	store := o.sessions.Get(ctx, req.SessionID)
	snap, cartKey := store.CheckoutSnapshot()
	if snap.Empty() {
		return Receipt{}, ErrEmptyCart
	}

	if err := o.phases.Begin(req.SessionID); err != nil {
		return Receipt{}, err
	}
	succeeded := false
	defer func() { o.phases.Finish(req.SessionID, succeeded) }()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	log := o.log.With("session_id", req.SessionID, "trace_id", req.TraceID)

	if err := o.revalidate(ctx, store, snap); err != nil {
		var serr *SubmissionError
		if errors.As(err, &serr) {
			log.Error("catalog revalidation failed", "error", err)
		}
		return Receipt{}, err
	}

	n := newOrder(req.UserID, form, snap)
	n.ExternalID = req.SessionID + ":" + cartKey
	if req.IdempotencyKey != "" {
		n.ExternalID = req.SessionID + ":" + req.IdempotencyKey
	}
	order, err := o.breaker.Execute(func() (orders.Order, error) {
		return o.orders.CreateWithItems(ctx, n)
	})
	if err != nil {
		log.Error("order write failed", "items", len(n.Items), "total", n.TotalAmount.String(), "error", err)
		return Receipt{}, newSubmissionError(err)
	}
	succeeded = true
	store.Clear(ctx)

	log = log.With("order_id", order.ID)
	log.Info("order placed", "items", len(order.Items), "total", order.TotalAmount.String())
	o.afterPlaced(ctx, log, order, req.TraceID)

	return Receipt{
		OrderID:  order.ID,
		ShortID:  orders.ShortID(order.ID),
		Total:    order.TotalAmount,
		Status:   order.Status,
		Message:  SuccessMessage,
		Redirect: "/orders/" + order.ID,
	}, nil
}

// revalidate checks every line against the catalog. Changed prices are
// written back to the cart before the shopper is asked to confirm again.
func (o *Orchestrator) revalidate(ctx context.Context, store *cart.Store, snap cart.Snapshot) error {
	current, err := o.catalog.Prices(ctx, snap.IDs())
	if err != nil {
		return newSubmissionError(err)
	}

	var missing []string
	var changes []PriceChange
	for _, it := range snap.Items {
		info, ok := current[it.ID]
		if !ok || !info.InStock {
			missing = append(missing, it.ID)
			continue
		}
		if !info.Price.Equal(it.Price) {
			changes = append(changes, PriceChange{ID: it.ID, Name: it.Name, Old: it.Price, New: info.Price})
		}
	}
	if len(missing) > 0 {
		return &UnavailableError{IDs: missing}
	}
	if len(changes) > 0 {
		for _, c := range changes {
			store.Reprice(ctx, c.ID, c.New)
		}
		return &PriceChangedError{Changes: changes}
	}
	return nil
}

// afterPlaced runs the best-effort follow-ups. The order is already durable,
// so failures here are logged and never reported to the shopper.
func (o *Orchestrator) afterPlaced(ctx context.Context, log *slog.Logger, order orders.Order, traceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if o.events != nil {
		if err := o.events.OrderPlaced(ctx, order, traceID); err != nil {
			log.Warn("publish order placed failed", "error", err)
		}
	}
	if o.status != nil {
		if err := o.status.SetStatus(ctx, order.ID, order.Status); err != nil {
			log.Warn("cache order status failed", "error", err)
		}
	}
}

func newOrder(userID *string, f Form, snap cart.Snapshot) orders.NewOrder {
	items := make([]orders.NewItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, orders.NewItem{
			ProductID:   it.ID,
			ProductName: it.Name,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return orders.NewOrder{
		UserID:          userID,
		CustomerName:    f.Name,
		CustomerPhone:   f.Phone,
		CustomerEmail:   optional(f.Email),
		ShippingAddress: f.Address,
		City:            f.City,
		State:           f.State,
		Pincode:         f.Pincode,
		Notes:           optional(f.Notes),
		TotalAmount:     snap.TotalAmount,
		Items:           items,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
