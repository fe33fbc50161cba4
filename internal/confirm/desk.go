// Package confirm runs the order confirmation desk. Payment is settled over
// the phone, so every placed order lands on a call-back queue that staff work
// through oldest first.
package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ariefcatur/go-saree-storefront/internal/kafka"
	"github.com/ariefcatur/go-saree-storefront/internal/orders"
	"github.com/ariefcatur/go-saree-storefront/internal/redisx"
)

// Callback is one entry of the call-back queue.
type Callback struct {
	OrderID      string          `json:"order_id"`
	ShortID      string          `json:"short_id"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	City         string          `json:"city"`
	Items        int             `json:"items"`
	Total        decimal.Decimal `json:"total_amount"`
	PlacedAt     time.Time       `json:"placed_at"`
}

type StatusSetter interface {
	SetStatus(ctx context.Context, orderID string, s orders.Status) error
}

type Desk struct {
	Redis       *redis.Client
	Status      StatusSetter
	ServiceName string
	Log         *slog.Logger
}

// HandleOrderPlaced is installed as the order.placed consumer handler.
func (d *Desk) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m.Headers, "x-event-type"); t != "" && t != orders.EventOrderPlaced {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message, retrying cannot help
		d.log().Error("undecodable envelope, skipped", "offset", m.Offset, "error", err)
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		d.log().Error("undecodable payload, skipped", "event_id", env.EventID, "error", err)
		return nil
	}

	// keyed by order, a replayed checkout republishes under a fresh event id
	dkey := fmt.Sprintf(redisx.KeyDedup, d.ServiceName, p.OrderID+":placed")
	claimed, err := redisx.Claim(ctx, d.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if err := d.enqueue(ctx, p); err != nil {
		// give the event back so the retry is not deduped away
		_ = d.Redis.Del(context.WithoutCancel(ctx), dkey).Err()
		return err
	}
	if d.Status != nil {
		if err := d.Status.SetStatus(ctx, p.OrderID, orders.StatusPending); err != nil {
			d.log().Warn("status cache refresh failed", "order_id", p.OrderID, "error", err)
		}
	}
	d.log().Info("order queued for confirmation call", "order_id", p.OrderID, "trace_id", env.TraceID)
	return nil
}

func (d *Desk) enqueue(ctx context.Context, p orders.OrderPlacedPayload) error {
	n := 0
	for _, it := range p.Items {
		n += it.Quantity
	}
	cb := Callback{
		OrderID:      p.OrderID,
		ShortID:      p.ShortID,
		CustomerName: p.CustomerName,
		Phone:        p.CustomerPhone,
		City:         p.City,
		Items:        n,
		Total:        p.TotalAmount,
		PlacedAt:     p.PlacedAt,
	}
	return d.Redis.RPush(ctx, redisx.KeyConfirmQueue, kafkax.MustMarshal(cb)).Err()
}

// Pending lists up to limit queued call-backs, oldest first, without removing them.
func (d *Desk) Pending(ctx context.Context, limit int) ([]Callback, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := d.Redis.LRange(ctx, redisx.KeyConfirmQueue, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Callback, 0, len(raw))
	for _, s := range raw {
		var cb Callback
		if err := json.Unmarshal([]byte(s), &cb); err != nil {
			d.log().Warn("dropping unreadable call-back entry", "error", err)
			continue
		}
		out = append(out, cb)
	}
	return out, nil
}

// Done removes the order from the queue once staff have called the shopper.
func (d *Desk) Done(ctx context.Context, orderID string) error {
	raw, err := d.Redis.LRange(ctx, redisx.KeyConfirmQueue, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, s := range raw {
		var cb Callback
		if json.Unmarshal([]byte(s), &cb) == nil && cb.OrderID == orderID {
			return d.Redis.LRem(ctx, redisx.KeyConfirmQueue, 1, s).Err()
		}
	}
	return nil
}

func (d *Desk) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}
