package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

var (
	ErrNotFound          = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal status transition")
)

const orderColumns = `id, user_id, customer_name, customer_phone, customer_email, shipping_address,
	city, state, pincode, notes, total_amount, status, created_at`

// CreateWithItems writes the order row and all of its item rows in one
// transaction. The stored item rows are summed again before commit, so either
// a consistent order becomes visible or nothing does.
//
// When n.ExternalID was already used the existing order is returned instead
// of a second one, which makes a resubmit after an ambiguous commit safe.
func (r *Repo) CreateWithItems(ctx context.Context, n NewOrder) (Order, error) {
	if err := n.Check(); err != nil {
		return Order{}, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		ID:              uuid.NewString(),
		UserID:          n.UserID,
		CustomerName:    n.CustomerName,
		CustomerPhone:   n.CustomerPhone,
		CustomerEmail:   n.CustomerEmail,
		ShippingAddress: n.ShippingAddress,
		City:            n.City,
		State:           n.State,
		Pincode:         n.Pincode,
		Notes:           n.Notes,
		TotalAmount:     n.TotalAmount,
		Status:          StatusPending,
	}
	var externalID *string
	if n.ExternalID != "" {
		externalID = &n.ExternalID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, user_id, customer_name, customer_phone, customer_email,
		                   shipping_address, city, state, pincode, notes, total_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING created_at`,
		o.ID, externalID, o.UserID, o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.ShippingAddress,
		o.City, o.State, o.Pincode, o.Notes, o.TotalAmount, string(o.Status),
	).Scan(&o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// idempotent replay
		_ = tx.Rollback(ctx)
		return r.getByExternalID(ctx, n.ExternalID)
	}
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range n.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.Price)
	}
	br := tx.SendBatch(ctx, batch)
	o.Items = make([]OrderItem, 0, len(n.Items))
	for _, it := range n.Items {
		item := OrderItem{
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
		if err := br.QueryRow().Scan(&item.ID); err != nil {
			_ = br.Close()
			return Order{}, fmt.Errorf("insert order item %s: %w", it.ProductID, err)
		}
		o.Items = append(o.Items, item)
	}
	if err := br.Close(); err != nil {
		return Order{}, fmt.Errorf("insert order items: %w", err)
	}

	var stored decimal.Decimal
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity * price), 0) FROM order_items WHERE order_id=$1`, o.ID,
	).Scan(&stored); err != nil {
		return Order{}, fmt.Errorf("sum order items: %w", err)
	}
	if !stored.Equal(o.TotalAmount) {
		return Order{}, fmt.Errorf("%w: stored %s, total %s", ErrTotalMismatch, stored, o.TotalAmount)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit: %w", err)
	}
	return o, nil
}

// ListByUser returns the user's orders newest first, items included.
func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Order{}, nil
	}

	ids := make([]string, 0, len(out))
	byID := make(map[string]int, len(out))
	for i, o := range out {
		ids = append(ids, o.ID)
		byID[o.ID] = i
	}
	items, err := r.items(ctx, `order_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		i := byID[it.OrderID]
		out[i].Items = append(out[i].Items, it)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return Order{}, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.items(ctx, `order_id = $1`, id)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) getByExternalID(ctx context.Context, externalID string) (Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID)
	if err != nil {
		return Order{}, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return Order{}, fmt.Errorf("load order by external id: %w", err)
	}
	o.Items, err = r.items(ctx, `order_id = $1`, o.ID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// UpdateStatus moves the order along the status graph and returns the status
// it left.
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status) (from Status, err error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	from = Status(cur)
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, id, string(to)); err != nil {
		return from, err
	}
	return from, tx.Commit(ctx)
}

func (r *Repo) items(ctx context.Context, where string, arg any) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items WHERE `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderItem, error) {
		var it OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price)
		return it, err
	})
}

func scanOrder(row pgx.CollectableRow) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.ShippingAddress, &o.City, &o.State, &o.Pincode, &o.Notes, &o.TotalAmount, &status, &o.CreatedAt)
	o.Status = Status(status)
	return o, err
}
