package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Fabric      *string         `json:"fabric"`
	Color       *string         `json:"color"`
	ImageURL    *string         `json:"image_url"`
	InStock     bool            `json:"in_stock"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PriceInfo is what checkout needs to revalidate a cart line.
type PriceInfo struct {
	Name    string
	Price   decimal.Decimal
	InStock bool
}

type Filter struct {
	Category string // empty means every category
}

type Repo struct{ DB *pgxpool.Pool }

// List returns the products on sale, newest first.
func (r *Repo) List(ctx context.Context, f Filter) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, price, category, fabric, color, image_url, in_stock, created_at
		FROM products
		WHERE in_stock AND ($1::text = '' OR category = $1::text)
		ORDER BY created_at DESC`, f.Category)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		var p Product
		err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category,
			&p.Fabric, &p.Color, &p.ImageURL, &p.InStock, &p.CreatedAt)
		return p, err
	})
}

func (r *Repo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT DISTINCT category FROM products WHERE in_stock ORDER BY category`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Prices looks up the current price and availability of the given products.
// Unknown ids are simply absent from the result.
func (r *Repo) Prices(ctx context.Context, ids []string) (map[string]PriceInfo, error) {
	out := make(map[string]PriceInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT id, name, price, in_stock FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			pi PriceInfo
		)
		if err := rows.Scan(&id, &pi.Name, &pi.Price, &pi.InStock); err != nil {
			return nil, err
		}
		out[id] = pi
	}
	return out, rows.Err()
}
