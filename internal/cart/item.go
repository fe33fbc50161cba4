package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Item is one line of the shopper's selection, keyed by product id.
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
	Quantity int             `json:"quantity"`
}

func (it Item) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Snapshot is an immutable view of a cart together with its derived totals.
type Snapshot struct {
	Items       []Item          `json:"items"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Version     uint64          `json:"version"` // bumped by every mutation
}

func (s Snapshot) Empty() bool { return len(s.Items) == 0 }

func (s Snapshot) IDs() []string {
	out := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, it.ID)
	}
	return out
}

func snapshotOf(items []Item) Snapshot {
	cp := make([]Item, len(items))
	copy(cp, items)
	total := decimal.Zero
	n := 0
	for _, it := range cp {
		n += it.Quantity
		total = total.Add(it.Subtotal())
	}
	return Snapshot{Items: cp, TotalItems: n, TotalAmount: total}
}

// Encode serializes the item list in the persisted layout (a JSON array of items).
func Encode(items []Item) ([]byte, error) {
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(items)
}

// Decode never fails: a missing or malformed payload yields an empty cart.
// Rows that break the item invariants are dropped and duplicate ids are merged.
func Decode(data []byte) []Item {
	if len(data) == 0 {
		return nil
	}
	var raw []Item
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make([]Item, 0, len(raw))
	pos := make(map[string]int, len(raw))
	for _, it := range raw {
		if it.ID == "" || it.Quantity < 1 || !it.Price.IsPositive() {
			continue
		}
		if i, ok := pos[it.ID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		pos[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}
