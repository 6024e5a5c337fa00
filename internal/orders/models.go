package orders

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Order is the snapshot kept in the key-value store. TotalCost accumulates
// quantity*price at the time each item was added and is never recomputed.
type Order struct {
	ID        string `msgpack:"-" json:"order_id"`
	UserID    string `msgpack:"user_id" json:"user_id"`
	Items     []Item `msgpack:"items" json:"items"`
	TotalCost int64  `msgpack:"total_cost" json:"total_cost"`
	Paid      bool   `msgpack:"paid" json:"paid"`
}

// Item is one add-item line. Repeated item ids are kept as separate lines.
// On the wire (msgpack and JSON) it is the pair [item_id, quantity].
type Item struct {
	_msgpack struct{} `msgpack:",as_array"`

	ItemID   string
	Quantity int64
}

func NewOrder(id, userID string) Order {
	return Order{ID: id, UserID: userID, Items: []Item{}}
}

func (o Order) Empty() bool { return len(o.Items) == 0 }

func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{it.ItemID, it.Quantity})
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("item: want [item_id, quantity], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &it.ItemID); err != nil {
		return fmt.Errorf("item id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &it.Quantity); err != nil {
		return fmt.Errorf("item quantity: %w", err)
	}
	return nil
}
