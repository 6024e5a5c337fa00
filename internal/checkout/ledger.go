package checkout

import (
	"sort"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

// Line is one distinct item with its summed quantity.
type Line struct {
	ItemID   string
	Quantity int64
}

// Ledger records the lines already subtracted from stock in one execution.
type Ledger []Line

func (l Ledger) Total() int64 {
	var n int64
	for _, line := range l {
		n += line.Quantity
	}
	return n
}

// Aggregate sums quantities per item id and sorts by item id, so each item
// is subtracted once and in the same order on every replica.
func Aggregate(items []orders.Item) []Line {
	sums := make(map[string]int64, len(items))
	for _, it := range items {
		sums[it.ItemID] += it.Quantity
	}
	out := make([]Line, 0, len(sums))
	for id, q := range sums {
		out = append(out, Line{ItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
