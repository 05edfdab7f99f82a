package basis

import (
	"fmt"

	"github.com/dcdpr/taxcount/internal/amount"
)

// FIFO is an acquisition-ordered queue of Pool Assets for a single asset.
// Disposal always consumes from the front (oldest-first), which is what US
// tax law defaults to absent an explicit specific-identification election.
type FIFO struct {
	asset amount.Asset
	items []PoolAsset
}

func NewFIFO(asset amount.Asset) *FIFO {
	return &FIFO{asset: asset}
}

func (f *FIFO) Asset() amount.Asset { return f.asset }

// Push appends a newly produced Pool Asset to the back of the queue.
func (f *FIFO) Push(p PoolAsset) {
	if p.Amount.Asset() != f.asset {
		panic(fmt.Sprintf("FIFO asset mismatch: queue is %s, pushed %s", f.asset, p.Amount.Asset()))
	}
	f.items = append(f.items, p)
}

// Total sums the queue's current balance.
func (f *FIFO) Total() amount.KrakenAmount {
	total := amount.Zero(f.asset)
	for _, p := range f.items {
		total = total.Add(p.Amount)
	}
	return total
}

func (f *FIFO) Len() int { return len(f.items) }

// Snapshot returns the queue's current contents, oldest first, for
// checkpoint persistence.
func (f *FIFO) Snapshot() []PoolAsset {
	out := make([]PoolAsset, len(f.items))
	copy(out, f.items)
	return out
}

// RestoreFIFO rebuilds a FIFO from a prior Snapshot.
func RestoreFIFO(asset amount.Asset, items []PoolAsset) *FIFO {
	f := NewFIFO(asset)
	f.items = append(f.items, items...)
	return f
}

// SplittableTakeWhile removes exactly `want` units from the front of the
// queue, splitting the final lot it touches if want falls inside it rather
// than on a lot boundary. It returns the consumed Pool Assets (oldest
// first) or an error if the queue does not hold enough balance to satisfy
// the request.
//
//	remaining := want
//	out := []
//	while remaining > 0:
//	    lot := front of queue
//	    if lot.Amount <= remaining:
//	        out.append(pop(lot)); remaining -= lot.Amount
//	    else:
//	        out.append({remaining, lot.Origin}); lot.Amount -= remaining; remaining = 0
func (f *FIFO) SplittableTakeWhile(want amount.KrakenAmount) ([]PoolAsset, error) {
	if want.Asset() != f.asset {
		panic(fmt.Sprintf("FIFO asset mismatch: queue is %s, requested %s", f.asset, want.Asset()))
	}
	if want.Cmp(f.Total()) > 0 {
		return nil, fmt.Errorf("insufficient %s balance: have %s, need %s", f.asset, f.Total(), want)
	}
	var out []PoolAsset
	remaining := want
	for remaining.IsPositive() {
		lot := &f.items[0]
		switch lot.Amount.Cmp(remaining) {
		case -1: // lot smaller than what's left: consume whole lot
			out = append(out, *lot)
			remaining = remaining.Sub(lot.Amount)
			f.items = f.items[1:]
		case 0: // lot exactly matches what's left
			out = append(out, *lot)
			remaining = remaining.Sub(lot.Amount)
			f.items = f.items[1:]
		case 1: // lot bigger than what's left: split off the remainder
			out = append(out, PoolAsset{Amount: remaining, Origin: lot.Origin})
			lot.Amount = lot.Amount.Sub(remaining)
			remaining = amount.Zero(f.asset)
		}
	}
	return out, nil
}
