package blockchain

import (
	"fmt"
	"sort"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
)

// Destination describes one output of an on-chain custody operation: the
// key it lands under (an Outpoint for a UTXO chain, an address/loan id for
// an account model), whether it belongs to a tracked wallet, and how much
// it carries.
type Destination[K comparable] struct {
	Key    K
	Mine   bool
	Amount amount.KrakenAmount
}

// container is the generic machinery shared by Utxo and Account: a map of
// keyed FIFOs for one asset, plus the transfer/spend/receive operations
// spec.md's custody containers define. Utxo keys by Outpoint, Account keys
// by string; the pooling and splitting logic underneath is identical.
type container[K comparable] struct {
	asset   amount.Asset
	entries map[K]*basis.FIFO
}

func newContainer[K comparable](asset amount.Asset) container[K] {
	return container[K]{asset: asset, entries: make(map[K]*basis.FIFO)}
}

// entry returns the FIFO at key, creating an empty one on first access.
func (c *container[K]) entry(key K) *basis.FIFO {
	f, ok := c.entries[key]
	if !ok {
		f = basis.NewFIFO(c.asset)
		c.entries[key] = f
	}
	return f
}

func (c *container[K]) has(key K) bool {
	_, ok := c.entries[key]
	return ok
}

func (c *container[K]) keys() []K {
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *container[K]) total() amount.KrakenAmount {
	total := amount.Zero(c.asset)
	for _, f := range c.entries {
		total = total.Add(f.Total())
	}
	return total
}

// take removes and returns the FIFO at key, reporting false if key isn't
// tracked.
func (c *container[K]) take(key K) (*basis.FIFO, bool) {
	f, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return f, ok
}

// drain removes every key's FIFO and pools their contents into a single
// FIFO ordered oldest-acquisition-first, regardless of which key a lot
// came from. This is what lets transfer/spend consume the oldest UTXO
// first even when the inputs span multiple outpoints acquired at
// different times.
func (c *container[K]) drain(arena *basis.Arena, keys []K) (*basis.FIFO, error) {
	var lots []basis.PoolAsset
	for _, key := range keys {
		f, ok := c.take(key)
		if !ok {
			return nil, fmt.Errorf("no tracked balance at %v", key)
		}
		lots = append(lots, f.Snapshot()...)
	}
	sort.SliceStable(lots, func(i, j int) bool {
		return arena.AcquiredAt(lots[i].Origin).Before(arena.AcquiredAt(lots[j].Origin))
	})
	pooled := basis.NewFIFO(c.asset)
	for _, lot := range lots {
		pooled.Push(lot)
	}
	return pooled, nil
}

// transfer moves inputs' pooled basis to outputs unchanged: no disposal,
// no gain, since every output stays within tracked custody. Any amount
// left over once every output is satisfied is the transaction fee (the
// newest UTXO pooled, by construction of drain's acquisition ordering),
// returned to the caller to book as a disposal.
func (c *container[K]) transfer(arena *basis.Arena, inputs []K, outputs []Destination[K]) (fee *basis.FIFO, err error) {
	pooled, err := c.drain(arena, inputs)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	for _, out := range outputs {
		lots, err := pooled.SplittableTakeWhile(out.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer: %w", err)
		}
		dst := c.entry(out.Key)
		for _, lot := range lots {
			dst.Push(lot)
		}
	}
	return pooled, nil
}

// spend partitions inputs' pooled basis across outputs: an output marked
// Mine stays in custody (booked to its own key), one that isn't goes to
// the disposal FIFO the caller must book as a sale/gift/payment. Any
// remainder once every output is satisfied is the fee; requireFee selects
// whether that remainder is returned for the caller to book as a fee
// disposal (the ordinary case, a network fee) or folded back into the
// first Mine destination as unaccounted-for change.
func (c *container[K]) spend(arena *basis.Arena, inputs []K, outputs []Destination[K], requireFee bool) (disposal, fee *basis.FIFO, err error) {
	pooled, err := c.drain(arena, inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("spend: %w", err)
	}
	disposal = basis.NewFIFO(c.asset)
	for _, out := range outputs {
		lots, err := pooled.SplittableTakeWhile(out.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("spend: %w", err)
		}
		if out.Mine {
			dst := c.entry(out.Key)
			for _, lot := range lots {
				dst.Push(lot)
			}
		} else {
			for _, lot := range lots {
				disposal.Push(lot)
			}
		}
	}
	if pooled.Len() > 0 && !requireFee {
		for _, out := range outputs {
			if !out.Mine {
				continue
			}
			dst := c.entry(out.Key)
			for _, lot := range pooled.Snapshot() {
				dst.Push(lot)
			}
			pooled = basis.NewFIFO(c.asset)
			break
		}
	}
	return disposal, pooled, nil
}

// receive splits basisFIFO across outputs, carrying its original
// acquisition history forward rather than starting a fresh one. This is
// how a deposit whose basis was already established by an earlier wallet
// spend propagates into the destination container without realizing
// income.
func (c *container[K]) receive(outputs []Destination[K], basisFIFO *basis.FIFO) error {
	for _, out := range outputs {
		lots, err := basisFIFO.SplittableTakeWhile(out.Amount)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		dst := c.entry(out.Key)
		for _, lot := range lots {
			dst.Push(lot)
		}
	}
	return nil
}
