package blockchain

import (
	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
)

// Account is a custody container for account-model balances: a single FIFO
// per account key (an address, or a synthetic loan id for margin
// collateral/capital), since account-model balances are fungible within an
// account rather than individually addressed like UTXOs.
type Account struct {
	container[string]
}

func NewAccount(asset amount.Asset) *Account {
	return &Account{container: newContainer[string](asset)}
}

// Entry returns the FIFO for key, creating an empty one on first access.
func (a *Account) Entry(key string) *basis.FIFO { return a.entry(key) }

func (a *Account) Keys() []string { return a.keys() }

// Total sums every account's balance.
func (a *Account) Total() amount.KrakenAmount { return a.total() }

// Take removes and returns the FIFO at key, reporting false if key isn't
// tracked.
func (a *Account) Take(key string) (*basis.FIFO, bool) { return a.take(key) }

// Transfer moves inputs' pooled basis to outputs unchanged.
func (a *Account) Transfer(arena *basis.Arena, inputs []string, outputs []Destination[string]) (fee *basis.FIFO, err error) {
	return a.transfer(arena, inputs, outputs)
}

// Spend partitions inputs' pooled basis across outputs, separating what
// stays in custody from what's disposed of, plus any fee remainder.
func (a *Account) Spend(arena *basis.Arena, inputs []string, outputs []Destination[string], requireFee bool) (disposal, fee *basis.FIFO, err error) {
	return a.spend(arena, inputs, outputs, requireFee)
}

// Receive splits basisFIFO across outputs, carrying its original
// acquisition history forward.
func (a *Account) Receive(outputs []Destination[string], basisFIFO *basis.FIFO) error {
	return a.receive(outputs, basisFIFO)
}

// Snapshot returns every account key's current FIFO contents, for
// checkpoint persistence.
func (a *Account) Snapshot() map[string][]basis.PoolAsset {
	out := make(map[string][]basis.PoolAsset, len(a.entries))
	for key, f := range a.entries {
		out[key] = f.Snapshot()
	}
	return out
}

// RestoreAccount rebuilds an Account from a prior Snapshot.
func RestoreAccount(asset amount.Asset, snap map[string][]basis.PoolAsset) *Account {
	a := NewAccount(asset)
	for key, items := range snap {
		a.entries[key] = basis.RestoreFIFO(asset, items)
	}
	return a
}
