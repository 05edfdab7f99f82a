// Package blockchain implements the custody containers that track Pool
// Assets held on-chain (Utxo, keyed by outpoint, for UTXO chains like
// Bitcoin) or in an account/loan ledger (Account, keyed by address or loan
// id, for account-model chains and fiat/margin balances). It also defines
// the Client interface the wallet Auditor uses to resolve
// transactions against a chain backend.
package blockchain

import (
	"fmt"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
)

// Outpoint identifies one transaction output.
type Outpoint struct {
	TxID  string
	Index uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Utxo is a custody container for UTXO-model assets: each entry is a FIFO
// of Pool Assets sitting at a specific outpoint until it is spent. A
// single outpoint can hold more than one lot, since a transfer can merge
// basis history from several inputs into one output.
type Utxo struct {
	container[Outpoint]
}

func NewUtxo(asset amount.Asset) *Utxo {
	return &Utxo{container: newContainer[Outpoint](asset)}
}

// Entry returns the FIFO held at op, creating an empty one on first
// access.
func (u *Utxo) Entry(op Outpoint) *basis.FIFO { return u.entry(op) }

func (u *Utxo) Has(op Outpoint) bool { return u.has(op) }

func (u *Utxo) Keys() []Outpoint { return u.keys() }

func (u *Utxo) Total() amount.KrakenAmount { return u.total() }

func (u *Utxo) Len() int { return len(u.entries) }

// Take removes and returns the FIFO at op, reporting false if no such
// outpoint is tracked (e.g. the output belongs to a counterparty, not to
// any tracked wallet).
func (u *Utxo) Take(op Outpoint) (*basis.FIFO, bool) { return u.take(op) }

// Transfer moves inputs' pooled basis to outputs unchanged (a move
// between the user's own wallets); any leftover amount is the transfer
// fee, returned for the caller to book as a disposal.
func (u *Utxo) Transfer(arena *basis.Arena, inputs []Outpoint, outputs []Destination[Outpoint]) (fee *basis.FIFO, err error) {
	return u.transfer(arena, inputs, outputs)
}

// Spend partitions inputs' pooled basis across outputs, separating what
// stays in custody (Mine) from what's disposed of (paid out, gifted,
// donated), plus any fee remainder.
func (u *Utxo) Spend(arena *basis.Arena, inputs []Outpoint, outputs []Destination[Outpoint], requireFee bool) (disposal, fee *basis.FIFO, err error) {
	return u.spend(arena, inputs, outputs, requireFee)
}

// Receive splits basisFIFO across outputs, carrying its original
// acquisition history forward.
func (u *Utxo) Receive(outputs []Destination[Outpoint], basisFIFO *basis.FIFO) error {
	return u.receive(outputs, basisFIFO)
}

// Snapshot returns every outpoint's current FIFO contents, for checkpoint
// persistence.
func (u *Utxo) Snapshot() map[Outpoint][]basis.PoolAsset {
	out := make(map[Outpoint][]basis.PoolAsset, len(u.entries))
	for op, f := range u.entries {
		out[op] = f.Snapshot()
	}
	return out
}

// RestoreUtxo rebuilds a Utxo from a prior Snapshot.
func RestoreUtxo(asset amount.Asset, snap map[Outpoint][]basis.PoolAsset) *Utxo {
	u := NewUtxo(asset)
	for op, items := range snap {
		u.entries[op] = basis.RestoreFIFO(asset, items)
	}
	return u
}
