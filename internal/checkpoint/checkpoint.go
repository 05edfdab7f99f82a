// Package checkpoint persists and restores a resolver run's complete
// state between invocations: the lifecycle arena, every asset's exchange
// FIFO and on-chain custody containers, suspended loan basis, and pending
// cross-stream entries. A checkpoint lets a later run pick up exactly
// where an earlier one left off instead of re-resolving the entire ledger
// history every time.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
	"github.com/dcdpr/taxcount/internal/blockchain"
	"github.com/dcdpr/taxcount/internal/resolver"
)

// Version is the checkpoint file format tag. A version mismatch on load
// is a hard failure: checkpoint contents are never partially migrated.
const Version = "3.0.0"

// Document is the full serializable snapshot of a run's resolver state.
type Document struct {
	Version string

	LatestRowTime      time.Time
	BonaFideResidency  *time.Time
	InterestExpenseUSD string // decimal string, for a stable on-disk encoding

	ArenaNodes []basis.Lifecycle

	ExchangeBalances map[amount.Asset][]basis.PoolAsset
	OnChainUtxo      map[amount.Asset]map[blockchain.Outpoint][]basis.PoolAsset

	BorrowerCollateral map[amount.Asset]map[string][]basis.PoolAsset
	LenderCapital      map[amount.Asset]map[string][]basis.PoolAsset

	PendingDeposits    map[string]resolver.PendingEntry
	PendingWithdrawals map[string]resolver.PendingEntry
	PendingSpends      map[string]resolver.PendingEntry
}

// FromState builds a Document snapshot of s.
func FromState(s *resolver.State) *Document {
	doc := &Document{
		Version:            Version,
		LatestRowTime:      s.LatestRowTime,
		BonaFideResidency:  s.BonaFideResidency,
		InterestExpenseUSD: s.InterestExpenseUSD.String(),
		ArenaNodes:         s.Arena.Snapshot(),
		ExchangeBalances:   snapshotFIFOs(s.ExchangeBalances),
		OnChainUtxo:        snapshotUtxos(s.OnChainUtxo),
		BorrowerCollateral: snapshotAccounts(s.BorrowerCollateral),
		LenderCapital:      snapshotAccounts(s.LenderCapital),
		PendingDeposits:    s.PendingDeposits,
		PendingWithdrawals: s.PendingWithdrawals,
		PendingSpends:      s.PendingSpends,
	}
	return doc
}

func snapshotFIFOs(m map[amount.Asset]*basis.FIFO) map[amount.Asset][]basis.PoolAsset {
	out := make(map[amount.Asset][]basis.PoolAsset, len(m))
	for asset, f := range m {
		out[asset] = f.Snapshot()
	}
	return out
}

func snapshotUtxos(m map[amount.Asset]*blockchain.Utxo) map[amount.Asset]map[blockchain.Outpoint][]basis.PoolAsset {
	out := make(map[amount.Asset]map[blockchain.Outpoint][]basis.PoolAsset, len(m))
	for asset, u := range m {
		out[asset] = u.Snapshot()
	}
	return out
}

func snapshotAccounts(m map[amount.Asset]*blockchain.Account) map[amount.Asset]map[string][]basis.PoolAsset {
	out := make(map[amount.Asset]map[string][]basis.PoolAsset, len(m))
	for asset, a := range m {
		out[asset] = a.Snapshot()
	}
	return out
}

// Restore overwrites the position fields of an existing resolver.State with
// those of a Document; the State keeps its own exchange-rate database for
// subsequent lookups (the checkpoint itself carries no pricing data, only
// positions and their history).
func (doc *Document) Restore(s *resolver.State) {
	s.Arena = basis.RestoreArena(doc.ArenaNodes)
	s.ExchangeBalances = restoreFIFOs(s.Arena, doc.ExchangeBalances)
	s.OnChainUtxo = restoreUtxos(doc.OnChainUtxo)
	s.BorrowerCollateral = restoreAccounts(doc.BorrowerCollateral)
	s.LenderCapital = restoreAccounts(doc.LenderCapital)
	s.PendingDeposits = doc.PendingDeposits
	s.PendingWithdrawals = doc.PendingWithdrawals
	s.PendingSpends = doc.PendingSpends
	s.LatestRowTime = doc.LatestRowTime
	s.BonaFideResidency = doc.BonaFideResidency
	if doc.InterestExpenseUSD != "" {
		if v, err := decimal.NewFromString(doc.InterestExpenseUSD); err == nil {
			s.InterestExpenseUSD = v
		}
	}
}

func restoreFIFOs(arena *basis.Arena, m map[amount.Asset][]basis.PoolAsset) map[amount.Asset]*basis.FIFO {
	out := make(map[amount.Asset]*basis.FIFO, len(m))
	for asset, items := range m {
		out[asset] = basis.RestoreFIFO(asset, items)
	}
	return out
}

func restoreUtxos(m map[amount.Asset]map[blockchain.Outpoint][]basis.PoolAsset) map[amount.Asset]*blockchain.Utxo {
	out := make(map[amount.Asset]*blockchain.Utxo, len(m))
	for asset, snap := range m {
		out[asset] = blockchain.RestoreUtxo(asset, snap)
	}
	return out
}

func restoreAccounts(m map[amount.Asset]map[string][]basis.PoolAsset) map[amount.Asset]*blockchain.Account {
	out := make(map[amount.Asset]*blockchain.Account, len(m))
	for asset, snap := range m {
		out[asset] = blockchain.RestoreAccount(asset, snap)
	}
	return out
}

// Save gob-encodes doc to path.
func Save(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing checkpoint to %s: %w", path, err)
	}
	return nil
}

// Load reads and decodes the checkpoint at path, enforcing an exact
// version match.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	var doc Document
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("checkpoint %s has version %q, expected %q", path, doc.Version, Version)
	}
	return &doc, nil
}
