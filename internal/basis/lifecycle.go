// Package basis implements cost-basis lifecycle tracking: Pool Assets (an
// indivisible unit of "this amount was acquired at this rate, this way"),
// the lifecycle DAG that records how each Pool Asset came to exist, and the
// FIFO queues that consume them in acquisition order.
//
// The Rust original represented the lifecycle DAG with reference-counted,
// non-cloneable nodes (Rc<RefCell<...>> with an affine "take" discipline)
// so a Pool Asset's basis history could be shared between splits without
// ever being duplicated or silently dropped. Go has no borrow checker, so
// the DAG is instead an arena: every lifecycle node gets a uuid.UUID id and
// lives in a single map, and Pool Assets hold an id rather than a pointer
// or a clone. Splitting a Pool Asset means both halves point at the same
// parent id; nothing is copied, so the arena doubles as a conservation
// check (total amount reachable from any root id is invariant).
package basis

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/dcdpr/taxcount/internal/amount"
)

// shortHash derives an 8-byte, hex-encoded fingerprint from a lifecycle
// node's defining fields. It's used as a fallback synthetic id for roots
// created without an explicit refid/txid (margin settlements and
// worksheet rows synthesized by the resolver rather than copied from a
// CSV), so every worksheet row still gets a short, stable, collision-
// resistant label.
func shortHash(parts ...string) string {
	h, _ := blake2b.New(8, nil)
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OriginKind tags how a Pool Asset was acquired.
type OriginKind int

const (
	// OriginBase is the root case: a deposit, income event, or other entry
	// point with no parent lifecycle. Its acquisition time is quirky by
	// design: the Rust original stamps these with the "now" of the event
	// that produced them rather than any earlier history, since there is
	// no earlier history to inherit.
	OriginBase OriginKind = iota
	// OriginTradeBuy records a same-exchange trade that acquired this
	// asset at the trade's own exchange rate.
	OriginTradeBuy
	// OriginMarginClose records proceeds released when a margin position
	// closes, priced at the exchange-rate database's rate at the close
	// time rather than a trades-table price.
	OriginMarginClose
	// OriginSplit records a Pool Asset produced by splitting a larger one;
	// it has no price of its own and defers entirely to its parent.
	OriginSplit
)

func (k OriginKind) String() string {
	switch k {
	case OriginBase:
		return "Base"
	case OriginTradeBuy:
		return "TradeBuy"
	case OriginMarginClose:
		return "MarginClose"
	case OriginSplit:
		return "Split"
	default:
		return "Unknown"
	}
}

// Lifecycle is one node in the acquisition DAG, identified by an arena id.
// Split nodes point at a Parent id instead of duplicating the parent's
// fields.
type Lifecycle struct {
	ID           uuid.UUID
	Kind         OriginKind
	AcquiredAt   time.Time
	ExchangeRate decimal.Decimal // USD per unit, at acquisition
	Parent       uuid.UUID       // zero UUID when Kind != OriginSplit
	SyntheticID  string          // stable label used in worksheet output
}

// Arena owns every Lifecycle node ever created during a run. It never
// deletes entries, even after every Pool Asset referencing a node has been
// consumed, so historical worksheet rows can still resolve their origin
// chain after the fact.
type Arena struct {
	nodes map[uuid.UUID]*Lifecycle
}

func NewArena() *Arena {
	return &Arena{nodes: make(map[uuid.UUID]*Lifecycle)}
}

// NewRoot creates a root (non-split) lifecycle node and returns its id.
func (a *Arena) NewRoot(kind OriginKind, acquiredAt time.Time, rate decimal.Decimal, syntheticID string) uuid.UUID {
	if syntheticID == "" {
		syntheticID = shortHash(kind.String(), acquiredAt.String(), rate.String())
	}
	id := uuid.New()
	a.nodes[id] = &Lifecycle{
		ID:           id,
		Kind:         kind,
		AcquiredAt:   acquiredAt,
		ExchangeRate: rate,
		SyntheticID:  syntheticID,
	}
	return id
}

// NewSplit creates a node that defers entirely to parent for its price and
// acquisition time; it exists only so that two post-split Pool Assets can
// each reference the same history without one of them claiming sole
// ownership.
func (a *Arena) NewSplit(parent uuid.UUID) uuid.UUID {
	id := uuid.New()
	a.nodes[id] = &Lifecycle{
		ID:     id,
		Kind:   OriginSplit,
		Parent: parent,
	}
	return id
}

// Snapshot returns every lifecycle node in the arena, for checkpoint
// persistence.
func (a *Arena) Snapshot() []Lifecycle {
	out := make([]Lifecycle, 0, len(a.nodes))
	for _, n := range a.nodes {
		out = append(out, *n)
	}
	return out
}

// RestoreArena rebuilds an Arena from a prior Snapshot.
func RestoreArena(nodes []Lifecycle) *Arena {
	a := NewArena()
	for i := range nodes {
		n := nodes[i]
		a.nodes[n.ID] = &n
	}
	return a
}

// resolve walks Split nodes up to the nearest priced ancestor.
func (a *Arena) resolve(id uuid.UUID) *Lifecycle {
	node := a.nodes[id]
	for node != nil && node.Kind == OriginSplit {
		node = a.nodes[node.Parent]
	}
	return node
}

// AcquiredAt returns the acquisition time backing id, following Split
// ancestry as needed.
func (a *Arena) AcquiredAt(id uuid.UUID) time.Time {
	if node := a.resolve(id); node != nil {
		return node.AcquiredAt
	}
	return time.Time{}
}

// ExchangeRateAtAcquisition returns the USD-per-unit rate backing id.
func (a *Arena) ExchangeRateAtAcquisition(id uuid.UUID) decimal.Decimal {
	if node := a.resolve(id); node != nil {
		return node.ExchangeRate
	}
	return decimal.Zero
}

// SyntheticID returns the worksheet label backing id.
func (a *Arena) SyntheticID(id uuid.UUID) string {
	if node := a.resolve(id); node != nil {
		return node.SyntheticID
	}
	return ""
}

// Kind returns the resolved (non-split) origin kind backing id.
func (a *Arena) Kind(id uuid.UUID) OriginKind {
	if node := a.resolve(id); node != nil {
		return node.Kind
	}
	return OriginBase
}

// PoolAsset is an indivisible accounting unit: this much of this asset,
// acquired per the lifecycle node named by Origin. There is no exported
// Clone: a PoolAsset is produced once (by a deposit/trade/split) and
// consumed once (by a FIFO pop or a taxable disposal), mirroring the
// affine-type discipline the Rust original enforced at compile time.
type PoolAsset struct {
	Amount amount.KrakenAmount
	Origin uuid.UUID
}

// Split removes `take` from p (which must be <= p.Amount) and returns it as
// a new PoolAsset sharing p's lifecycle via a Split node; p itself shrinks
// in place. This is the only way to produce more than one PoolAsset out of
// an existing one, and it never changes the total amount in circulation.
func (p *PoolAsset) Split(arena *Arena, take amount.KrakenAmount) PoolAsset {
	splitID := arena.NewSplit(p.Origin)
	p.Amount = p.Amount.Sub(take)
	return PoolAsset{Amount: take, Origin: splitID}
}
