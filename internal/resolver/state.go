// Package resolver implements the Event Resolver: a single-threaded,
// cooperative scheduler that interleaves the parsed ledger stream and the
// wallet Tx stream in fixed 60-second timeslices, releasing and consuming
// Pool Assets as it goes and emitting priced gains.Event values (or
// recoverable PriceErrors) for the CheckList to partition.
package resolver

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
	"github.com/dcdpr/taxcount/internal/blockchain"
	"github.com/dcdpr/taxcount/internal/exchangerate"
	"github.com/dcdpr/taxcount/internal/gains"
	"github.com/dcdpr/taxcount/internal/ledger"
	"github.com/dcdpr/taxcount/internal/wallet"
)

// timeslice is the scheduler's fixed interleaving granularity. Events
// within the same 60-second window are processed ledger-before-wallet, so
// a trade and its corresponding on-chain settlement in the same minute
// resolve in a stable, deterministic order.
const timeslice = 60 * time.Second

// pendingWindow bounds how far apart in time a deposit/withdrawal and its
// on-chain counterpart can be and still be treated as the two halves of
// the same movement. Kraken's own deposit/withdrawal processing can lag
// the underlying chain confirmation by some margin, and the chain tx
// itself can precede or follow the ledger row it reconciles with.
const pendingWindow = 2 * time.Hour

// PendingEntry records a deposit, withdrawal, or wallet spend awaiting a
// matching counterpart on the other stream (ledger vs. wallet) so the
// resolver can reconcile the two once both halves have arrived. Basis, if
// present, is the acquisition history that should propagate into whatever
// container ends up claiming this entry, rather than a fresh valuation.
type PendingEntry struct {
	Asset  amount.Asset
	Time   time.Time
	Amount amount.KrakenAmount
	Note   string
	Basis  []basis.PoolAsset
}

// State holds everything the resolver accumulates across a run: the
// lifecycle arena, every asset's exchange FIFO and on-chain custody
// containers, pending cross-stream entries awaiting reconciliation, and
// the header fields persisted to a checkpoint.
type State struct {
	Arena *basis.Arena

	ExchangeBalances map[amount.Asset]*basis.FIFO
	OnChainUtxo      map[amount.Asset]*blockchain.Utxo

	// BorrowerCollateral/LenderCapital hold basis suspended for the
	// duration of an open loan, keyed within each asset by loan id. Basis
	// moves here (instead of being disposed of) when collateral/capital
	// leaves custody for the life of a loan.
	BorrowerCollateral map[amount.Asset]*blockchain.Account
	LenderCapital      map[amount.Asset]*blockchain.Account

	PendingDeposits    map[string]PendingEntry // keyed by refid/txid
	PendingWithdrawals map[string]PendingEntry
	PendingSpends      map[string]PendingEntry

	BonaFideResidency *time.Time
	LatestRowTime     time.Time

	// InterestExpenseUSD accumulates margin interest/settlement fees in
	// USD and is carried in the checkpoint; a run does not apply it
	// against gains.
	InterestExpenseUSD decimal.Decimal

	CheckList *gains.CheckList

	basisLookup map[string]ledger.BasisLookupRow

	erdb *exchangerate.DB
}

func NewState(erdb *exchangerate.DB) *State {
	s := &State{
		Arena:              basis.NewArena(),
		ExchangeBalances:   make(map[amount.Asset]*basis.FIFO),
		OnChainUtxo:        make(map[amount.Asset]*blockchain.Utxo),
		BorrowerCollateral: make(map[amount.Asset]*blockchain.Account),
		LenderCapital:      make(map[amount.Asset]*blockchain.Account),
		PendingDeposits:    make(map[string]PendingEntry),
		PendingWithdrawals: make(map[string]PendingEntry),
		PendingSpends:      make(map[string]PendingEntry),
		CheckList:          &gains.CheckList{},
		erdb:               erdb,
	}
	return s
}

func (s *State) fifoFor(asset amount.Asset) *basis.FIFO {
	f, ok := s.ExchangeBalances[asset]
	if !ok {
		f = basis.NewFIFO(asset)
		s.ExchangeBalances[asset] = f
	}
	return f
}

func (s *State) utxoFor(asset amount.Asset) *blockchain.Utxo {
	u, ok := s.OnChainUtxo[asset]
	if !ok {
		u = blockchain.NewUtxo(asset)
		s.OnChainUtxo[asset] = u
	}
	return u
}

func accountFor(m map[amount.Asset]*blockchain.Account, asset amount.Asset) *blockchain.Account {
	a, ok := m[asset]
	if !ok {
		a = blockchain.NewAccount(asset)
		m[asset] = a
	}
	return a
}

// Resolve drains the ledger and wallet streams in 60-second timeslices,
// oldest first, ledger before wallet within a tie, until both are
// exhausted. It never short-circuits on a recoverable pricing error: each
// failure is recorded on the CheckList and the scheduler continues.
func (s *State) Resolve(ledgerEvents []ledger.Parsed, walletTxs []wallet.Tx) {
	li, wi := 0, 0
	for li < len(ledgerEvents) || wi < len(walletTxs) {
		next := nextTimestamp(ledgerEvents, li, walletTxs, wi)
		end := next.Add(timeslice)

		for li < len(ledgerEvents) && !ledgerEvents[li].Time.After(end) {
			s.handleLedgerEvent(ledgerEvents[li])
			s.LatestRowTime = ledgerEvents[li].Time
			li++
		}
		for wi < len(walletTxs) && !walletTxs[wi].Time.After(end) {
			s.handleWalletTx(walletTxs[wi])
			if walletTxs[wi].Time.After(s.LatestRowTime) {
				s.LatestRowTime = walletTxs[wi].Time
			}
			wi++
		}
	}
	s.cleanupPending()
}

func nextTimestamp(ledgerEvents []ledger.Parsed, li int, walletTxs []wallet.Tx, wi int) time.Time {
	var t time.Time
	haveT := false
	if li < len(ledgerEvents) {
		t = ledgerEvents[li].Time
		haveT = true
	}
	if wi < len(walletTxs) {
		if !haveT || walletTxs[wi].Time.Before(t) {
			t = walletTxs[wi].Time
		}
	}
	return t
}

// cleanupPending resolves whatever didn't find its counterpart during the
// run. A deposit with no matching basis assertion or pending spend is a
// hard pricing error: we genuinely don't know what it cost. A withdrawal
// with no matching wallet receive isn't an error at all: nothing has left
// the user's total holdings, so it simply persists into next year's
// checkpoint to keep waiting. A wallet spend with no matching deposit,
// though, already disposed of funds to parts unknown; it must be taxed by
// year's end, so it's drained into a real disposal event here instead of
// carried forward indefinitely.
func (s *State) cleanupPending() {
	for refID, p := range s.PendingDeposits {
		s.CheckList.AddError(gains.PriceError{
			TxID:  refID,
			Cause: fmt.Errorf("deposit of %s pending at end of run with no matching basis", p.Amount),
		})
	}
	for txid, p := range s.PendingSpends {
		f := basis.RestoreFIFO(p.Asset, p.Basis)
		s.bookDisposalFromFIFO(worksheetWallet, txid, f, p.Time, gains.EventTradeAtom)
		delete(s.PendingSpends, txid)
	}
}

// rateAt looks up the USD/unit rate for asset at t, recording a PriceError
// and returning ok=false if unavailable.
func (s *State) rateAt(txid string, asset amount.Asset, t time.Time) (rate decimal.Decimal, ok bool) {
	r, err := s.erdb.RateAt(asset, t)
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: txid, Cause: err})
		return decimal.Decimal{}, false
	}
	return r, true
}

// releasePoolAsset draws magnitude (the absolute value of whatever the
// caller is disposing of) from the front of asset's exchange FIFO,
// emitting a priced disposal Event of the given kind for the consumed
// lots. It is the single chokepoint every outgoing exchange-side leg
// (trade sell, fee, withdrawal, margin release) goes through.
func (s *State) releasePoolAsset(worksheetName, txid string, magnitude amount.KrakenAmount, t time.Time, kind gains.EventKind) {
	want := amount.New(magnitude.Asset(), magnitude.Decimal().Abs())
	if want.IsZero() {
		return
	}
	f := s.fifoFor(want.Asset())
	lots, err := f.SplittableTakeWhile(want)
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: txid, Cause: err})
		return
	}
	s.bookDisposalLots(worksheetName, txid, want.Asset(), lots, t, kind)
}

// bookDisposalFromFIFO books every lot already extracted from a custody
// container (via Transfer/Spend) as a priced disposal event of the given
// kind, the wallet-side counterpart to releasePoolAsset.
func (s *State) bookDisposalFromFIFO(worksheetName, txid string, f *basis.FIFO, t time.Time, kind gains.EventKind) {
	lots := f.Snapshot()
	if len(lots) == 0 {
		return
	}
	s.bookDisposalLots(worksheetName, txid, f.Asset(), lots, t, kind)
}

// bookDisposalLots prices and emits one Event per consumed lot. A
// EventTradeAtom is a genuine disposal (sale, spend to an unowned
// address): its proceeds are the lot's value at t. A EventFee, per 4.8.3,
// realizes no proceeds at all — its gain is just the negated basis,
// computed by Event.GainUSD from the same fields. Cash itself (USD) isn't
// property with a fluctuating cost basis, so a USD leg leaving custody
// (a fee paid in USD, a margin settlement) is drained from its FIFO but
// never produces a gain/loss event.
func (s *State) bookDisposalLots(worksheetName, txid string, asset amount.Asset, lots []basis.PoolAsset, t time.Time, kind gains.EventKind) {
	if asset == amount.AssetUSD {
		return
	}
	rate, ok := s.rateAt(txid, asset, t)
	if !ok {
		return
	}
	for _, lot := range lots {
		acquiredAt := s.Arena.AcquiredAt(lot.Origin)
		acqRate := s.Arena.ExchangeRateAtAcquisition(lot.Origin)
		s.CheckList.Add(gains.Event{
			Kind:            kind,
			WorksheetName:   worksheetName,
			SyntheticID:     s.Arena.SyntheticID(lot.Origin),
			Time:            t,
			Asset:           asset,
			Amount:          lot.Amount,
			ExchangeRate:    rate,
			AcquiredAt:      acquiredAt,
			AcquisitionRate: acqRate,
			Term:            gains.ComputeTerm(acquiredAt, t),
		})
	}
}

// acquirePoolAsset creates a new root lifecycle node priced at rate and
// pushes a Pool Asset for the absolute value of amt onto asset's exchange
// FIFO.
func (s *State) acquirePoolAsset(kind basis.OriginKind, syntheticID string, amt amount.KrakenAmount, t time.Time, rate decimal.Decimal) {
	magnitude := amount.New(amt.Asset(), amt.Decimal().Abs())
	if magnitude.IsZero() {
		return
	}
	id := s.Arena.NewRoot(kind, t, rate, syntheticID)
	s.fifoFor(magnitude.Asset()).Push(basis.PoolAsset{Amount: magnitude, Origin: id})
}

// findPendingWithdrawal looks for a pending withdrawal of asset within
// pendingWindow of t, removing and returning it if found.
func (s *State) findPendingWithdrawal(asset amount.Asset, amt amount.KrakenAmount, t time.Time) (PendingEntry, bool) {
	return takeMatchingPending(s.PendingWithdrawals, asset, amt, t)
}

// findPendingSpend looks for a pending wallet spend of asset within
// pendingWindow of t, removing and returning it if found.
func (s *State) findPendingSpend(asset amount.Asset, amt amount.KrakenAmount, t time.Time) (PendingEntry, bool) {
	return takeMatchingPending(s.PendingSpends, asset, amt, t)
}

func takeMatchingPending(m map[string]PendingEntry, asset amount.Asset, amt amount.KrakenAmount, t time.Time) (PendingEntry, bool) {
	want := amt.Decimal().Abs()
	for key, p := range m {
		if p.Asset != asset {
			continue
		}
		if !p.Amount.Decimal().Abs().Equal(want) {
			continue
		}
		diff := t.Sub(p.Time)
		if diff < -pendingWindow || diff > pendingWindow {
			continue
		}
		delete(m, key)
		return p, true
	}
	return PendingEntry{}, false
}
