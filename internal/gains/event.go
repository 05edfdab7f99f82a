// Package gains computes realized capital gains/losses and income from the
// events the resolver produces, classifies each by term (short/long) and
// by US/territory sourcing around a bona fide residency move date, and
// renders the results to worksheet CSVs. CheckList partitions a run's
// events into the successes that feed the worksheet and the errors that
// abort it.
package gains

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

// Term classifies a disposal's holding period.
type Term int

const (
	TermShort Term = iota
	TermLong
)

func (t Term) String() string {
	if t == TermLong {
		return "long"
	}
	return "short"
}

// ComputeTerm classifies the holding period between acquired and disposed
// using calendar-month subtraction (more than one year, not 365 days), per
// 26 U.S.C. 1222.
func ComputeTerm(acquired, disposed time.Time) Term {
	oneYearLater := acquired.AddDate(1, 0, 1)
	if disposed.Before(oneYearLater) {
		return TermShort
	}
	return TermLong
}

// Sourcing classifies which side of a bona fide residency move a disposal
// falls on, for territory/US income splitting. A disposal straddling the
// move (acquired before, disposed after) is split by the caller at the
// asset's exchange-rate value on the move date; Sourcing itself only
// describes a single endpoint.
type Sourcing int

const (
	SourceUS Sourcing = iota
	SourceTerritory
)

// EventKind tags what kind of taxable or informational event occurred.
type EventKind int

const (
	EventTradeAtom EventKind = iota
	EventIncomeAtom
	EventPositionAtom
	EventFee
)

// Event is one atomic, priced occurrence the resolver emitted: a disposal
// (trade/spend), an income realization (mining, staking, margin proceeds),
// a margin position detail (open/rollover without disposal), or a fee.
// Worksheet rows are built by grouping Events by WorksheetName.
type Event struct {
	Kind          EventKind
	WorksheetName string
	SyntheticID   string
	Time          time.Time
	Asset         amount.Asset
	Amount        amount.KrakenAmount
	ExchangeRate  decimal.Decimal // USD per unit at this event's time
	AcquiredAt    time.Time       // zero for non-disposals
	AcquisitionRate decimal.Decimal
	Term          Term
	Note          string
}

// ProceedsUSD returns the USD value realized by this event.
func (e Event) ProceedsUSD() decimal.Decimal {
	return e.Amount.Decimal().Abs().Mul(e.ExchangeRate)
}

// BasisUSD returns the USD cost basis of a disposal event.
func (e Event) BasisUSD() decimal.Decimal {
	return e.Amount.Decimal().Abs().Mul(e.AcquisitionRate)
}

// GainUSD returns the realized gain/loss for a priced event. A trade atom
// (a genuine disposal at fair market value) nets proceeds against basis;
// a fee atom, per 4.8.3, yields no proceeds at all, so its "gain" is
// simply the negated basis; any other kind has no realized gain.
func (e Event) GainUSD() decimal.Decimal {
	switch e.Kind {
	case EventTradeAtom:
		return e.ProceedsUSD().Sub(e.BasisUSD())
	case EventFee:
		return e.BasisUSD().Neg()
	default:
		return decimal.Zero
	}
}

// PriceError is a recoverable pricing failure attached to an otherwise
// resolved event (missing exchange rate, missing basis assertion, ...).
type PriceError struct {
	TxID  string
	Cause error
}

func (e PriceError) Error() string {
	return fmt.Sprintf("tx %s: %s", e.TxID, e.Cause)
}

func (e PriceError) Unwrap() error { return e.Cause }
