package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/dcdpr/taxcount/internal/amount"
)

// Kind tags the grammar-resolved event a group of raw ledger rows
// represents.
type Kind int

const (
	KindTrade Kind = iota
	KindMarginOpen
	KindMarginRollover
	KindMarginClose
	KindSettle
	KindDeposit
	KindWithdrawal
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "Trade"
	case KindMarginOpen:
		return "MarginOpen"
	case KindMarginRollover:
		return "MarginRollover"
	case KindMarginClose:
		return "MarginClose"
	case KindSettle:
		return "Settle"
	case KindDeposit:
		return "Deposit"
	case KindWithdrawal:
		return "Withdrawal"
	default:
		return "Unknown"
	}
}

// Parsed is one grammar-resolved ledger event: the rows that compose it,
// keyed by role, plus the shared refid/time/txid it was grouped under.
type Parsed struct {
	Kind     Kind
	RefID    string
	Time     time.Time
	RowOut   *RawRow // outgoing asset leg (negative amount), nil if n/a
	RowIn    *RawRow // incoming asset leg (positive amount), nil if n/a
	RowFee   *RawRow // fee leg, nil if none
	Trade    *RawTrade
	Degenerate bool // margin close group with no zero-amount fee row
}

// ParseRows groups raw ledger rows by refid and resolves each group to a
// Parsed event. Trades additionally consult the trades table (the row whose
// txid equals the group's refid) to recover the trade's price/pair.
//
// The grammar:
//   - "trade": two rows sharing a refid, one negative (asset given up) and
//     one positive (asset received); a third row with type "trade" and a
//     nonzero amount in the same asset as one of the legs is its fee.
//   - "margin": subtype "open"/"rollover" carry only a fee row (the
//     position itself isn't a balance event yet); subtype "close" carries
//     a proceeds row. A close group with no zero-amount fee row is a
//     "degenerate" single-row close; the balance column is not consulted.
//   - "deposit"/"withdrawal": a "request" row paired with a "" (empty
//     subtype, i.e. fulfilled) row sharing the same refid; transfers with
//     subtype "spotfromfutures" are treated as a deposit.
//   - "settled": margin settlement, carries only a fee/interest row.
func ParseRows(rows []RawRow, trades []RawTrade) ([]Parsed, error) {
	tradeByTxID := make(map[string]RawTrade, len(trades))
	for _, t := range trades {
		tradeByTxID[t.TxID] = t
	}

	groups := make(map[string][]RawRow)
	var order []string
	for _, r := range rows {
		if _, ok := groups[r.RefID]; !ok {
			order = append(order, r.RefID)
		}
		groups[r.RefID] = append(groups[r.RefID], r)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return firstTime(groups[order[i]]).Before(firstTime(groups[order[j]]))
	})

	var out []Parsed
	for _, refID := range order {
		group := groups[refID]
		p, err := resolveGroup(refID, group, tradeByTxID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func firstTime(rows []RawRow) time.Time {
	min := rows[0].Time
	for _, r := range rows[1:] {
		if r.Time.Before(min) {
			min = r.Time
		}
	}
	return min
}

func resolveGroup(refID string, group []RawRow, tradeByTxID map[string]RawTrade) (Parsed, error) {
	t := firstTime(group)
	switch group[0].Type {
	case "trade":
		return resolveTrade(refID, t, group, tradeByTxID)
	case "margin":
		return resolveMargin(refID, t, group)
	case "settled":
		return resolveSettle(refID, t, group)
	case "deposit":
		return resolveTransfer(refID, t, group, KindDeposit)
	case "withdrawal":
		return resolveTransfer(refID, t, group, KindWithdrawal)
	case "transfer":
		if group[0].Subtype == "spotfromfutures" {
			return resolveTransfer(refID, t, group, KindDeposit)
		}
		return resolveTransfer(refID, t, group, KindDeposit)
	default:
		return Parsed{}, fmt.Errorf("refid %s: unrecognized ledger row type %q", refID, group[0].Type)
	}
}

func resolveTrade(refID string, t time.Time, group []RawRow, tradeByTxID map[string]RawTrade) (Parsed, error) {
	p := Parsed{Kind: KindTrade, RefID: refID, Time: t}
	for i := range group {
		r := &group[i]
		switch {
		case r.Amount.IsNegative() && p.RowOut == nil:
			p.RowOut = r
		case r.Amount.IsPositive() && p.RowIn == nil:
			p.RowIn = r
		case p.RowFee == nil:
			p.RowFee = r
		}
	}
	if trade, ok := tradeByTxID[refID]; ok {
		tr := trade
		p.Trade = &tr
	}
	if p.RowOut == nil || p.RowIn == nil {
		return Parsed{}, fmt.Errorf("refid %s: trade missing in/out legs", refID)
	}
	return p, nil
}

func resolveMargin(refID string, t time.Time, group []RawRow) (Parsed, error) {
	p := Parsed{RefID: refID, Time: t}
	switch group[0].Subtype {
	case "open":
		p.Kind = KindMarginOpen
	case "rollover":
		p.Kind = KindMarginRollover
	case "close":
		p.Kind = KindMarginClose
	default:
		return Parsed{}, fmt.Errorf("refid %s: unrecognized margin subtype %q", refID, group[0].Subtype)
	}
	for i := range group {
		r := &group[i]
		if r.Amount.IsZero() {
			p.RowFee = r
			continue
		}
		if p.Kind == KindMarginClose {
			p.RowIn = r
		}
	}
	if p.Kind == KindMarginClose && p.RowFee == nil {
		// Degenerate case: a single-row close where the fee wasn't broken
		// out separately. Detected by the absence of a zero-amount row,
		// not by an explicit marker in the CSV.
		p.Degenerate = true
		if p.RowIn == nil {
			p.RowIn = &group[0]
		}
	}
	return p, nil
}

func resolveSettle(refID string, t time.Time, group []RawRow) (Parsed, error) {
	p := Parsed{Kind: KindSettle, RefID: refID, Time: t}
	p.RowFee = &group[0]
	return p, nil
}

func resolveTransfer(refID string, t time.Time, group []RawRow, kind Kind) (Parsed, error) {
	p := Parsed{Kind: kind, RefID: refID, Time: t}
	// A transfer is fulfilled once both the "request" leg and the
	// settled (empty-subtype) leg are present; a lone "request" row means
	// the deposit/withdrawal is still pending as of the end of this run.
	for i := range group {
		r := &group[i]
		if r.Subtype == "request" {
			continue
		}
		if kind == KindDeposit {
			p.RowIn = r
		} else {
			p.RowOut = r
		}
	}
	return p, nil
}

// Asset returns the asset this event is denominated in, from whichever leg
// is present.
func (p Parsed) Asset() amount.Asset {
	switch {
	case p.RowIn != nil:
		return p.RowIn.Asset
	case p.RowOut != nil:
		return p.RowOut.Asset
	case p.RowFee != nil:
		return p.RowFee.Asset
	default:
		return amount.AssetUSD
	}
}
