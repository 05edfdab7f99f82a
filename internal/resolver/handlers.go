package resolver

import (
	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
	"github.com/dcdpr/taxcount/internal/blockchain"
	"github.com/dcdpr/taxcount/internal/gains"
	"github.com/dcdpr/taxcount/internal/ledger"
	"github.com/dcdpr/taxcount/internal/wallet"
)

const worksheetKraken = "kraken"
const worksheetWallet = "wallet"

// SetBasisLookup indexes a user's basis-lookup assertions by refid/note so
// deposit handling can price a deposit the ledger alone can't (since a
// deposit's basis is whatever the user paid for it elsewhere, not
// something Kraken's own ledger records).
func (s *State) SetBasisLookup(rows []ledger.BasisLookupRow) {
	s.basisLookup = make(map[string]ledger.BasisLookupRow, len(rows))
	for _, r := range rows {
		s.basisLookup[r.SyntheticID] = r
	}
}

func (s *State) handleLedgerEvent(p ledger.Parsed) {
	switch p.Kind {
	case ledger.KindTrade:
		s.handleTrade(p)
	case ledger.KindMarginOpen, ledger.KindMarginRollover:
		s.handleMarginFeeOnly(p)
	case ledger.KindMarginClose:
		s.handleMarginClose(p)
	case ledger.KindSettle:
		s.handleSettle(p)
	case ledger.KindDeposit:
		s.handleDeposit(p)
	case ledger.KindWithdrawal:
		s.handleWithdrawal(p)
	}
}

// handleTrade releases the asset given up (the disposal) and acquires the
// asset received at the trade's own price, then releases any separate fee
// row. A trade whose RowIn leg is the asset we're tracking cost basis for
// records a TradeBuy lifecycle node instead of a plain FIFO push, so the
// worksheet can distinguish "bought on this exchange" from "deposited
// in already-owned".
func (s *State) handleTrade(p ledger.Parsed) {
	if p.RowOut != nil {
		s.releasePoolAsset(worksheetKraken, p.RefID, p.RowOut.Amount, p.Time, gains.EventTradeAtom)
	}
	if p.RowIn != nil && p.RowIn.Amount.IsPositive() {
		rate, ok := s.rateAt(p.RefID, p.RowIn.Asset, p.Time)
		if ok && p.Trade != nil {
			// Prefer the trade table's own recorded price when it is a USD
			// price for the received asset (a USD-quoted pair whose base is
			// RowIn's asset): it reflects what was actually paid, not a
			// market snapshot. Other pairs keep the rate database's rate.
			pair, err := ledger.GetPair(p.Trade.Pair)
			if err == nil && pair.Quote == amount.AssetUSD && pair.Base == p.RowIn.Asset && !p.Trade.Price.IsZero() {
				rate = p.Trade.Price
			}
		}
		if ok {
			s.acquirePoolAsset(basis.OriginTradeBuy, p.RefID, p.RowIn.Amount, p.Time, rate)
		}
	}
	if p.RowFee != nil && !p.RowFee.Fee.IsZero() {
		s.releasePoolAsset(worksheetKraken, p.RefID, p.RowFee.Fee, p.Time, gains.EventFee)
	}
}

// handleMarginFeeOnly handles margin open/rollover: these carry no
// disposal of their own, only a fee (the cost of holding the position),
// which is itself a disposal of whatever asset paid it.
func (s *State) handleMarginFeeOnly(p ledger.Parsed) {
	if p.RowFee != nil && !p.RowFee.Fee.IsZero() {
		s.releasePoolAsset(worksheetKraken, p.RefID, p.RowFee.Fee, p.Time, gains.EventFee)
	}
}

// handleMarginClose acquires a new lifecycle node for the position's
// proceeds (if positive) priced at the exchange-rate database's rate for
// the proceeds asset at the close time rather than any trades-table price
// (margin closes aren't trades.csv entries), then releases the fee — in that order, since the fee is
// drawn from the same balance the proceeds just credited.
func (s *State) handleMarginClose(p ledger.Parsed) {
	if p.RowIn != nil && p.RowIn.Amount.IsPositive() {
		rate, ok := s.rateAt(p.RefID, p.RowIn.Asset, p.Time)
		if ok {
			s.acquirePoolAsset(basis.OriginMarginClose, p.RefID, p.RowIn.Amount, p.Time, rate)
		}
	}
	if p.RowFee != nil && !p.RowFee.Fee.IsZero() {
		s.releasePoolAsset(worksheetKraken, p.RefID, p.RowFee.Fee, p.Time, gains.EventFee)
	}
}

// handleSettle adds the USD value of a margin interest/settlement fee to
// the InterestExpenseUSD accumulator and releases the fee as an EventFee
// disposal. The accumulator is saved in the checkpoint; no step of a run
// applies it against gains (GainMatrix.ApplyInterestExpenses is not
// called by app.Run).
func (s *State) handleSettle(p ledger.Parsed) {
	if p.RowFee == nil {
		return
	}
	rate, ok := s.rateAt(p.RefID, p.RowFee.Asset, p.Time)
	if !ok {
		return
	}
	usd := p.RowFee.Fee.Decimal().Abs().Mul(rate)
	s.InterestExpenseUSD = s.InterestExpenseUSD.Add(usd)
	s.releasePoolAsset(worksheetKraken, p.RefID, p.RowFee.Fee, p.Time, gains.EventFee)
}

// handleDeposit prices an incoming deposit from the user's basis-lookup
// assertion when one exists (keyed by refid); absent that, it checks for a
// pending wallet spend of matching asset/amount/time that already
// established real acquisition basis, propagating that basis rather than
// pricing at the current market rate. Only when neither source exists is
// the deposit parked as pending until cleanup, which surfaces it as a
// pricing error.
func (s *State) handleDeposit(p ledger.Parsed) {
	if p.RowIn == nil {
		return
	}
	if row, ok := s.basisLookup[p.RefID]; ok {
		s.acquirePoolAsset(basis.OriginBase, p.RefID, p.RowIn.Amount, p.Time, row.ExchangeRate)
		return
	}
	if pending, ok := s.findPendingSpend(p.RowIn.Asset, p.RowIn.Amount, p.Time); ok {
		f := basis.RestoreFIFO(pending.Asset, pending.Basis)
		dst := s.fifoFor(p.RowIn.Asset)
		for _, lot := range f.Snapshot() {
			dst.Push(lot)
		}
		return
	}
	s.PendingDeposits[p.RefID] = PendingEntry{
		Asset:  p.RowIn.Asset,
		Time:   p.Time,
		Amount: p.RowIn.Amount,
	}
}

// handleWithdrawal releases the withdrawn amount from the exchange FIFO,
// since it leaves the exchange's custody; the consumed lots retain their
// acquisition history in the pending entry, waiting for the matching
// wallet-side receive to carry that basis into on-chain custody. No gain
// is realized by the withdrawal itself: nothing was sold, only moved.
func (s *State) handleWithdrawal(p ledger.Parsed) {
	if p.RowOut == nil {
		return
	}
	f := s.fifoFor(p.RowOut.Asset)
	want := p.RowOut.Amount
	lots, err := f.SplittableTakeWhile(amount.New(want.Asset(), want.Decimal().Abs()))
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: p.RefID, Cause: err})
		return
	}
	s.PendingWithdrawals[p.RefID] = PendingEntry{
		Asset:  p.RowOut.Asset,
		Time:   p.Time,
		Amount: want,
		Basis:  lots,
	}
}

// handleWalletTx classifies and books an on-chain transaction according to
// its resolved loan role, TxType, and Direction.
func (s *State) handleWalletTx(tx wallet.Tx) {
	if role := tx.Type.LoanRole(); role != wallet.LoanRoleNone {
		s.handleLoanTx(tx, role)
		return
	}

	switch tx.Type {
	case wallet.TxTypeIncome, wallet.TxTypeFork:
		s.handleWalletIncome(tx)
		return
	case wallet.TxTypeSpam, wallet.TxTypeLost:
		return
	case wallet.TxTypeGift, wallet.TxTypeDonation, wallet.TxTypeCapGain:
		s.handleWalletDisposal(tx)
		return
	}

	switch tx.Direction {
	case wallet.DirReceive:
		s.handleWalletReceive(tx)
	case wallet.DirSpend:
		s.handleWalletSpend(tx)
	case wallet.DirTransfer:
		s.handleWalletTransfer(tx)
	}
}

// handleWalletIncome books a brand-new root lifecycle node priced at the
// tx's own rate (the fair market value at receipt) and emits an income
// atom, for mining/staking/forks and any receive that isn't reconciling a
// pending exchange withdrawal.
func (s *State) handleWalletIncome(tx wallet.Tx) {
	rate := s.walletRate(tx)
	total := amount.New(tx.Asset, sumOutputs(tx).Decimal().Abs())
	if total.IsZero() {
		return
	}
	id := s.Arena.NewRoot(basis.OriginBase, tx.Time, rate, tx.TxID)
	f := basis.NewFIFO(tx.Asset)
	f.Push(basis.PoolAsset{Amount: total, Origin: id})
	if err := s.utxoFor(tx.Asset).Receive(destinationsFor(tx), f); err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: tx.TxID, Cause: err})
		return
	}
	s.CheckList.Add(gains.Event{
		Kind:          gains.EventIncomeAtom,
		WorksheetName: worksheetWallet,
		SyntheticID:   tx.TxID,
		Time:          tx.Time,
		Asset:         tx.Asset,
		Amount:        total,
		ExchangeRate:  rate,
	})
}

// handleWalletReceive looks for a pending exchange withdrawal matching
// this receive's asset/amount/time; on a match, the withdrawal's original
// acquisition basis propagates into on-chain custody with no income event.
// Absent a match, it's treated as an ordinary income-priced receive.
func (s *State) handleWalletReceive(tx wallet.Tx) {
	total := sumOutputs(tx)
	if pending, ok := s.findPendingWithdrawal(tx.Asset, total, tx.Time); ok {
		f := basis.RestoreFIFO(pending.Asset, pending.Basis)
		if err := s.utxoFor(tx.Asset).Receive(destinationsFor(tx), f); err != nil {
			s.CheckList.AddError(gains.PriceError{TxID: tx.TxID, Cause: err})
		}
		return
	}
	s.handleWalletIncome(tx)
}

// handleWalletSpend splits the spent inputs' pooled basis across this
// tx's outputs: change stays in custody, the fee (the unaccounted
// remainder) is booked immediately, and whatever's left over after
// change and fee (money that left custody to an unowned address) is
// parked pending a matching exchange deposit rather than booked outright,
// since a deposit row reconciling it may still arrive.
func (s *State) handleWalletSpend(tx wallet.Tx) {
	u := s.utxoFor(tx.Asset)
	disposal, fee, err := u.Spend(s.Arena, inputsFor(tx), destinationsFor(tx), true)
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: tx.TxID, Cause: err})
		return
	}
	s.bookDisposalFromFIFO(worksheetWallet, tx.TxID, fee, tx.Time, gains.EventFee)
	if disposal.Len() == 0 {
		return
	}
	s.PendingSpends[tx.TxID] = PendingEntry{
		Asset:  tx.Asset,
		Time:   tx.Time,
		Amount: disposal.Total(),
		Basis:  disposal.Snapshot(),
	}
}

// handleWalletTransfer moves basis between the user's own tracked
// outpoints unchanged, booking only the fee (any amount not claimed by an
// owned output) as a disposal.
func (s *State) handleWalletTransfer(tx wallet.Tx) {
	u := s.utxoFor(tx.Asset)
	fee, err := u.Transfer(s.Arena, inputsFor(tx), destinationsFor(tx))
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: tx.TxID, Cause: err})
		return
	}
	s.bookDisposalFromFIFO(worksheetWallet, tx.TxID, fee, tx.Time, gains.EventFee)
	delete(s.PendingWithdrawals, tx.TxID)
}

// handleWalletDisposal handles explicitly tagged gifts, donations, and
// capital-gain realizations: unlike an ordinary spend, these are
// definitionally final, so both the fee and the disposed amount are
// booked immediately rather than parked pending a deposit match.
func (s *State) handleWalletDisposal(tx wallet.Tx) {
	u := s.utxoFor(tx.Asset)
	disposal, fee, err := u.Spend(s.Arena, inputsFor(tx), destinationsFor(tx), true)
	if err != nil {
		s.CheckList.AddError(gains.PriceError{TxID: tx.TxID, Cause: err})
		return
	}
	s.bookDisposalFromFIFO(worksheetWallet, tx.TxID, fee, tx.Time, gains.EventFee)
	s.bookDisposalFromFIFO(worksheetWallet, tx.TxID, disposal, tx.Time, gains.EventTradeAtom)
}

// handleLoanTx routes a loan-tagged transaction by which side of the loan
// it represents. Sending capital (as lender) or collateral (as borrower)
// suspends the moved basis in a loan account rather than disposing of it,
// since the funds are expected back; receiving the counterparty's capital
// or collateral is booked like any other incoming value, at its fair
// market value when received.
func (s *State) handleLoanTx(tx wallet.Tx, role wallet.LoanRole) {
	switch role {
	case wallet.LoanRoleLenderCapital:
		s.suspendLoanBasis(s.LenderCapital, tx)
	case wallet.LoanRoleBorrowerCollateral:
		s.suspendLoanBasis(s.BorrowerCollateral, tx)
	case wallet.LoanRoleBorrowerCapital, wallet.LoanRoleLenderCollateral:
		s.handleWalletIncome(tx)
	}
}

// suspendLoanBasis pulls the spent inputs straight out of on-chain
// custody and parks their basis under the loan id in suspended, with no
// disposal and no gain: a loan movement isn't a sale, it's an
// (expected-to-be-temporary) change of custody.
func (s *State) suspendLoanBasis(suspended map[amount.Asset]*blockchain.Account, tx wallet.Tx) {
	u := s.utxoFor(tx.Asset)
	dst := accountFor(suspended, tx.Asset).Entry(tx.LoanID)
	for _, in := range inputsFor(tx) {
		f, ok := u.Take(in)
		if !ok {
			continue
		}
		for _, lot := range f.Snapshot() {
			dst.Push(lot)
		}
	}
}

func (s *State) walletRate(tx wallet.Tx) decimal.Decimal {
	if tx.HasOverrideRate {
		return tx.ExchangeRate
	}
	rate, ok := s.rateAt(tx.TxID, tx.Asset, tx.Time)
	if !ok {
		return decimal.Zero
	}
	return rate
}

func sumOutputs(tx wallet.Tx) amount.KrakenAmount {
	total := amount.Zero(tx.Asset)
	for _, o := range tx.Outputs {
		total = total.Add(o.Amount)
	}
	return total
}

// inputsFor maps a Tx's inputs onto the outpoints they spend.
func inputsFor(tx wallet.Tx) []blockchain.Outpoint {
	ins := make([]blockchain.Outpoint, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		ins = append(ins, blockchain.Outpoint{TxID: in.PrevTxID, Index: in.PrevVout})
	}
	return ins
}

// destinationsFor maps a Tx's outputs onto custody destinations keyed by
// the outpoint they create.
func destinationsFor(tx wallet.Tx) []blockchain.Destination[blockchain.Outpoint] {
	dsts := make([]blockchain.Destination[blockchain.Outpoint], 0, len(tx.Outputs))
	for _, o := range tx.Outputs {
		dsts = append(dsts, blockchain.Destination[blockchain.Outpoint]{
			Key:    blockchain.Outpoint{TxID: tx.TxID, Index: o.Index},
			Mine:   o.Mine,
			Amount: o.Amount,
		})
	}
	return dsts
}
