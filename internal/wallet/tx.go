// Package wallet models on-chain transactions and the tags that classify
// them for tax purposes: which wallets are "ours", whether a transfer
// moves value between our own addresses or actually realizes income/gain,
// and (for margin/loan activity) which side of a loan a transaction
// represents.
package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

// TxType classifies a transaction for tax treatment, resolved from the Tx
// Tags CSV (an untagged transaction defaults to TxTypeSpend).
type TxType int

const (
	TxTypeTrade TxType = iota
	TxTypeSpam
	TxTypeIncome
	TxTypeCapGain
	TxTypeLoanCapitalBorrower
	TxTypeLoanCollateralBorrower
	TxTypeLoanCapitalLender
	TxTypeLoanCollateralLender
	TxTypeFork
	TxTypeLost
	TxTypeGift
	TxTypeDonation
	TxTypeSpend
)

var txTypeNames = map[string]TxType{
	"trade":                    TxTypeTrade,
	"spam":                     TxTypeSpam,
	"income":                   TxTypeIncome,
	"capgain":                  TxTypeCapGain,
	"loan_capital_borrower":    TxTypeLoanCapitalBorrower,
	"loan_collateral_borrower": TxTypeLoanCollateralBorrower,
	"loan_capital_lender":      TxTypeLoanCapitalLender,
	"loan_collateral_lender":   TxTypeLoanCollateralLender,
	"fork":                     TxTypeFork,
	"lost":                     TxTypeLost,
	"gift":                     TxTypeGift,
	"donation":                 TxTypeDonation,
	"spend":                    TxTypeSpend,
}

func ParseTxType(s, txid string) (TxType, error) {
	t, ok := txTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("tx %s: unrecognized tx_type %q", txid, s)
	}
	return t, nil
}

// LoanRole identifies which side of a loan (if any) a transaction plays.
type LoanRole int

const (
	LoanRoleNone LoanRole = iota
	LoanRoleBorrowerCapital
	LoanRoleBorrowerCollateral
	LoanRoleLenderCapital
	LoanRoleLenderCollateral
)

// LoanRole derives the LoanRole implied by a TxType, if any.
func (t TxType) LoanRole() LoanRole {
	switch t {
	case TxTypeLoanCapitalBorrower:
		return LoanRoleBorrowerCapital
	case TxTypeLoanCollateralBorrower:
		return LoanRoleBorrowerCollateral
	case TxTypeLoanCapitalLender:
		return LoanRoleLenderCapital
	case TxTypeLoanCollateralLender:
		return LoanRoleLenderCollateral
	default:
		return LoanRoleNone
	}
}

// Direction classifies a wallet transaction by the net effect it has on
// tracked balances.
type Direction int

const (
	DirTransfer Direction = iota // moves value between our own tracked addresses
	DirReceive                   // value enters tracked custody from outside
	DirSpend                     // value leaves tracked custody to outside
)

func (d Direction) String() string {
	switch d {
	case DirTransfer:
		return "transfer"
	case DirReceive:
		return "receive"
	case DirSpend:
		return "spend"
	default:
		return "unknown"
	}
}

// Txi is one input of a transaction: the outpoint it spends.
type Txi struct {
	PrevTxID string
	PrevVout uint32
}

// Txo is one output of a transaction.
type Txo struct {
	Index   uint32
	Address string
	Amount  amount.KrakenAmount
	Mine    bool // true if Address belongs to a tracked wallet
}

// Tx is the resolved, typed view of a blockchain transaction, ready for
// the event resolver to classify and book.
type Tx struct {
	TxID      string
	Asset     amount.Asset
	Time      time.Time
	Inputs    []Txi
	Outputs   []Txo
	Direction Direction
	Type      TxType
	LoanID    string
	AccountName string
	Note      string

	// ExchangeRate, when set by a Tx Tags row, overrides the exchange-rate
	// database lookup for this transaction's valuation (e.g. for an income
	// event whose fair-market-value the user already knows precisely).
	ExchangeRate decimal.Decimal
	HasOverrideRate bool
}

// Tag is one row of the Tx Tags CSV:
// tx_type,txid,exchange_rate_asset,exchange_rate,loan_id.
type Tag struct {
	Type             TxType
	TxID             string
	ExchangeRateAsset amount.Asset
	ExchangeRate     decimal.Decimal
	LoanID           string
}
