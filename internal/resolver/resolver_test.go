package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/basis"
	"github.com/dcdpr/taxcount/internal/blockchain"
	"github.com/dcdpr/taxcount/internal/exchangerate"
	"github.com/dcdpr/taxcount/internal/ledger"
	"github.com/dcdpr/taxcount/internal/wallet"
)

func mustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestDB(t *testing.T) *exchangerate.DB {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "BTC.csv"),
		[]byte("time,rate\n2022-01-01T00:00:00Z,10000\n2023-06-01T00:00:00Z,30000\n"),
		0o644); err != nil {
		t.Fatal(err)
	}
	db, err := exchangerate.Load(dir)
	if err != nil {
		t.Fatalf("loading exchange rate db: %s", err)
	}
	return db
}

func TestResolveTradeProducesDisposalEvent(t *testing.T) {
	db := newTestDB(t)
	state := NewState(db)

	// Seed a BTC lot acquired via a prior deposit, then dispose of half of
	// it in a trade.
	rate, _ := db.RateAt(amount.AssetBTC, mustParse("2022-06-01T00:00:00Z"))
	state.acquirePoolAsset(0, "seed", amount.New(amount.AssetBTC, decimal.NewFromInt(1)), mustParse("2022-06-01T00:00:00Z"), rate)

	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-06-01 00:00:00,trade,,currency,XBT,-0.5,0,0.5\n" +
		"T2,R1,2023-06-01 00:00:00,trade,,currency,ZUSD,15000,0,15000\n"
	rows, err := ledger.ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ledger.ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	state.Resolve(parsed, nil)

	grouped, err := state.CheckList.Execute()
	if err != nil {
		t.Fatalf("unexpected checklist error: %s", err)
	}
	events := grouped["kraken"]
	if len(events) != 1 {
		t.Fatalf("expected 1 disposal event, got %d", len(events))
	}
	if got := events[0].GainUSD().String(); got != "10000" {
		t.Errorf("gain = %s, want 10000 (0.5 BTC * (30000-10000))", got)
	}
}

func TestResolveInsufficientBalanceRecordsError(t *testing.T) {
	db := newTestDB(t)
	state := NewState(db)

	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-06-01 00:00:00,trade,,currency,XBT,-1.0,0,0\n" +
		"T2,R1,2023-06-01 00:00:00,trade,,currency,ZUSD,30000,0,30000\n"
	rows, err := ledger.ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ledger.ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	state.Resolve(parsed, nil)
	if _, err := state.CheckList.Execute(); err == nil {
		t.Fatal("expected insufficient-balance error since no BTC was ever acquired")
	}
}

// TestResolveWalletTransferFeeConsumesNewerUTXOFirst mirrors the spec's
// transfer-fee scenario end to end through the scheduler: two on-chain
// inputs acquired at different basis, one output smaller than their
// total. The unsatisfied remainder should book as a fee atom (no
// proceeds, gain = -basis) consuming the newer UTXO first.
func TestResolveWalletTransferFeeConsumesNewerUTXOFirst(t *testing.T) {
	db := newTestDB(t)
	state := NewState(db)

	older := mustParse("2012-01-01T00:00:00Z")
	newer := mustParse("2014-01-01T00:00:00Z")
	oldID := state.Arena.NewRoot(basis.OriginBase, older, decimal.RequireFromString("103.13"), "old")
	newID := state.Arena.NewRoot(basis.OriginBase, newer, decimal.RequireFromString("230.82"), "new")

	u := state.utxoFor(amount.AssetBTC)
	in1 := blockchain.Outpoint{TxID: "abc", Index: 1}
	in2 := blockchain.Outpoint{TxID: "012", Index: 0}
	u.Entry(in1).Push(basis.PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.05")), Origin: oldID})
	u.Entry(in2).Push(basis.PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.18")), Origin: newID})

	tx := wallet.Tx{
		TxID:  "TX",
		Asset: amount.AssetBTC,
		Time:  mustParse("2023-06-01T00:00:00Z"),
		Inputs: []wallet.Txi{
			{PrevTxID: "abc", PrevVout: 1},
			{PrevTxID: "012", PrevVout: 0},
		},
		Outputs: []wallet.Txo{
			{Index: 0, Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.20")), Mine: true},
		},
		Direction: wallet.DirTransfer,
	}
	state.Resolve(nil, []wallet.Tx{tx})

	grouped, err := state.CheckList.Execute()
	if err != nil {
		t.Fatalf("unexpected checklist error: %s", err)
	}
	events := grouped["wallet"]
	if len(events) != 1 {
		t.Fatalf("expected 1 fee event, got %d", len(events))
	}
	fee := events[0]
	if got := fee.GainUSD().StringFixed(4); got != "-6.9246" {
		t.Errorf("fee gain = %s, want -6.9246", got)
	}
	if !fee.AcquiredAt.Equal(newer) {
		t.Errorf("basis_date = %v, want %v", fee.AcquiredAt, newer)
	}

	dst := u.Entry(blockchain.Outpoint{TxID: "TX", Index: 0})
	if got := dst.Total().Decimal().String(); got != "0.2" {
		t.Errorf("destination total = %s, want 0.2", got)
	}
}

// TestResolveDepositBasisPropagatesFromPendingWalletSpend mirrors the
// spec's deposit-basis-matching scenario: a wallet spend to an exchange
// deposit address, followed a few minutes later by the matching exchange
// deposit row. The deposit should inherit the spend's basis rather than
// be priced fresh, and no income event should appear.
func TestResolveDepositBasisPropagatesFromPendingWalletSpend(t *testing.T) {
	db := newTestDB(t)
	state := NewState(db)

	acquiredAt := mustParse("2022-01-01T00:00:00Z")
	id := state.Arena.NewRoot(basis.OriginBase, acquiredAt, decimal.NewFromInt(20000), "seed")
	in := blockchain.Outpoint{TxID: "seedtx", Index: 0}
	state.utxoFor(amount.AssetBTC).Entry(in).Push(basis.PoolAsset{
		Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.00008000")),
		Origin: id,
	})

	spendTx := wallet.Tx{
		TxID:   "spendtx",
		Asset:  amount.AssetBTC,
		Time:   mustParse("2023-06-01T00:00:00Z"),
		Inputs: []wallet.Txi{{PrevTxID: "seedtx", PrevVout: 0}},
		Outputs: []wallet.Txo{
			{Index: 0, Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.00008000")), Mine: false},
		},
		Direction: wallet.DirSpend,
	}

	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-06-01 00:05:00,deposit,,currency,XBT,0.00008000,0,0.00008000\n"
	rows, err := ledger.ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ledger.ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	state.Resolve(parsed, []wallet.Tx{spendTx})

	grouped, err := state.CheckList.Execute()
	if err != nil {
		t.Fatalf("unexpected checklist error: %s", err)
	}
	if len(grouped["wallet"]) != 0 {
		t.Errorf("expected no income/disposal events from the reconciled spend, got %d", len(grouped["wallet"]))
	}
	if len(state.PendingSpends) != 0 {
		t.Errorf("expected pending spends to be reconciled, got %d remaining", len(state.PendingSpends))
	}
	f, ok := state.ExchangeBalances[amount.AssetBTC]
	if !ok {
		t.Fatal("expected BTC exchange balance to exist after deposit")
	}
	if got := f.Total().Decimal().String(); got != "0.00008" {
		t.Errorf("exchange BTC balance = %s, want 0.00008", got)
	}
	lots := f.Snapshot()
	if len(lots) != 1 || lots[0].Origin != id {
		t.Errorf("expected deposited basis to retain original origin, got %+v", lots)
	}
}

// TestResolveMarginCloseUSDFeeProducesNoGainEvent mirrors the spec's
// margin-close scenario: USD proceeds and a USD fee never produce a
// capital gain/loss event, since USD isn't property with a fluctuating
// cost basis.
func TestResolveMarginCloseUSDFeeProducesNoGainEvent(t *testing.T) {
	db := newTestDB(t)
	state := NewState(db)

	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-06-01 00:00:00,margin,close,currency,ZUSD,500,0,500\n" +
		"T2,R1,2023-06-01 00:00:00,margin,close,currency,ZUSD,0,0.05,0\n"
	rows, err := ledger.ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ledger.ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	state.Resolve(parsed, nil)

	grouped, err := state.CheckList.Execute()
	if err != nil {
		t.Fatalf("unexpected checklist error: %s", err)
	}
	if len(grouped["kraken"]) != 0 {
		t.Errorf("expected no gain events for a USD-denominated margin close, got %d", len(grouped["kraken"]))
	}
	f, ok := state.ExchangeBalances[amount.AssetUSD]
	if !ok {
		t.Fatal("expected USD exchange balance to exist")
	}
	if got := f.Total().Decimal().String(); got != "499.95" {
		t.Errorf("USD balance = %s, want 499.95 (500 acquired - 0.05 fee)", got)
	}
}
