package gains

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

func TestComputeTermShort(t *testing.T) {
	acquired := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	disposed := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	if ComputeTerm(acquired, disposed) != TermShort {
		t.Error("disposal within a year of acquisition should be short-term")
	}
}

func TestComputeTermLong(t *testing.T) {
	acquired := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	disposed := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	if ComputeTerm(acquired, disposed) != TermLong {
		t.Error("disposal more than a year after acquisition should be long-term")
	}
}

func TestComputeTermBoundary(t *testing.T) {
	acquired := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	// Exactly one year later is still short-term; the holding period must
	// exceed one year, per 26 U.S.C. 1222.
	disposed := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if ComputeTerm(acquired, disposed) != TermShort {
		t.Error("disposal exactly one year after acquisition should still be short-term")
	}
}

func TestEventGainUSD(t *testing.T) {
	e := Event{
		Kind:            EventTradeAtom,
		Asset:           amount.AssetBTC,
		Amount:          amount.New(amount.AssetBTC, decimal.NewFromInt(1)),
		ExchangeRate:    decimal.NewFromInt(30000),
		AcquisitionRate: decimal.NewFromInt(10000),
	}
	if got := e.GainUSD().String(); got != "20000" {
		t.Errorf("gain = %s, want 20000", got)
	}
}

func TestGainMatrixAddSplitsByTermAndSourcing(t *testing.T) {
	var m GainMatrix
	shortEvent := Event{
		Kind: EventTradeAtom, Term: TermShort,
		Amount: amount.New(amount.AssetBTC, decimal.NewFromInt(1)),
		ExchangeRate: decimal.NewFromInt(100), AcquisitionRate: decimal.NewFromInt(40),
	}
	m.Add(shortEvent, decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.5))
	if !m.ShortUS.Equal(decimal.NewFromInt(30)) {
		t.Errorf("ShortUS = %s, want 30", m.ShortUS)
	}
	if !m.ShortTerritory.Equal(decimal.NewFromInt(30)) {
		t.Errorf("ShortTerritory = %s, want 30", m.ShortTerritory)
	}
}

func TestApplyInterestExpensesCapsAgainstShortThenLong(t *testing.T) {
	m := GainMatrix{
		ShortUS: decimal.NewFromInt(100),
		LongUS:  decimal.NewFromInt(50),
	}
	carry := m.ApplyInterestExpenses(decimal.NewFromInt(120))
	if !m.ShortUS.IsZero() {
		t.Errorf("ShortUS should be fully absorbed, got %s", m.ShortUS)
	}
	if !m.LongUS.Equal(decimal.NewFromInt(30)) {
		t.Errorf("LongUS after absorbing remaining 20 = %s, want 30", m.LongUS)
	}
	if !carry.IsZero() {
		t.Errorf("expected no carryover, got %s", carry)
	}
}

func TestApplyInterestExpensesCarriesOverWhenExceedsAllGains(t *testing.T) {
	m := GainMatrix{ShortUS: decimal.NewFromInt(10)}
	carry := m.ApplyInterestExpenses(decimal.NewFromInt(50))
	if !carry.Equal(decimal.NewFromInt(40)) {
		t.Errorf("carryover = %s, want 40", carry)
	}
}

func TestCheckListExecuteFailsOnAnyError(t *testing.T) {
	cl := &CheckList{}
	cl.Add(Event{WorksheetName: "kraken"})
	cl.AddError(PriceError{TxID: "abc", Cause: errTest{}})
	if _, err := cl.Execute(); err == nil {
		t.Fatal("expected CheckListError when errors are present")
	}
}

func TestCheckListExecuteGroupsByWorksheet(t *testing.T) {
	cl := &CheckList{}
	cl.Add(Event{WorksheetName: "kraken"})
	cl.Add(Event{WorksheetName: "wallet"})
	cl.Add(Event{WorksheetName: "kraken"})
	grouped, err := cl.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(grouped["kraken"]) != 2 {
		t.Errorf("expected 2 kraken events, got %d", len(grouped["kraken"]))
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
