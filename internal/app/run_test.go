package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
	"github.com/dcdpr/taxcount/internal/exchangerate"
	"github.com/dcdpr/taxcount/internal/gains"
)

// TestResidencyFuncSplitsStraddlingGainAtMoveDateValue mirrors the spec's
// straddle-residency scenario: a holding period that spans the bona fide
// residency move date splits its gain at the asset's value on the move
// date itself, not pro rata by time held.
func TestResidencyFuncSplitsStraddlingGainAtMoveDateValue(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "BTC.csv"),
		[]byte("time,rate\n2022-07-01T00:00:00Z,3000\n"),
		0o644); err != nil {
		t.Fatal(err)
	}
	db, err := exchangerate.Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	move := time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)
	residency := residencyFunc(&move, db)

	e := gains.Event{
		Kind:            gains.EventTradeAtom,
		Asset:           amount.AssetBTC,
		Amount:          amount.New(amount.AssetBTC, decimal.NewFromInt(1)),
		AcquiredAt:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		AcquisitionRate: decimal.NewFromInt(1000),
		Time:            time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		ExchangeRate:    decimal.NewFromInt(4000),
		Term:            gains.TermLong,
	}

	us, territory := residency(e)
	var m gains.GainMatrix
	m.Add(e, us, territory)

	if got := m.LongUS.StringFixed(0); got != "2000" {
		t.Errorf("LongUS = %s, want 2000 (3000 move value - 1000 basis)", got)
	}
	if got := m.LongTerritory.StringFixed(0); got != "1000" {
		t.Errorf("LongTerritory = %s, want 1000 (4000 proceeds - 3000 move value)", got)
	}
}

// TestResidencyFuncWhollyUSBeforeMove checks that a disposal occurring
// entirely before the move date attributes its whole gain to the US,
// regardless of when its basis was acquired.
func TestResidencyFuncWhollyUSBeforeMove(t *testing.T) {
	move := time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)
	residency := residencyFunc(&move, nil)

	e := gains.Event{
		Time:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		AcquiredAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	us, territory := residency(e)
	if !us.Equal(decimal.NewFromInt(1)) || !territory.IsZero() {
		t.Errorf("us=%s territory=%s, want 1/0", us, territory)
	}
}

// TestResidencyFuncWhollyTerritoryAfterMove checks that a disposal whose
// basis was also acquired on or after the move date is wholly
// territory-sourced.
func TestResidencyFuncWhollyTerritoryAfterMove(t *testing.T) {
	move := time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)
	residency := residencyFunc(&move, nil)

	e := gains.Event{
		Time:       time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		AcquiredAt: time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	us, territory := residency(e)
	if !us.IsZero() || !territory.Equal(decimal.NewFromInt(1)) {
		t.Errorf("us=%s territory=%s, want 0/1", us, territory)
	}
}
