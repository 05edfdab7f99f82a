package exchangerate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dcdpr/taxcount/internal/amount"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %s", err)
	}
}

func TestRateAtNearestBelow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTC.csv",
		"time,rate\n"+
			"2023-01-01T00:00:00Z,20000\n"+
			"2023-01-02T00:00:00Z,21000\n"+
			"2023-01-03T00:00:00Z,22000\n")

	db, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	mid, _ := time.Parse(time.RFC3339, "2023-01-02T12:00:00Z")
	rate, err := db.RateAt(amount.AssetBTC, mid)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got := rate.String(); got != "21000" {
		t.Errorf("rate at mid-bucket = %s, want 21000 (nearest-below)", got)
	}
}

func TestRateAtBeforeEarliestSample(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTC.csv", "time,rate\n2023-01-01T00:00:00Z,20000\n")

	db, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	before, _ := time.Parse(time.RFC3339, "2022-12-31T00:00:00Z")
	if _, err := db.RateAt(amount.AssetBTC, before); err == nil {
		t.Fatal("expected error for time before earliest sample")
	}
}

func TestUSDIsAlwaysOne(t *testing.T) {
	db, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	rate, err := db.RateAt(amount.AssetUSD, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !rate.Equal(rate.Floor()) || rate.String() != "1" {
		t.Errorf("USD rate = %s, want 1", rate)
	}
}
