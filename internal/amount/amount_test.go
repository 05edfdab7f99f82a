package amount

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAssetAliases(t *testing.T) {
	tests := []struct {
		code string
		want Asset
	}{
		{"BTC", AssetBTC},
		{"XBT", AssetBTC},
		{"xxbt", AssetBTC},
		{"ZUSD", AssetUSD},
		{"zeur", AssetEUR},
		{"USDC", AssetUSDC},
	}
	for _, tt := range tests {
		got, err := ParseAsset(tt.code)
		if err != nil {
			t.Fatalf("ParseAsset(%q) error: %s", tt.code, err)
		}
		if got != tt.want {
			t.Errorf("ParseAsset(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestParseAssetUnknown(t *testing.T) {
	if _, err := ParseAsset("DOGE"); err == nil {
		t.Fatal("expected error for unrecognized asset code")
	}
}

func TestNewRoundsToPrecision(t *testing.T) {
	btc := New(AssetBTC, decimal.RequireFromString("1.123456789"))
	if got := btc.Decimal().String(); got != "1.12345679" {
		t.Errorf("BTC rounded to 8dp = %s, want 1.12345679", got)
	}

	jpy := New(AssetJPY, decimal.RequireFromString("100.5"))
	if got := jpy.Decimal().String(); got != "100" {
		t.Errorf("JPY rounded to 0dp (banker's round-half-to-even) = %s, want 100", got)
	}
}

func TestAddSubRequireSameAsset(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on asset mismatch")
		}
	}()
	a := New(AssetBTC, decimal.NewFromInt(1))
	b := New(AssetUSD, decimal.NewFromInt(1))
	a.Add(b)
}

func TestAddSubNeg(t *testing.T) {
	a := New(AssetUSD, decimal.NewFromInt(10))
	b := New(AssetUSD, decimal.NewFromInt(3))
	if got := a.Sub(b).Decimal().String(); got != "7" {
		t.Errorf("10 - 3 = %s, want 7", got)
	}
	if got := a.Neg().Decimal().String(); got != "-10" {
		t.Errorf("-10 = %s, want -10", got)
	}
}

func TestConvertUSD(t *testing.T) {
	btc := New(AssetBTC, decimal.NewFromInt(2))
	usd := btc.ConvertUSD(decimal.NewFromInt(30000))
	if got := usd.Decimal().String(); got != "60000" {
		t.Errorf("2 BTC * 30000 = %s, want 60000", got)
	}
	if usd.Asset() != AssetUSD {
		t.Errorf("ConvertUSD asset = %v, want USD", usd.Asset())
	}
}
