package basis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

func TestSplittableTakeWhileExactLot(t *testing.T) {
	arena := NewArena()
	f := NewFIFO(amount.AssetBTC)

	id1 := arena.NewRoot(OriginBase, time.Now(), decimal.NewFromInt(20000), "lot1")
	f.Push(PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.NewFromInt(1)), Origin: id1})

	taken, err := f.SplittableTakeWhile(amount.New(amount.AssetBTC, decimal.NewFromInt(1)))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(taken) != 1 {
		t.Fatalf("expected 1 lot taken, got %d", len(taken))
	}
	if f.Len() != 0 {
		t.Errorf("expected queue empty after exact take, got %d items", f.Len())
	}
}

func TestSplittableTakeWhileSplitsLot(t *testing.T) {
	arena := NewArena()
	f := NewFIFO(amount.AssetBTC)

	id1 := arena.NewRoot(OriginBase, time.Now(), decimal.NewFromInt(20000), "lot1")
	f.Push(PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.NewFromInt(2)), Origin: id1})

	taken, err := f.SplittableTakeWhile(amount.New(amount.AssetBTC, decimal.RequireFromString("0.5")))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(taken) != 1 {
		t.Fatalf("expected 1 lot taken, got %d", len(taken))
	}
	if got := f.Total().Decimal().String(); got != "1.5" {
		t.Errorf("remaining balance = %s, want 1.5", got)
	}
}

func TestSplittableTakeWhileSpansMultipleLots(t *testing.T) {
	arena := NewArena()
	f := NewFIFO(amount.AssetBTC)

	id1 := arena.NewRoot(OriginBase, time.Now(), decimal.NewFromInt(10000), "lot1")
	id2 := arena.NewRoot(OriginBase, time.Now(), decimal.NewFromInt(20000), "lot2")
	f.Push(PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.5")), Origin: id1})
	f.Push(PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.RequireFromString("0.5")), Origin: id2})

	taken, err := f.SplittableTakeWhile(amount.New(amount.AssetBTC, decimal.RequireFromString("0.75")))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(taken) != 2 {
		t.Fatalf("expected 2 lots taken (one whole, one split), got %d", len(taken))
	}
	if got := f.Total().Decimal().String(); got != "0.25" {
		t.Errorf("remaining balance = %s, want 0.25", got)
	}
	// FIFO order: first lot fully consumed, second lot partially.
	if taken[0].Origin != id1 {
		t.Errorf("first consumed lot should be the oldest (id1)")
	}
}

func TestSplittableTakeWhileInsufficientBalance(t *testing.T) {
	arena := NewArena()
	f := NewFIFO(amount.AssetBTC)
	id1 := arena.NewRoot(OriginBase, time.Now(), decimal.NewFromInt(10000), "lot1")
	f.Push(PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.NewFromInt(1)), Origin: id1})

	if _, err := f.SplittableTakeWhile(amount.New(amount.AssetBTC, decimal.NewFromInt(2))); err == nil {
		t.Fatal("expected insufficient balance error")
	}
}

func TestArenaResolvesSplitAncestry(t *testing.T) {
	arena := NewArena()
	acquired := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	rootID := arena.NewRoot(OriginTradeBuy, acquired, decimal.NewFromInt(100), "root")

	p := PoolAsset{Amount: amount.New(amount.AssetBTC, decimal.NewFromInt(2)), Origin: rootID}
	half := p.Split(arena, amount.New(amount.AssetBTC, decimal.NewFromInt(1)))

	if arena.AcquiredAt(half.Origin) != acquired {
		t.Errorf("split asset should inherit parent's acquisition time")
	}
	if !arena.ExchangeRateAtAcquisition(half.Origin).Equal(decimal.NewFromInt(100)) {
		t.Errorf("split asset should inherit parent's exchange rate")
	}
	if got := p.Amount.Decimal().String(); got != "1" {
		t.Errorf("original asset should shrink to 1, got %s", got)
	}
}
