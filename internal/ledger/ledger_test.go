package ledger

import (
	"strings"
	"testing"

	"github.com/dcdpr/taxcount/internal/amount"
)

func TestGetPair(t *testing.T) {
	p, err := GetPair("XBTUSD")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if p.Base != amount.AssetBTC || p.Quote != amount.AssetUSD {
		t.Errorf("XBTUSD = %+v, want BTC/USD", p)
	}
}

func TestGetPairUnknown(t *testing.T) {
	if _, err := GetPair("DOGEUSD"); err == nil {
		t.Fatal("expected error for unknown pair")
	}
}

func TestReadRawRows(t *testing.T) {
	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-01-01 00:00:00,trade,,currency,XBT,1.0,0,1.0\n" +
		"T2,R1,2023-01-01 00:00:00,trade,,currency,ZUSD,-20000,10,0\n"
	rows, err := ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Asset != amount.AssetBTC {
		t.Errorf("row 0 asset = %v, want BTC", rows[0].Asset)
	}
}

func TestParseRowsGroupsTradeByRefID(t *testing.T) {
	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-01-01 00:00:00,trade,,currency,XBT,1.0,0,1.0\n" +
		"T2,R1,2023-01-01 00:00:00,trade,,currency,ZUSD,-20000,10,0\n"
	rows, err := ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 parsed event, got %d", len(parsed))
	}
	if parsed[0].Kind != KindTrade {
		t.Errorf("kind = %v, want Trade", parsed[0].Kind)
	}
	if parsed[0].RowIn == nil || parsed[0].RowOut == nil {
		t.Fatal("expected both in and out legs resolved")
	}
}

func TestParseRowsDegenerateMarginClose(t *testing.T) {
	csv := "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance\n" +
		"T1,R1,2023-01-01 00:00:00,margin,close,currency,ZUSD,500,0,500\n"
	rows, err := ReadRawRows(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	parsed, err := ParseRows(rows, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(parsed) != 1 || !parsed[0].Degenerate {
		t.Fatalf("expected a degenerate single-row margin close, got %+v", parsed)
	}
}
