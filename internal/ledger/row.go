// Package ledger parses the exchange ledger and trades CSVs into a typed
// grammar of trade/margin/deposit/withdrawal rows, grouping the ledger's
// raw two-row (and sometimes one-row) entries into the higher-level events
// the resolver consumes.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

const ledgerTimeLayout = "2006-01-02 15:04:05"

// RawRow is one row of the ledger CSV, columns as specified:
// txid,refid,time,type,subtype,aclass,asset,amount,fee,balance.
type RawRow struct {
	TxID    string
	RefID   string
	Time    time.Time
	Type    string
	Subtype string
	AClass  string
	Asset   amount.Asset
	Amount  amount.KrakenAmount
	Fee     amount.KrakenAmount
	Balance amount.KrakenAmount
}

// ReadRawRows parses the ledger CSV from r.
func ReadRawRows(r io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading ledger header: %w", err)
	}
	idx, err := columnIndex(header, "txid", "refid", "time", "type", "subtype", "aclass", "asset", "amount", "fee", "balance")
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ledger row: %w", err)
		}
		t, err := time.Parse(ledgerTimeLayout, rec[idx["time"]])
		if err != nil {
			return nil, fmt.Errorf("bad ledger time %q: %w", rec[idx["time"]], err)
		}
		asset, err := amount.ParseAsset(rec[idx["asset"]])
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", rec[idx["txid"]], err)
		}
		amt, err := amount.Parse(asset, rec[idx["amount"]])
		if err != nil {
			return nil, err
		}
		fee, err := amount.Parse(asset, rec[idx["fee"]])
		if err != nil {
			return nil, err
		}
		bal, err := amount.Parse(asset, rec[idx["balance"]])
		if err != nil {
			return nil, err
		}
		rows = append(rows, RawRow{
			TxID:    rec[idx["txid"]],
			RefID:   rec[idx["refid"]],
			Time:    t,
			Type:    rec[idx["type"]],
			Subtype: rec[idx["subtype"]],
			AClass:  rec[idx["aclass"]],
			Asset:   asset,
			Amount:  amt,
			Fee:     fee,
			Balance: bal,
		})
	}
	return rows, nil
}

func columnIndex(header []string, want ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing required column %q", w)
		}
	}
	return idx, nil
}

// RawTrade is one row of the trades CSV: txid,ordertxid,pair,time,type,
// ordertype,price,cost,fee,vol,margin,misc,ledgers.
type RawTrade struct {
	TxID      string
	OrderTxID string
	Pair      string
	Time      time.Time
	Type      string // "buy" or "sell"
	OrderType string
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Fee       decimal.Decimal
	Vol       decimal.Decimal
	Margin    decimal.Decimal
	Misc      []string
	Ledgers   []string
	Closing   bool
}

func ReadRawTrades(r io.Reader) ([]RawTrade, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading trades header: %w", err)
	}
	idx, err := columnIndex(header, "txid", "ordertxid", "pair", "time", "type", "ordertype", "price", "cost", "fee", "vol", "margin", "misc", "ledgers")
	if err != nil {
		return nil, err
	}

	var trades []RawTrade
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading trade row: %w", err)
		}
		t, err := time.Parse(ledgerTimeLayout, rec[idx["time"]])
		if err != nil {
			return nil, fmt.Errorf("bad trade time %q: %w", rec[idx["time"]], err)
		}
		parseDec := func(col string) decimal.Decimal {
			d, _ := decimal.NewFromString(rec[idx[col]])
			return d
		}
		misc := splitNonEmpty(rec[idx["misc"]])
		trades = append(trades, RawTrade{
			TxID:      rec[idx["txid"]],
			OrderTxID: rec[idx["ordertxid"]],
			Pair:      rec[idx["pair"]],
			Time:      t,
			Type:      rec[idx["type"]],
			OrderType: rec[idx["ordertype"]],
			Price:     parseDec("price"),
			Cost:      parseDec("cost"),
			Fee:       parseDec("fee"),
			Vol:       parseDec("vol"),
			Margin:    parseDec("margin"),
			Misc:      misc,
			Ledgers:   splitNonEmpty(rec[idx["ledgers"]]),
			Closing:   containsString(misc, "closing"),
		})
	}
	return trades, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
