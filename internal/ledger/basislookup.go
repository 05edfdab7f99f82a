package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

// BasisLookupRow is one user assertion of cost basis for a deposit:
// synthetic_id,time,asset,amount,exchange_rate.
type BasisLookupRow struct {
	SyntheticID  string
	Time         time.Time
	Asset        amount.Asset
	Amount       amount.KrakenAmount
	ExchangeRate decimal.Decimal
}

func ReadBasisLookup(r io.Reader) ([]BasisLookupRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading basis lookup header: %w", err)
	}
	idx, err := columnIndex(header, "synthetic_id", "time", "asset", "amount", "exchange_rate")
	if err != nil {
		return nil, err
	}
	var out []BasisLookupRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading basis lookup row: %w", err)
		}
		t, err := time.Parse(ledgerTimeLayout, rec[idx["time"]])
		if err != nil {
			return nil, fmt.Errorf("bad basis lookup time %q: %w", rec[idx["time"]], err)
		}
		asset, err := amount.ParseAsset(rec[idx["asset"]])
		if err != nil {
			return nil, err
		}
		amt, err := amount.Parse(asset, rec[idx["amount"]])
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(rec[idx["exchange_rate"]])
		if err != nil {
			return nil, fmt.Errorf("bad exchange_rate %q: %w", rec[idx["exchange_rate"]], err)
		}
		out = append(out, BasisLookupRow{
			SyntheticID:  rec[idx["synthetic_id"]],
			Time:         t,
			Asset:        asset,
			Amount:       amt,
			ExchangeRate: rate,
		})
	}
	return out, nil
}
