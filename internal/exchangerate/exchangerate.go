// Package exchangerate loads and queries a time-keyed exchange rate
// database: one CSV file per asset, each row a (timestamp, rate) sample.
// Rust's original kept a BTreeMap<DateTime<Utc>, Decimal> per asset and did
// a "nearest time at or before" lookup; Go has no ordered map, so each
// asset's samples are loaded into a slice sorted by time and queried with
// sort.Search.
package exchangerate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/amount"
)

// sample is one (time, rate) observation. Rate is USD per one unit of the
// asset.
type sample struct {
	t    time.Time
	rate decimal.Decimal
}

// DB holds the loaded per-asset rate history and answers nearest-below
// lookups.
type DB struct {
	series     map[amount.Asset][]sample
	granularity map[amount.Asset]time.Duration
}

// Load reads one CSV file per asset out of dir. Each file is named
// "<ASSET>.csv" and has two columns: an RFC3339 timestamp and a decimal
// USD rate. Files for assets with no history (e.g. USD itself) may be
// absent.
func Load(dir string) (*DB, error) {
	db := &DB{
		series:      make(map[amount.Asset][]sample),
		granularity: make(map[amount.Asset]time.Duration),
	}
	if dir == "" {
		return db, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading exchange rate directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		code := strings.TrimSuffix(entry.Name(), ".csv")
		asset, err := amount.ParseAsset(code)
		if err != nil {
			continue
		}
		samples, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].t.Before(samples[j].t) })
		db.series[asset] = samples
		db.granularity[asset] = detectGranularity(samples)
	}
	return db, nil
}

func loadFile(path string) ([]sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out []sample
	first := true
	for {
		rec, err := r.Read()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			if len(rec) == 0 {
				break
			}
			return nil, err
		}
		if first {
			first = false
			if len(rec) >= 2 && !looksLikeTimestamp(rec[0]) {
				// header row
				continue
			}
		}
		if len(rec) < 2 {
			continue
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("bad rate %q: %w", rec[1], err)
		}
		out = append(out, sample{t: t, rate: rate})
	}
	return out, nil
}

func looksLikeTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	return err == nil
}

// detectGranularity finds the smallest gap between consecutive samples,
// which is assumed to be the database's uniform sampling interval. An empty
// or single-sample series has no detectable granularity.
func detectGranularity(samples []sample) time.Duration {
	if len(samples) < 2 {
		return 0
	}
	min := samples[1].t.Sub(samples[0].t)
	for i := 2; i < len(samples); i++ {
		gap := samples[i].t.Sub(samples[i-1].t)
		if gap < min {
			min = gap
		}
	}
	return min
}

// RateAt returns the rate in effect at t: the most recent sample at or
// before t (an inclusive "bucket" lookup, not strict interpolation). It
// returns an error if t is before the asset's earliest sample or if the
// asset has no history at all.
func (db *DB) RateAt(asset amount.Asset, t time.Time) (decimal.Decimal, error) {
	if asset == amount.AssetUSD {
		return decimal.NewFromInt(1), nil
	}
	series := db.series[asset]
	if len(series) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no exchange rate history for %s", asset)
	}
	// sort.Search finds the first index whose sample time is AFTER t; the
	// bucket we want is the one immediately before that index.
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].t.After(t)
	})
	if idx == 0 {
		return decimal.Decimal{}, fmt.Errorf("no exchange rate for %s before %s (earliest sample %s)", asset, t, series[0].t)
	}
	return series[idx-1].rate, nil
}

// Granularity returns the detected sampling interval for asset, or zero if
// unknown.
func (db *DB) Granularity(asset amount.Asset) time.Duration {
	return db.granularity[asset]
}

// Convert converts an amount of one asset into another at time t, going
// through USD as the common unit.
func (db *DB) Convert(k amount.KrakenAmount, to amount.Asset, t time.Time) (amount.KrakenAmount, error) {
	if k.Asset() == to {
		return k, nil
	}
	fromRate, err := db.RateAt(k.Asset(), t)
	if err != nil {
		return amount.KrakenAmount{}, err
	}
	usd := k.ConvertUSD(fromRate)
	if to == amount.AssetUSD {
		return usd, nil
	}
	toRate, err := db.RateAt(to, t)
	if err != nil {
		return amount.KrakenAmount{}, err
	}
	if toRate.IsZero() {
		return amount.KrakenAmount{}, fmt.Errorf("zero exchange rate for %s at %s", to, t)
	}
	return amount.New(to, usd.Decimal().Div(toRate)), nil
}
