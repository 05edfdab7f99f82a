// Package app wires every component together into the end-to-end run the
// CLI entry point invokes: load inputs, resolve events, partition results
// through the CheckList, and on success render worksheets and save a
// checkpoint.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcdpr/taxcount/internal/checkpoint"
	"github.com/dcdpr/taxcount/internal/config"
	"github.com/dcdpr/taxcount/internal/exchangerate"
	"github.com/dcdpr/taxcount/internal/gains"
	"github.com/dcdpr/taxcount/internal/ledger"
	"github.com/dcdpr/taxcount/internal/logging"
	"github.com/dcdpr/taxcount/internal/resolver"
	"github.com/dcdpr/taxcount/internal/wallet"
)

// Run executes one full taxcount pass against cfg's inputs.
func Run(cfg *config.Config) error {
	logger := logging.GetLogger()

	erdb, err := exchangerate.Load(cfg.Inputs.ExchangeRatesDir)
	if err != nil {
		return fmt.Errorf("loading exchange rate database: %w", err)
	}

	state := resolver.NewState(erdb)
	if cfg.BonaFideResidency != "" {
		t, err := time.Parse("2006-01-02", cfg.BonaFideResidency)
		if err != nil {
			return fmt.Errorf("bad bona fide residency date %q: %w", cfg.BonaFideResidency, err)
		}
		state.BonaFideResidency = &t
	}

	if cfg.Inputs.CheckpointIn != "" {
		doc, err := checkpoint.Load(cfg.Inputs.CheckpointIn)
		if err != nil {
			return fmt.Errorf("loading checkpoint: %w", err)
		}
		doc.Restore(state)
		logger.Infof("resumed from checkpoint %s (latest row time %s)", cfg.Inputs.CheckpointIn, state.LatestRowTime)
	}

	if cfg.Inputs.BasisLookup != "" {
		rows, err := readCSV(cfg.Inputs.BasisLookup, ledger.ReadBasisLookup)
		if err != nil {
			return fmt.Errorf("reading basis lookup: %w", err)
		}
		state.SetBasisLookup(rows)
	}

	ledgerRows, err := readCSV(cfg.Inputs.Ledger, ledger.ReadRawRows)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	var trades []ledger.RawTrade
	if cfg.Inputs.Trades != "" {
		trades, err = readCSV(cfg.Inputs.Trades, ledger.ReadRawTrades)
		if err != nil {
			return fmt.Errorf("reading trades: %w", err)
		}
	}

	parsedLedger, err := ledger.ParseRows(ledgerRows, trades)
	if err != nil {
		return fmt.Errorf("parsing ledger grammar: %w", err)
	}

	walletTxs, err := loadWalletTxs(cfg)
	if err != nil {
		return fmt.Errorf("loading wallet inputs: %w", err)
	}

	if err := ledger.ValidateYears(yearsOf(parsedLedger), yearsOfWallet(walletTxs)); err != nil {
		return fmt.Errorf("validating input years: %w", err)
	}

	logger.Infof("resolving %d ledger event(s) and %d wallet tx(s)", len(parsedLedger), len(walletTxs))
	state.Resolve(parsedLedger, walletTxs)

	byWorksheet, err := state.CheckList.Execute()
	if err != nil {
		return err
	}

	var events []gains.Event
	for _, es := range byWorksheet {
		events = append(events, es...)
	}
	residency := residencyFunc(state.BonaFideResidency, erdb)
	worksheets := gains.BuildWorksheets(events, residency)

	if cfg.Outputs.WorksheetDir != "" {
		if err := os.MkdirAll(cfg.Outputs.WorksheetDir, 0o755); err != nil {
			return fmt.Errorf("creating worksheet directory: %w", err)
		}
		for _, w := range worksheets {
			path := filepath.Join(cfg.Outputs.WorksheetDir, fmt.Sprintf("%s-%s.csv", cfg.Outputs.WorksheetPrefix, w.Name))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating worksheet %s: %w", path, err)
			}
			err = w.WriteCSV(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("writing worksheet %s: %w", path, err)
			}
			logger.Infof("wrote worksheet %s", path)
		}
	}

	if cfg.Outputs.CheckpointOut != "" {
		doc := checkpoint.FromState(state)
		if err := checkpoint.Save(cfg.Outputs.CheckpointOut, doc); err != nil {
			return fmt.Errorf("saving checkpoint: %w", err)
		}
		logger.Infof("saved checkpoint to %s", cfg.Outputs.CheckpointOut)
	}

	return nil
}

// residencyFunc returns, for a given Event, the (US, territory) fraction
// split of its gain. A disposal that occurred before the move date is
// wholly US-sourced; one whose basis was also acquired on or after the
// move date is wholly territory-sourced; a holding period that straddles
// the move date splits the gain at the asset's value on the move date
// itself, per 26 U.S.C. 937 sourcing rules. Absent a configured move
// date, every disposal is entirely US-sourced.
func residencyFunc(move *time.Time, erdb *exchangerate.DB) func(gains.Event) (decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	zero := decimal.Zero
	return func(e gains.Event) (decimal.Decimal, decimal.Decimal) {
		if move == nil || e.Time.Before(*move) {
			return one, zero
		}
		if !e.AcquiredAt.Before(*move) {
			return zero, one
		}
		gain := e.GainUSD()
		if gain.IsZero() {
			return zero, zero
		}
		valueAtMove, err := erdb.RateAt(e.Asset, *move)
		if err != nil {
			return one, zero
		}
		usGain := e.Amount.Decimal().Abs().Mul(valueAtMove).Sub(e.BasisUSD())
		usFraction := usGain.Div(gain)
		return usFraction, one.Sub(usFraction)
	}
}

func yearsOf(events []ledger.Parsed) []int {
	seen := make(map[int]bool)
	var years []int
	for _, e := range events {
		y := e.Time.Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	return years
}

func yearsOfWallet(txs []wallet.Tx) []int {
	seen := make(map[int]bool)
	var years []int
	for _, tx := range txs {
		y := tx.Time.Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	return years
}

func readCSV[T any](path string, parse func(r io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func loadWalletTxs(cfg *config.Config) ([]wallet.Tx, error) {
	if cfg.Inputs.Wallet == "" {
		return nil, nil
	}
	// The Auditor is built with no blockchain Client here, and
	// Auditor.Resolve returns an error for any row when no client is
	// configured, so a run with a generic wallet input fails at the first
	// wallet row. A concrete Client (node RPC, indexer API) plugs in here
	// without changing callers.
	auditor := wallet.NewAuditor(nil)
	auditor.AddXpubs(cfg.Inputs.Xpubs)
	for _, addr := range cfg.Inputs.Addresses {
		auditor.AddAddress(addr)
	}
	if cfg.Inputs.TxTags != "" {
		f, err := os.Open(cfg.Inputs.TxTags)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := auditor.ReadTxTags(f); err != nil {
			return nil, err
		}
	}
	f, err := os.Open(cfg.Inputs.Wallet)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := wallet.ReadGeneric(f)
	if err != nil {
		return nil, err
	}
	var txs []wallet.Tx
	for _, row := range rows {
		tx, err := auditor.Resolve(context.Background(), row)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
