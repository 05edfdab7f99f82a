package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dcdpr/taxcount/internal/app"
	"github.com/dcdpr/taxcount/internal/config"
	"github.com/dcdpr/taxcount/internal/logging"
	"github.com/dcdpr/taxcount/internal/storage"
	"github.com/dcdpr/taxcount/internal/version"

	_ "go.uber.org/automaxprocs"
)

const programName = "taxcount"

var cmdlineFlags struct {
	configFile        string
	version           bool
	verbose           bool
	network           string
	ledger            string
	trades            string
	basisLookup       string
	txTags            string
	wallet            string
	electrum          string
	ledgerLive        string
	xpubs             string
	addresses         string
	checkpointIn      string
	checkpointOut     string
	exchangeRatesDB   string
	bonaFideResidency string
	worksheetDir      string
	worksheetPrefix   string
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.BoolVar(&cmdlineFlags.verbose, "verbose", false, "enable debug logging")
	flag.StringVar(&cmdlineFlags.network, "network", "", "network name (mainnet, testnet, ...)")
	flag.StringVar(&cmdlineFlags.ledger, "ledger", "", "path to exchange ledger CSV")
	flag.StringVar(&cmdlineFlags.trades, "trades", "", "path to trading-pairs CSV")
	flag.StringVar(&cmdlineFlags.basisLookup, "basis-lookup", "", "path to basis lookup CSV")
	flag.StringVar(&cmdlineFlags.txTags, "tx-tags", "", "path to transaction tags CSV")
	flag.StringVar(&cmdlineFlags.wallet, "wallet", "", "path to generic wallet CSV")
	flag.StringVar(&cmdlineFlags.electrum, "electrum", "", "path to Electrum wallet export")
	flag.StringVar(&cmdlineFlags.ledgerLive, "ledgerlive", "", "path to Ledger Live wallet export")
	flag.StringVar(&cmdlineFlags.xpubs, "xpub", "", "comma-separated list of extended public keys")
	flag.StringVar(&cmdlineFlags.addresses, "address", "", "comma-separated list of on-chain addresses")
	flag.StringVar(&cmdlineFlags.checkpointIn, "checkpoint-in", "", "path to checkpoint file to resume from")
	flag.StringVar(&cmdlineFlags.checkpointOut, "checkpoint-out", "", "path to write the resulting checkpoint file")
	flag.StringVar(&cmdlineFlags.exchangeRatesDB, "exchange-rates-db", "", "path to exchange rate database directory")
	flag.StringVar(&cmdlineFlags.bonaFideResidency, "bona-fide-residency", "", "bona fide residency move date (YYYY-MM-DD)")
	flag.StringVar(&cmdlineFlags.worksheetDir, "worksheet-dir", "", "directory to write capital gains worksheets to")
	flag.StringVar(&cmdlineFlags.worksheetPrefix, "worksheet-prefix", "", "filename prefix for capital gains worksheets")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
		os.Exit(0)
	}

	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}
	applyCmdlineOverrides(cfg)

	// Configure logging
	logging.Configure()
	logger := logging.GetLogger()
	defer func() {
		if err := logger.Sync(); err != nil {
			return
		}
	}()

	store := storage.GetStorage()
	if err := store.Load(); err != nil {
		logger.Fatalf("failed to open storage: %s", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close storage cleanly: %s", err)
		}
	}()

	if err := app.Run(cfg); err != nil {
		logger.Fatalf("run failed: %s", err)
	}
}

// applyCmdlineOverrides layers flag values over whatever config.Load already
// populated from file and environment, same precedence order the teacher's
// profile/topology merging used: flags win last.
func applyCmdlineOverrides(cfg *config.Config) {
	if cmdlineFlags.verbose {
		cfg.Verbose = true
	}
	if cmdlineFlags.network != "" {
		cfg.Network = cmdlineFlags.network
	}
	if cmdlineFlags.ledger != "" {
		cfg.Inputs.Ledger = cmdlineFlags.ledger
	}
	if cmdlineFlags.trades != "" {
		cfg.Inputs.Trades = cmdlineFlags.trades
	}
	if cmdlineFlags.basisLookup != "" {
		cfg.Inputs.BasisLookup = cmdlineFlags.basisLookup
	}
	if cmdlineFlags.txTags != "" {
		cfg.Inputs.TxTags = cmdlineFlags.txTags
	}
	if cmdlineFlags.wallet != "" {
		cfg.Inputs.Wallet = cmdlineFlags.wallet
	}
	if cmdlineFlags.electrum != "" {
		cfg.Inputs.Electrum = cmdlineFlags.electrum
	}
	if cmdlineFlags.ledgerLive != "" {
		cfg.Inputs.LedgerLive = cmdlineFlags.ledgerLive
	}
	if cmdlineFlags.xpubs != "" {
		cfg.Inputs.Xpubs = splitNonEmpty(cmdlineFlags.xpubs)
	}
	if cmdlineFlags.addresses != "" {
		cfg.Inputs.Addresses = splitNonEmpty(cmdlineFlags.addresses)
	}
	if cmdlineFlags.checkpointIn != "" {
		cfg.Inputs.CheckpointIn = cmdlineFlags.checkpointIn
	}
	if cmdlineFlags.exchangeRatesDB != "" {
		cfg.Inputs.ExchangeRatesDir = cmdlineFlags.exchangeRatesDB
	}
	if cmdlineFlags.checkpointOut != "" {
		cfg.Outputs.CheckpointOut = cmdlineFlags.checkpointOut
	}
	if cmdlineFlags.worksheetDir != "" {
		cfg.Outputs.WorksheetDir = cmdlineFlags.worksheetDir
	}
	if cmdlineFlags.worksheetPrefix != "" {
		cfg.Outputs.WorksheetPrefix = cmdlineFlags.worksheetPrefix
	}
	if cmdlineFlags.bonaFideResidency != "" {
		cfg.BonaFideResidency = cmdlineFlags.bonaFideResidency
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
