package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config holds every configurable input for a taxcount run. It is populated
// in the same order the teacher's config loader uses: compiled-in defaults,
// then an optional YAML file, then an environment overlay.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Inputs  InputsConfig  `yaml:"inputs"`
	Outputs OutputsConfig `yaml:"outputs"`
	Storage StorageConfig `yaml:"storage"`

	Network string `yaml:"network" envconfig:"NETWORK"`

	// BonaFideResidency, if set, is the move date used to split gains
	// between US and territory sourcing. Format: YYYY-MM-DD.
	BonaFideResidency string `yaml:"bonaFideResidency" envconfig:"BONA_FIDE_RESIDENCY"`

	Verbose bool `yaml:"verbose" envconfig:"VERBOSE"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

// InputsConfig lists every CSV/document input the core consumes. All but
// Ledger are optional; a run with no wallet inputs still produces an
// exchange-only worksheet.
type InputsConfig struct {
	Ledger           string   `yaml:"ledger"           envconfig:"INPUT_LEDGER"`
	Trades           string   `yaml:"trades"           envconfig:"INPUT_TRADES"`
	BasisLookup      string   `yaml:"basisLookup"      envconfig:"INPUT_BASIS_LOOKUP"`
	TxTags           string   `yaml:"txTags"           envconfig:"INPUT_TX_TAGS"`
	Wallet           string   `yaml:"wallet"           envconfig:"INPUT_WALLET"`
	Electrum         string   `yaml:"electrum"         envconfig:"INPUT_ELECTRUM"`
	LedgerLive       string   `yaml:"ledgerLive"       envconfig:"INPUT_LEDGERLIVE"`
	Xpubs            []string `yaml:"xpubs"            envconfig:"INPUT_XPUBS"`
	Addresses        []string `yaml:"addresses"        envconfig:"INPUT_ADDRESSES"`
	CheckpointIn     string   `yaml:"checkpointIn"     envconfig:"INPUT_CHECKPOINT"`
	ExchangeRatesDir string   `yaml:"exchangeRatesDir" envconfig:"EXCHANGE_RATES_DIR"`
}

type OutputsConfig struct {
	CheckpointOut   string `yaml:"checkpointOut"   envconfig:"OUTPUT_CHECKPOINT"`
	WorksheetDir    string `yaml:"worksheetDir"    envconfig:"OUTPUT_WORKSHEET_DIR"`
	WorksheetPrefix string `yaml:"worksheetPrefix" envconfig:"OUTPUT_WORKSHEET_PREFIX"`
}

type StorageConfig struct {
	Directory string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

// Singleton config instance with default values, same load idiom as the
// teacher: a package-level pointer seeded with defaults before Load mutates
// it in place.
var globalConfig = &Config{
	Network: "mainnet",
	Logging: LoggingConfig{
		Level: "info",
	},
	Storage: StorageConfig{
		Directory: "./.taxcount",
	},
	Outputs: OutputsConfig{
		WorksheetPrefix: "worksheet",
	},
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %s", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %s", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %s", err)
	}
	if globalConfig.Inputs.Ledger == "" {
		return nil, fmt.Errorf("a ledger input is required (-ledger or inputs.ledger)")
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance.
func GetConfig() *Config {
	return globalConfig
}
