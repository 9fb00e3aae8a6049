// Package config defines the CLI/environment configuration surface of
// spec §6: every externally tunable knob the daemon reads at startup.
// Grounded on this project's teacher's kasparovd/config.Config (flags
// struct embedding, defaultLogDir/defaultHTTPListen constants,
// ActiveConfig() singleton) generalized from Kasparov's MySQL/JSON-RPC
// flags to this engine's Bitcoin RPC + leveldb + proof-of-fee knobs.
package config

import (
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	logFilename    = "sidetreed.log"
	errLogFilename = "sidetreed_err.log"

	defaultHTTPListen                 = "0.0.0.0:8080"
	defaultGenesisBlockNumber         = 0
	defaultTransactionFetchPageSize   = 100
	defaultRequestTimeoutMs           = 5000
	defaultRequestMaxRetries          = 8
	defaultTransactionPollPeriodSecs  = 10
	defaultHistoricalOffsetInBlocks   = 6
	defaultQuantileScale              = 1.0
	defaultBatchSizeInBlocks          = 100
	defaultWindowSizeInBatches        = 10
	defaultSampleSize                 = 50
	defaultQuantile                   = 0.5
	defaultFeeApproximation           = 10
	defaultMaxTransactionInputCount   = 100
	defaultSidetreeTransactionPrefix  = "sidetree:"
)

var (
	defaultAppDir = btcutil.AppDataDir("sidetreed", false)
	activeConfig  *Config
)

// TransactionFeeQuantileConfig is
// proof_of_fee.transaction_fee_quantile_config (spec §6).
type TransactionFeeQuantileConfig struct {
	BatchSizeInBlocks   uint32  `long:"batchsizeinblocks" description:"number of blocks per proof-of-fee batch"`
	WindowSizeInBatches uint32  `long:"windowsizeinbatches" description:"number of trailing batches kept in the rolling quantile window"`
	SampleSize          uint32  `long:"samplesize" description:"reservoir sample size per block"`
	Quantile            float64 `long:"quantile" description:"quantile in (0,1) computed over the sampled fees"`
	FeeApproximation    uint64  `long:"feeapproximation" description:"histogram bucket width, in satoshis"`
}

// ProofOfFeeConfig is the proof_of_fee.* configuration group (spec §6).
type ProofOfFeeConfig struct {
	HistoricalOffsetInBlocks     uint32                       `long:"historicaloffsetinblocks" description:"blocks subtracted from the query height before resolving a fee batch"`
	QuantileScale                float64                      `long:"quantilescale" description:"multiplier applied to the resolved quantile value"`
	TransactionFeeQuantileConfig TransactionFeeQuantileConfig `group:"Transaction fee quantile" namespace:"transactionfeequantile"`
}

// Config is the full daemon configuration (spec §6).
type Config struct {
	HTTPListen string `long:"listen" description:"HTTP address to listen on"`

	RPCHost         string `long:"rpchost" description:"Bitcoin Core JSON-RPC host:port"`
	RPCUser         string `long:"rpcuser" description:"Bitcoin Core JSON-RPC username"`
	RPCPass         string `long:"rpcpass" description:"Bitcoin Core JSON-RPC password"`
	RPCDisableTLS   bool   `long:"rpcnotls" description:"disable TLS when talking to Bitcoin Core"`

	DataDir string `long:"datadir" description:"directory holding the leveldb store and logs"`

	SidetreeTransactionPrefix string `long:"sidetreeprefix" description:"anchor OP_RETURN marker string"`
	GenesisBlockNumber        uint32 `long:"genesisblock" description:"first block height to scan"`
	TransactionFetchPageSize  uint32 `long:"pagesize" description:"cap on later_than query results"`
	RequestTimeoutMs          uint32 `long:"requesttimeoutms" description:"base backoff delay, in milliseconds, before retrying a timed-out upstream RPC call (doubled per retry); no timeout is imposed on the call itself"`
	RequestMaxRetries         uint32 `long:"requestmaxretries" description:"max retry attempts per upstream RPC call"`
	TransactionPollPeriodSecs uint32 `long:"pollperiodseconds" description:"seconds between sync engine ticks"`
	MaxTransactionInputCount  uint32 `long:"maxinputcount" description:"transactions with more inputs than this are excluded from block sampling"`

	DebugLevel string `long:"debuglevel" description:"logging level and per-subsystem overrides"`

	ProofOfFee ProofOfFeeConfig `group:"Proof of fee" namespace:"proofoffee"`

	LogDir    string
	ErrLogDir string
}

// ActiveConfig returns the process-wide parsed configuration.
func ActiveConfig() *Config {
	return activeConfig
}

func defaults() *Config {
	return &Config{
		HTTPListen:                defaultHTTPListen,
		DataDir:                   defaultAppDir,
		SidetreeTransactionPrefix: defaultSidetreeTransactionPrefix,
		GenesisBlockNumber:        defaultGenesisBlockNumber,
		TransactionFetchPageSize:  defaultTransactionFetchPageSize,
		RequestTimeoutMs:          defaultRequestTimeoutMs,
		RequestMaxRetries:         defaultRequestMaxRetries,
		TransactionPollPeriodSecs: defaultTransactionPollPeriodSecs,
		MaxTransactionInputCount:  defaultMaxTransactionInputCount,
		DebugLevel:                "info",
		ProofOfFee: ProofOfFeeConfig{
			HistoricalOffsetInBlocks: defaultHistoricalOffsetInBlocks,
			QuantileScale:            defaultQuantileScale,
			TransactionFeeQuantileConfig: TransactionFeeQuantileConfig{
				BatchSizeInBlocks:   defaultBatchSizeInBlocks,
				WindowSizeInBatches: defaultWindowSizeInBatches,
				SampleSize:          defaultSampleSize,
				Quantile:            defaultQuantile,
				FeeApproximation:    defaultFeeApproximation,
			},
		},
	}
}

// Parse parses CLI arguments into the active configuration.
func Parse() (*Config, error) {
	cfg := defaults()
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	cfg.LogDir = filepath.Join(cfg.DataDir, "logs", logFilename)
	cfg.ErrLogDir = filepath.Join(cfg.DataDir, "logs", errLogFilename)

	activeConfig = cfg
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ProofOfFee.TransactionFeeQuantileConfig.Quantile <= 0 || cfg.ProofOfFee.TransactionFeeQuantileConfig.Quantile >= 1 {
		return errors.Errorf("proofoffee.transactionfeequantile.quantile must be in (0, 1), got %f",
			cfg.ProofOfFee.TransactionFeeQuantileConfig.Quantile)
	}
	if cfg.ProofOfFee.TransactionFeeQuantileConfig.BatchSizeInBlocks == 0 {
		return errors.New("proofoffee.transactionfeequantile.batchsizeinblocks must be greater than zero")
	}
	if cfg.RPCHost == "" {
		return errors.New("rpchost is required")
	}
	return nil
}
