package config

import (
	"math/big"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/emberchain/emberd/core"
	"github.com/emberchain/emberd/infrastructure/logger"
	"github.com/emberchain/emberd/mining"
)

const (
	defaultLogDirname      = "logs"
	defaultLogFilename     = "emberd.log"
	defaultErrLogFilename  = "emberd_err.log"
	defaultLogLevel        = "info"
	defaultKeysDirname     = "fallbackkeys"
	defaultGasLimitMinimum = 3000000
	defaultGasLimitTarget  = 6800000
)

var (
	// DefaultHomeDir is the default home directory for emberd.
	DefaultHomeDir = btcutil.AppDataDir("emberd", false)

	defaultLogDir  = filepath.Join(DefaultHomeDir, defaultLogDirname)
	defaultKeysDir = filepath.Join(DefaultHomeDir, defaultKeysDirname)
)

// Flags holds the command line options of the mining subsystem.
type Flags struct {
	CoinbaseAddress      string  `long:"coinbaseaddr" description:"Address that receives the rewards of mined blocks"`
	FallbackKeysDir      string  `long:"fallbackkeysdir" description:"Directory containing the fallback mining key files privkey0.bin and privkey1.bin"`
	UncleGenerationLimit int     `long:"unclegenerationlimit" description:"How many generations back the uncle lookup walks"`
	UncleListLimit       int     `long:"unclelistlimit" description:"Maximum number of uncle headers per candidate block"`
	MinGasPriceTarget    int64   `long:"mingaspricetarget" description:"Operator floor gas price target"`
	GasLimitMinimum      uint64  `long:"gaslimitmin" description:"Minimum block gas limit"`
	GasLimitTarget       uint64  `long:"gaslimittarget" description:"Target block gas limit"`
	GasLimitForceTarget  bool    `long:"gaslimitforcetarget" description:"Force the target gas limit instead of adjusting gradually"`
	NotifyFeeIncrease    int64   `long:"notifyfeeincrease" description:"Fee increase in percent required to re-notify miners on an unchanged parent"`
	MinNotifyFeesFiat    float64 `long:"minnotifyfeesfiat" description:"Minimum fiat value of candidate fees for a fee-only notification"`
	GasUnitFiat          float64 `long:"gasunitfiat" description:"Fiat price of one fee unit"`
	FallbackIntervalSecs int64   `long:"fallbackinterval" description:"Minimum seconds between fallback mined blocks"`
	AutoSwitchFallback   bool    `long:"autoswitchfallback" description:"Switch fallback mining on and off automatically after every rebuild"`
	ExtraData            string  `long:"extradata" description:"Extra data stamped into mined blocks"`
	LogDir               string  `long:"logdir" description:"Directory to log output"`
	DebugLevel           string  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	DisableFileLogging   bool    `long:"nofilelogging" description:"Disable logging to file"`
}

// Config is the resolved configuration: the mining policy plus the logging
// setup.
type Config struct {
	Mining *mining.Config

	LogDir             string
	DebugLevel         string
	DisableFileLogging bool
}

func defaultFlags() *Flags {
	return &Flags{
		FallbackKeysDir:      defaultKeysDir,
		UncleGenerationLimit: mining.DefaultUncleGenerationLimit,
		UncleListLimit:       mining.DefaultUncleListLimit,
		GasLimitMinimum:      defaultGasLimitMinimum,
		GasLimitTarget:       defaultGasLimitTarget,
		NotifyFeeIncrease:    mining.DefaultNotifyFeePercentageIncrease,
		GasUnitFiat:          1,
		FallbackIntervalSecs: mining.DefaultSecondsBetweenFallbackBlocks,
		LogDir:               defaultLogDir,
		DebugLevel:           defaultLogLevel,
	}
}

// LoadConfig parses the given command line arguments and returns the
// resolved configuration, with logging initialized.
func LoadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()
	parser := flags.NewParser(cfgFlags, flags.HelpFlag)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	return resolve(cfgFlags)
}

func resolve(cfgFlags *Flags) (*Config, error) {
	coinbaseAddress, err := core.ParseAddress(cfgFlags.CoinbaseAddress)
	if err != nil {
		return nil, errors.Wrap(err, "invalid coinbase address")
	}

	miningConfig := &mining.Config{
		CoinbaseAddress:              coinbaseAddress,
		UncleGenerationLimit:         cfgFlags.UncleGenerationLimit,
		UncleListLimit:               cfgFlags.UncleListLimit,
		MinGasPriceTarget:            big.NewInt(cfgFlags.MinGasPriceTarget),
		GasLimitMinimum:              cfgFlags.GasLimitMinimum,
		GasLimitTarget:               cfgFlags.GasLimitTarget,
		GasLimitForceTarget:          cfgFlags.GasLimitForceTarget,
		NotifyFeePercentageIncrease:  cfgFlags.NotifyFeeIncrease,
		MinNotifyFeesInFiat:          decimal.NewFromFloat(cfgFlags.MinNotifyFeesFiat),
		GasUnitInFiat:                decimal.NewFromFloat(cfgFlags.GasUnitFiat),
		FallbackKeysDir:              cfgFlags.FallbackKeysDir,
		SecondsBetweenFallbackBlocks: cfgFlags.FallbackIntervalSecs,
		AutoSwitchFallbackMining:     cfgFlags.AutoSwitchFallback,
		ExtraData:                    []byte(cfgFlags.ExtraData),
	}

	cfg := &Config{
		Mining:             miningConfig,
		LogDir:             cfgFlags.LogDir,
		DebugLevel:         cfgFlags.DebugLevel,
		DisableFileLogging: cfgFlags.DisableFileLogging,
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *Config) error {
	if !cfg.DisableFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		errLogFile := filepath.Join(cfg.LogDir, defaultErrLogFilename)
		if err := logger.InitLog(logFile, errLogFile); err != nil {
			return errors.Wrap(err, "failed to initialize logging")
		}
	}
	if err := logger.ParseAndSetLogLevels(cfg.DebugLevel); err != nil {
		return errors.Wrapf(err, "failed to apply debug level %s", cfg.DebugLevel)
	}
	return nil
}
