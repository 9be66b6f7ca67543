package mining

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/emberchain/emberd/core"
)

// Default configuration values.
const (
	// DefaultNotifyFeePercentageIncrease is the relative fee increase, in
	// percent, that candidate blocks built on an unchanged parent must
	// show before miners are notified again.
	DefaultNotifyFeePercentageIncrease = 10

	// DefaultUncleGenerationLimit is how many generations back the uncle
	// lookup walks.
	DefaultUncleGenerationLimit = 6

	// DefaultUncleListLimit is the maximum number of uncle headers
	// included in a candidate block.
	DefaultUncleListLimit = 10

	// DefaultSecondsBetweenFallbackBlocks is the minimum wall clock
	// distance between two fallback mined blocks.
	DefaultSecondsBetweenFallbackBlocks = 14
)

// Config houses the policy parameters which control the generation of
// candidate blocks and the work handout.
type Config struct {
	// CoinbaseAddress is the address that receives the block rewards of
	// mined candidates.
	CoinbaseAddress core.Address

	// UncleGenerationLimit is how many generations back the uncle lookup
	// walks.
	UncleGenerationLimit int

	// UncleListLimit caps the number of uncle headers in a candidate.
	UncleListLimit int

	// MinGasPriceTarget is the operator's floor gas price target, fed to
	// the gas price calculator together with the parent's minimum.
	MinGasPriceTarget *big.Int

	// GasLimitMinimum, GasLimitTarget and GasLimitForceTarget parametrize
	// the gas limit calculator.
	GasLimitMinimum     uint64
	GasLimitTarget      uint64
	GasLimitForceTarget bool

	// NotifyFeePercentageIncrease is the relative fee increase, in
	// percent, required to notify miners without a parent change.
	NotifyFeePercentageIncrease int64

	// MinNotifyFeesInFiat is the minimum fiat value the candidate's fees
	// must reach before a fee-only notification is sent.
	MinNotifyFeesInFiat decimal.Decimal

	// GasUnitInFiat is the fiat price of one fee unit, used to convert
	// the candidate's fees for the MinNotifyFeesInFiat comparison.
	GasUnitInFiat decimal.Decimal

	// FallbackKeysDir is the directory holding the fallback mining key
	// files, privkey0.bin and privkey1.bin.
	FallbackKeysDir string

	// SecondsBetweenFallbackBlocks is the minimum wall clock distance
	// between two fallback mined blocks.
	SecondsBetweenFallbackBlocks int64

	// AutoSwitchFallbackMining enables switching fallback mining on and
	// off automatically after every rebuild, following the consensus
	// fallback policy.
	AutoSwitchFallbackMining bool

	// ExtraData is the operator-chosen extra data stamped into candidate
	// blocks.
	ExtraData []byte
}

// DefaultConfig returns a Config with all limits at their defaults and the
// given coinbase address.
func DefaultConfig(coinbaseAddress core.Address) *Config {
	return &Config{
		CoinbaseAddress:              coinbaseAddress,
		UncleGenerationLimit:         DefaultUncleGenerationLimit,
		UncleListLimit:               DefaultUncleListLimit,
		MinGasPriceTarget:            new(big.Int),
		NotifyFeePercentageIncrease:  DefaultNotifyFeePercentageIncrease,
		MinNotifyFeesInFiat:          decimal.Zero,
		GasUnitInFiat:                decimal.New(1, 0),
		SecondsBetweenFallbackBlocks: DefaultSecondsBetweenFallbackBlocks,
	}
}
