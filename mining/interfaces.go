package mining

import (
	"math/big"
	"time"

	"github.com/emberchain/emberd/core"
)

// BlockListener is notified of every block the chain appends, best chain or
// not.
type BlockListener interface {
	OnBlockAdded(block *core.Block)
}

// Blockchain is the chain the miner server builds on and publishes to.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type Blockchain interface {
	// BestBlock returns the current best block of the chain.
	BestBlock() *core.Block

	// BlockByHash returns the block with the given hash, or nil if the
	// chain does not have it.
	BlockByHash(hash core.Hash) *core.Block

	// ImportMinedBlock hands a sealed, solved block to the chain.
	ImportMinedBlock(block *core.Block) core.ImportResult

	// AddBlockListener registers a listener for appended blocks.
	AddBlockListener(listener BlockListener)

	// RemoveBlockListener removes a previously registered listener.
	RemoveBlockListener(listener BlockListener)
}

// SyncChecker reports whether the node is still syncing towards a better
// chain, in which case there is no point in building work.
type SyncChecker interface {
	HasBetterBlockToSync() bool
}

// TransactionPool is the source of pending transactions and the sink for
// the removal side effects of candidate filtering.
type TransactionPool interface {
	// PendingTransactions returns the ordered pending transaction set.
	PendingTransactions() []*core.Transaction

	// RemoveTransactions removes the given transactions from the pending
	// set.
	RemoveTransactions(txs []*core.Transaction)

	// RemoveWireTransactions removes the given transactions from the
	// wire relay set.
	RemoveWireTransactions(txs []*core.Transaction)
}

// AccountReader reads account state out of a snapshot.
type AccountReader interface {
	// NonceAt returns the next valid nonce of the given account.
	NonceAt(addr core.Address) uint64
}

// StateSnapshots provides read access to historical state by state root.
type StateSnapshots interface {
	Snapshot(stateRoot core.Hash) (AccountReader, error)
}

// BlockExecutor executes a candidate block on top of its parent and fills
// in the execution results: state root, receipts root, gas used and paid
// fees.
type BlockExecutor interface {
	ExecuteAndFill(block, parent *core.Block) error
}

// BlockValidator is the consensus pre-validation rule set applied to
// assembled candidates.
type BlockValidator interface {
	IsValid(block *core.Block) bool
}

// PowValidator validates the proof of work of a sealed block.
type PowValidator interface {
	IsValid(block *core.Block) bool
}

// DifficultyCalculator computes the difficulty of a header given its
// parent.
type DifficultyCalculator interface {
	Difficulty(header, parent *core.BlockHeader) *big.Int
}

// GasLimitCalculator computes the gas limit of a new block.
type GasLimitCalculator interface {
	BlockGasLimit(parentGasLimit *big.Int, parentGasUsed uint64, minGasLimit, targetGasLimit *big.Int, forceTarget bool) *big.Int
}

// GasPriceCalculator computes the floor gas price of a new block from the
// parent's minimum and the operator's target.
type GasPriceCalculator interface {
	MinimumGasPrice(parentMinGasPrice, target *big.Int) *big.Int
}

// UncleSource looks up the uncle headers that may be included at a given
// height.
type UncleSource interface {
	UncleHeaders(height uint64, parentHash core.Hash, generationLimit int) []*core.BlockHeader
}

// DiagnosticsSink receives reports of unexpected failures in background
// tasks.
type DiagnosticsSink interface {
	Panic(tag, message string)
}

// TimeSource is the interface to access wall clock time.
type TimeSource interface {
	// Now returns the current time.
	Now() time.Time
}

// FallbackMiningPossibleFunc is the consensus policy deciding whether a
// candidate header may be fallback mined.
type FallbackMiningPossibleFunc func(header *core.BlockHeader) bool

// Collaborators bundles everything the miner server consumes from the rest
// of the node. UncleSource may be nil, in which case candidates carry no
// uncles. FallbackMiningPossible may be nil, which disables auto-switching.
type Collaborators struct {
	Chain                  Blockchain
	SyncChecker            SyncChecker
	TxPool                 TransactionPool
	Snapshots              StateSnapshots
	Executor               BlockExecutor
	BlockValidator         BlockValidator
	PowValidator           PowValidator
	Difficulty             DifficultyCalculator
	GasLimit               GasLimitCalculator
	GasPrice               GasPriceCalculator
	Uncles                 UncleSource
	Diagnostics            DiagnosticsSink
	TimeSource             TimeSource
	FallbackMiningPossible FallbackMiningPossibleFunc
}

// timeSource provides the default TimeSource implementation, the local
// clock with one second precision.
type timeSource struct{}

// Now returns the current local time, with one second precision.
func (m *timeSource) Now() time.Time {
	return time.Unix(time.Now().Unix(), 0)
}

// NewTimeSource returns a new instance of a TimeSource.
func NewTimeSource() TimeSource {
	return &timeSource{}
}
