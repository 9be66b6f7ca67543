package mining

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/emberchain/emberd/core"
	"github.com/emberchain/emberd/infrastructure/logger"
)

const (
	// blockRefreshInterval is how often the candidate block is rebuilt
	// from the current best block, independently of chain events.
	blockRefreshInterval = time.Minute

	// fallbackCheckInterval is how often fallback mining checks whether
	// it is time to produce a block.
	fallbackCheckInterval = time.Second

	// diagnosticsTag is the tag background task failures are reported
	// under.
	diagnosticsTag = "mserror"
)

// MinerServer builds candidate blocks, hands out work descriptors to
// external miners and publishes solved blocks back to the chain. When
// merged mining is unavailable it can instead produce signature-sealed
// fallback blocks.
//
// A single mutex guards all candidate bookkeeping. It is held for in-memory
// work only; block execution, signing, validation and chain import all run
// outside of it, on cloned blocks.
type MinerServer struct {
	cfg *Config

	chain            Blockchain
	syncChecker      SyncChecker
	txPool           TransactionPool
	snapshots        StateSnapshots
	executor         BlockExecutor
	blockValidator   BlockValidator
	powValidator     PowValidator
	difficulty       DifficultyCalculator
	gasLimit         GasLimitCalculator
	gasPrice         GasPriceCalculator
	uncles           UncleSource
	diagnostics      DiagnosticsSink
	timeSource       TimeSource
	fallbackPossible FallbackMiningPossibleFunc

	// currentWork is also read without the lock on the GetWork path.
	// Writers always hold mtx.
	currentWork atomic.Pointer[MinerWork]

	timeAdjustment               int64
	minimumAcceptableTime        int64
	secondsBetweenFallbackBlocks int64

	mtx                      sync.Mutex
	started                  bool
	listener                 *newBlockListener
	refreshQuit              chan struct{}
	fallbackQuit             chan struct{}
	isFallbackMining         bool
	autoSwitch               bool
	fallbackBlocksGenerated  int
	extraData                []byte
	blocksWaitingForPoW      *workCache
	latestBlockHashForPoW    *core.Hash
	latestParentHash         *core.Hash
	latestBlock              *core.Block
	latestPaidFeesWithNotify *big.Int
}

// NewMinerServer returns a new miner server wired to the given
// collaborators. The server does nothing until Start is called.
func NewMinerServer(cfg *Config, collaborators *Collaborators) *MinerServer {
	timeSource := collaborators.TimeSource
	if timeSource == nil {
		timeSource = NewTimeSource()
	}
	s := &MinerServer{
		cfg:                      cfg,
		chain:                    collaborators.Chain,
		syncChecker:              collaborators.SyncChecker,
		txPool:                   collaborators.TxPool,
		snapshots:                collaborators.Snapshots,
		executor:                 collaborators.Executor,
		blockValidator:           collaborators.BlockValidator,
		powValidator:             collaborators.PowValidator,
		difficulty:               collaborators.Difficulty,
		gasLimit:                 collaborators.GasLimit,
		gasPrice:                 collaborators.GasPrice,
		uncles:                   collaborators.Uncles,
		diagnostics:              collaborators.Diagnostics,
		timeSource:               timeSource,
		fallbackPossible:         collaborators.FallbackMiningPossible,
		autoSwitch:               cfg.AutoSwitchFallbackMining,
		extraData:                cfg.ExtraData,
		blocksWaitingForPoW:      newWorkCache(),
		latestPaidFeesWithNotify: new(big.Int),
	}
	s.secondsBetweenFallbackBlocks = cfg.SecondsBetweenFallbackBlocks
	return s
}

// Start launches the miner server: it registers for chain events, builds a
// first candidate from the best block and starts the periodic rebuild.
// Start is idempotent.
func (s *MinerServer) Start() {
	s.mtx.Lock()
	if s.started {
		s.mtx.Unlock()
		return
	}
	s.started = true
	s.listener = &newBlockListener{server: s}
	s.chain.AddBlockListener(s.listener)
	s.startRefreshTickerLocked()
	s.updateFallbackSchedulingLocked()
	s.mtx.Unlock()

	err := s.BuildBlockToMine(s.chain.BestBlock(), false)
	if err != nil {
		s.reportTaskFailure(errors.Wrap(err, "failed to build the initial block to mine"))
	}
}

// Stop cancels the timers and removes the chain event listener. In-flight
// builds and submissions run to completion. Stop is idempotent.
func (s *MinerServer) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.chain.RemoveBlockListener(s.listener)
	s.listener = nil
	s.stopRefreshTickerLocked()
	s.updateFallbackSchedulingLocked()
}

// IsRunning reports whether the server has been started and not yet
// stopped.
func (s *MinerServer) IsRunning() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.started
}

// CoinbaseAddress returns the configured coinbase address of candidate
// blocks.
func (s *MinerServer) CoinbaseAddress() core.Address {
	return s.cfg.CoinbaseAddress
}

// SetExtraData changes the extra data stamped into candidates built from
// now on.
func (s *MinerServer) SetExtraData(extraData []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.extraData = extraData
}

// SetSecondsBetweenFallbackBlocks overrides the fallback block interval.
// It exists for tests.
func (s *MinerServer) SetSecondsBetweenFallbackBlocks(seconds int64) {
	atomic.StoreInt64(&s.secondsBetweenFallbackBlocks, seconds)
}

// ExtraData returns the extra data stamped into candidates built from now
// on.
func (s *MinerServer) ExtraData() []byte {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.extraData
}

// BlocksWaitingForPoW returns how many candidates currently sit in the
// cache awaiting proof of work.
func (s *MinerServer) BlocksWaitingForPoW() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.blocksWaitingForPoW.len()
}

// FallbackBlocksGenerated returns how many fallback blocks this server has
// produced.
func (s *MinerServer) FallbackBlocksGenerated() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.fallbackBlocksGenerated
}

// GetWork returns the current work descriptor, or nil when no candidate
// has been built yet. The read itself is lock-free. When the returned
// descriptor carries notify=true, the shared descriptor is replaced by a
// notify=false copy, so that repeated polling without an intervening
// rebuild observes notify=true exactly once.
func (s *MinerServer) GetWork() *MinerWork {
	work := s.currentWork.Load()
	if work == nil {
		return nil
	}
	if work.Notify {
		// The lock is only needed to clear the flag, and at most once
		// per published descriptor. A concurrent rebuild may have
		// replaced the descriptor in the meantime; in that case the
		// newer state wins and this update is discarded.
		s.mtx.Lock()
		current := s.currentWork.Load()
		if current != work {
			s.mtx.Unlock()
			return current
		}
		s.currentWork.Store(work.withoutNotify())
		s.mtx.Unlock()
	}
	return work
}

// SetFallbackMining turns fallback mining on or off. Turning it on while
// the server runs schedules the periodic fallback check and immediately
// rebuilds a candidate, so one exists before the first check fires.
func (s *MinerServer) SetFallbackMining(enable bool) {
	s.mtx.Lock()
	if s.isFallbackMining == enable {
		s.mtx.Unlock()
		return
	}
	s.isFallbackMining = enable
	needsRebuild := s.updateFallbackSchedulingLocked()
	s.mtx.Unlock()

	if needsRebuild {
		// The periodic refresh only fires once a minute; make sure a
		// fallback candidate exists before the first check.
		err := s.BuildBlockToMine(s.chain.BestBlock(), false)
		if err != nil {
			s.reportTaskFailure(errors.Wrap(err, "failed to build a fallback candidate"))
		}
	}
}

// IsFallbackMining reports whether fallback mining is currently on.
func (s *MinerServer) IsFallbackMining() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.isFallbackMining
}

// SetAutoSwitchBetweenNormalAndFallbackMining enables or disables the
// automatic fallback switch applied after every rebuild.
func (s *MinerServer) SetAutoSwitchBetweenNormalAndFallbackMining(enable bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.autoSwitch = enable
}

// updateFallbackSchedulingLocked reconciles the fallback check task with
// the current fallback mode and started state. It returns true when the
// caller should force a rebuild because fallback mining just became
// schedulable.
func (s *MinerServer) updateFallbackSchedulingLocked() bool {
	if s.isFallbackMining && s.started {
		if s.fallbackQuit == nil {
			quit := make(chan struct{})
			s.fallbackQuit = quit
			spawn(func() {
				s.fallbackCheckLoop(quit)
			})
		}
		return true
	}
	if s.fallbackQuit != nil {
		close(s.fallbackQuit)
		s.fallbackQuit = nil
	}
	return false
}

func (s *MinerServer) startRefreshTickerLocked() {
	quit := make(chan struct{})
	s.refreshQuit = quit
	spawn(func() {
		s.refreshWorkLoop(quit)
	})
}

func (s *MinerServer) stopRefreshTickerLocked() {
	if s.refreshQuit != nil {
		close(s.refreshQuit)
		s.refreshQuit = nil
	}
}

// refreshWorkLoop periodically rebuilds the candidate from the chain's
// best block.
func (s *MinerServer) refreshWorkLoop(quit chan struct{}) {
	ticker := time.NewTicker(blockRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.runBackgroundTask(func() error {
				return s.BuildBlockToMine(s.chain.BestBlock(), false)
			})
		}
	}
}

// fallbackCheckLoop produces a fallback block whenever the chain tip grows
// older than the configured interval.
func (s *MinerServer) fallbackCheckLoop(quit chan struct{}) {
	ticker := time.NewTicker(fallbackCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.runBackgroundTask(func() error {
				bestBlock := s.chain.BestBlock()
				interval := atomic.LoadInt64(&s.secondsBetweenFallbackBlocks)
				if s.CurrentTimeInSeconds() > bestBlock.Header.Timestamp+interval {
					s.GenerateFallbackBlock()
				}
				return nil
			})
		}
	}
}

// runBackgroundTask contains failures of periodic tasks: errors and panics
// are logged and forwarded to the diagnostics sink, and the task's loop
// keeps running.
func (s *MinerServer) runBackgroundTask(task func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.reportTaskFailure(errors.Errorf("unexpected panic: %v", r))
		}
	}()
	if err := task(); err != nil {
		s.reportTaskFailure(err)
	}
}

func (s *MinerServer) reportTaskFailure(err error) {
	log.Errorf("Unexpected error: %+v", err)
	if s.diagnostics != nil {
		s.diagnostics.Panic(diagnosticsTag, err.Error())
	}
}

// BuildBlockToMine builds a new candidate block on top of the given parent,
// executes it and publishes it as the current work. With
// createCompetitiveBlock set the candidate is built on top of the parent's
// parent instead, which simulates a competing chain for tests.
func (s *MinerServer) BuildBlockToMine(newBlockParent *core.Block, createCompetitiveBlock bool) error {
	if newBlockParent == nil {
		return errors.New("cannot build a block without a parent")
	}
	onEnd := logger.LogAndMeasureExecutionTime(log, "BuildBlockToMine")
	defer onEnd()
	if createCompetitiveBlock {
		grandparent := s.chain.BlockByHash(newBlockParent.ParentHash())
		if grandparent == nil {
			return errors.Errorf("cannot build a competitive block: parent %s of block %d is unknown",
				newBlockParent.ParentHash().Short(), newBlockParent.Number())
		}
		newBlockParent = grandparent
	}

	log.Infof("Starting block to mine from parent %d %s", newBlockParent.Number(), newBlockParent.Hash())

	uncles := s.collectUncles(newBlockParent)
	minimumGasPrice := s.gasPrice.MinimumGasPrice(newBlockParent.Header.MinimumGasPrice, s.cfg.MinGasPriceTarget)
	txs, txsToRemove, err := s.transactionsForNewBlock(newBlockParent, minimumGasPrice)
	if err != nil {
		return errors.Wrap(err, "failed to collect transactions")
	}

	atomic.StoreInt64(&s.minimumAcceptableTime, newBlockParent.Header.Timestamp+1)

	newBlock := s.createBlock(newBlockParent, uncles, txs, minimumGasPrice)

	s.autoSwitchFallbackMining(newBlock.Header)

	s.mtx.Lock()
	extraData := s.extraData
	s.mtx.Unlock()
	newBlock.SetExtraData(extraData)

	s.removePendingTransactions(txsToRemove)

	err = s.executor.ExecuteAndFill(newBlock, newBlockParent)
	if err != nil {
		// An unexecuted block must never enter the cache.
		return errors.Wrapf(err, "failed to execute block %d", newBlock.Number())
	}

	parentHash := newBlockParent.Hash()
	hashForMergedMining := newBlock.HashForMergedMining()

	s.mtx.Lock()
	notify := s.getNotifyLocked(newBlock, parentHash)
	if notify {
		s.latestPaidFeesWithNotify = newBlock.PaidFees()
	}
	s.latestParentHash = &parentHash
	s.latestBlock = newBlock
	s.currentWork.Store(s.newWorkForBlock(newBlock, notify))
	s.latestBlockHashForPoW = &hashForMergedMining
	s.blocksWaitingForPoW.insert(hashForMergedMining, newBlock)
	waiting := s.blocksWaitingForPoW.len()
	s.mtx.Unlock()

	log.Debugf("Built block %s. Parent %s. %d blocks waiting for PoW",
		newBlock.ShortHashForMergedMining(), newBlockParent.ShortHashForMergedMining(), waiting)
	for _, uncleHeader := range uncles {
		log.Debugf("With uncle %s", uncleHeader.HashForMergedMining().Short())
	}
	return nil
}

// collectUncles returns the uncle headers valid for the block following
// newBlockParent, capped to the configured limit.
func (s *MinerServer) collectUncles(newBlockParent *core.Block) []*core.BlockHeader {
	if s.uncles == nil {
		return nil
	}
	uncles := s.uncles.UncleHeaders(newBlockParent.Number()+1, newBlockParent.Hash(), s.cfg.UncleGenerationLimit)
	if len(uncles) > s.cfg.UncleListLimit {
		uncles = uncles[:s.cfg.UncleListLimit]
	}
	return uncles
}

// autoSwitchFallbackMining flips fallback mining according to the consensus
// policy, when auto-switching is enabled.
func (s *MinerServer) autoSwitchFallbackMining(header *core.BlockHeader) {
	s.mtx.Lock()
	autoSwitch := s.autoSwitch
	s.mtx.Unlock()
	if !autoSwitch || s.fallbackPossible == nil {
		return
	}
	s.SetFallbackMining(s.fallbackPossible(header))
}

// createBlock assembles the candidate header and block. When the assembled
// block fails consensus pre-validation it degrades to the same block
// without uncles instead of failing the build.
func (s *MinerServer) createBlock(newBlockParent *core.Block, uncles []*core.BlockHeader,
	txs []*core.Transaction, minimumGasPrice *big.Int) *core.Block {

	header := s.createHeader(newBlockParent, uncles, txs, minimumGasPrice)
	newBlock := core.NewBlock(header, txs, uncles)
	if s.blockValidator.IsValid(newBlock) {
		return newBlock
	}
	log.Warnf("Block %d failed pre-validation, dropping its uncles", header.Number)
	return core.NewBlock(header, txs, nil)
}

func (s *MinerServer) createHeader(newBlockParent *core.Block, uncles []*core.BlockHeader,
	txs []*core.Transaction, minimumGasPrice *big.Int) *core.BlockHeader {

	parentHeader := newBlockParent.Header
	gasLimit := s.gasLimit.BlockGasLimit(
		parentHeader.GasLimit,
		parentHeader.GasUsed,
		new(big.Int).SetUint64(s.cfg.GasLimitMinimum),
		new(big.Int).SetUint64(s.cfg.GasLimitTarget),
		s.cfg.GasLimitForceTarget)

	header := &core.BlockHeader{
		ParentHash:      newBlockParent.Hash(),
		UnclesHash:      core.DeriveUnclesHash(uncles),
		Coinbase:        s.cfg.CoinbaseAddress,
		Version:         1,
		Number:          parentHeader.Number + 1,
		GasLimit:        gasLimit,
		Timestamp:       s.CurrentTimeInSeconds(),
		MinimumGasPrice: minimumGasPrice,
		UncleCount:      len(uncles),
		TxTrieRoot:      core.DeriveTransactionsRoot(txs),
	}
	header.Difficulty = s.difficulty.Difficulty(header, parentHeader)
	return header
}

// getNotifyLocked decides whether miners should be notified about a new
// candidate. A parent change always notifies; on an unchanged parent the
// candidate's fees must exceed the last notified fees by the configured
// percentage and reach the fiat minimum.
func (s *MinerServer) getNotifyLocked(block *core.Block, parentHash core.Hash) bool {
	if s.latestParentHash == nil || *s.latestParentHash != parentHash {
		return true
	}

	// Integer arithmetic, truncating, like everything else fee related.
	percentage := big.NewInt(100 + s.cfg.NotifyFeePercentageIncrease)
	minFeesNotify := new(big.Int).Div(
		new(big.Int).Mul(s.latestPaidFeesWithNotify, percentage),
		big.NewInt(100))
	feesPaidToMiner := block.PaidFees()
	feesInFiat := decimal.NewFromBigInt(feesPaidToMiner, 0).Mul(s.cfg.GasUnitInFiat)
	return feesPaidToMiner.Cmp(minFeesNotify) > 0 &&
		feesInFiat.Cmp(s.cfg.MinNotifyFeesInFiat) >= 0
}

// newWorkForBlock derives the work descriptor for a freshly built
// candidate.
func (s *MinerServer) newWorkForBlock(block *core.Block, notify bool) *MinerWork {
	work := &MinerWork{
		BlockHashForMergedMining: block.HashForMergedMining(),
		Target:                   difficultyToTarget(block.Header.Difficulty),
		FeesPaidToMiner:          block.PaidFees(),
		Notify:                   notify,
		ParentBlockHash:          block.ParentHash(),
	}
	log.Debugf("Sending work for merged mining. Hash: %s", work.BlockHashForMergedMining.Short())
	return work
}

// isValidBlock runs the proof of work rule on a sealed block. Panics inside
// the validator are treated as an invalid block, never propagated.
func (s *MinerServer) isValidBlock(block *core.Block) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Failed to validate PoW of block %s: %v", block.ShortHash(), r)
			valid = false
		}
	}()
	return s.powValidator.IsValid(block)
}

// newBlockListener reacts to every block the chain appends. It holds only a
// reference to the server; all state it touches lives behind the server's
// lock.
type newBlockListener struct {
	server *MinerServer
}

// OnBlockAdded rebuilds the candidate when the chain's best block no longer
// matches the current work's parent. It is called for every appended block,
// best chain or not, on the appender's goroutine.
func (l *newBlockListener) OnBlockAdded(block *core.Block) {
	s := l.server
	if s.syncChecker.HasBetterBlockToSync() {
		return
	}

	bestBlock := s.chain.BestBlock()
	work := s.currentWork.Load()
	if work != nil && work.ParentBlockHash == bestBlock.Hash() {
		log.Debugf("New block arrived but there is no need to build a new block to mine: %s",
			block.ShortHashForMergedMining())
		return
	}

	log.Debugf("There is a new best block: %s, number: %d", bestBlock.ShortHashForMergedMining(), bestBlock.Number())
	s.runBackgroundTask(func() error {
		return s.BuildBlockToMine(bestBlock, false)
	})
}

var _ BlockListener = (*newBlockListener)(nil)
