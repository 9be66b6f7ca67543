package mining

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/emberchain/emberd/core"
)

// Submission statuses.
const (
	// SubmitStatusOK means the solved block passed validation and was
	// handed to the chain for import.
	SubmitStatusOK = "OK"

	// SubmitStatusError means the submission was rejected before import.
	SubmitStatusError = "ERROR"
)

// SubmittedBlockInfo describes a block that was handed to the chain after a
// successful submission.
type SubmittedBlockInfo struct {
	ImportResult core.ImportResult
	BlockHash    core.Hash
	BlockNumber  uint64
}

// SubmitBlockResult is the structured outcome of a submission. Protocol
// failures are reported through it, never as errors.
type SubmitBlockResult struct {
	Status    string
	Message   string
	BlockInfo *SubmittedBlockInfo
}

func submitError(message string) SubmitBlockResult {
	return SubmitBlockResult{Status: SubmitStatusError, Message: message}
}

// SubmitBitcoinBlock takes a solved bitcoin block whose coinbase embeds the
// given merged mining hash, finalizes the matching candidate and publishes
// it to the chain. The merged mining tag is located at its last occurrence
// inside the coinbase.
func (s *MinerServer) SubmitBitcoinBlock(blockHashForMergedMining string, bitcoinBlock *wire.MsgBlock) SubmitBlockResult {
	return s.SubmitBitcoinBlockWithTagPosition(blockHashForMergedMining, bitcoinBlock, true)
}

// SubmitBitcoinBlockWithTagPosition is SubmitBitcoinBlock with the tag
// occurrence used for coinbase compression under the submitter's control.
func (s *MinerServer) SubmitBitcoinBlockWithTagPosition(blockHashForMergedMining string,
	bitcoinBlock *wire.MsgBlock, lastTag bool) SubmitBlockResult {

	log.Debugf("Received block with hash %s for merged mining", blockHashForMergedMining)

	key, err := core.ParseHash(blockHashForMergedMining)
	if err != nil {
		return submitError(fmt.Sprintf("Invalid block hash for merged mining %s", blockHashForMergedMining))
	}
	if len(bitcoinBlock.Transactions) == 0 {
		return submitError("Submitted bitcoin block has no coinbase transaction")
	}
	coinbaseTransaction := bitcoinBlock.Transactions[0]
	merkleBranch, err := bitcoinMergedMerkleBranch(bitcoinBlock)
	if err != nil {
		return submitError(fmt.Sprintf("Cannot build merkle branch: %s", err))
	}

	var newBlock *core.Block
	s.mtx.Lock()
	workingBlock := s.blocksWaitingForPoW.get(key)
	if workingBlock == nil {
		s.mtx.Unlock()
		message := fmt.Sprintf("Cannot publish block, could not find hash %s in the cache", blockHashForMergedMining)
		log.Warnf(message)
		return submitError(message)
	}
	// Just in case, remove all references to this block so it cannot be
	// published twice from the live pointers.
	if s.latestBlock == workingBlock {
		s.latestBlock = nil
		s.latestBlockHashForPoW = nil
		s.currentWork.Store(nil)
	}
	newBlock = workingBlock.Clone()
	log.Debugf("%d blocks waiting for PoW", s.blocksWaitingForPoW.len())
	s.mtx.Unlock()

	log.Infof("Received block %d %s", newBlock.Number(), newBlock.Hash())

	var headerBuf bytes.Buffer
	err = bitcoinBlock.Header.Serialize(&headerBuf)
	if err != nil {
		return submitError(fmt.Sprintf("Cannot serialize bitcoin header: %s", err))
	}
	var coinbaseBuf bytes.Buffer
	err = coinbaseTransaction.Serialize(&coinbaseBuf)
	if err != nil {
		return submitError(fmt.Sprintf("Cannot serialize coinbase transaction: %s", err))
	}
	compressedCoinbase, err := CompressCoinbaseWithTagPosition(coinbaseBuf.Bytes(), lastTag)
	if err != nil {
		return submitError(fmt.Sprintf("Cannot compress coinbase transaction: %s", err))
	}
	serializedMerkleBranch, err := merkleBranch.Serialize()
	if err != nil {
		return submitError(fmt.Sprintf("Cannot serialize merkle branch: %s", err))
	}

	newBlock.SetBitcoinMergedMiningHeader(headerBuf.Bytes())
	newBlock.SetBitcoinMergedMiningCoinbaseTransaction(compressedCoinbase)
	newBlock.SetBitcoinMergedMiningMerkleProof(serializedMerkleBranch)
	newBlock.Seal()

	if !s.isValidBlock(newBlock) {
		message := fmt.Sprintf("Invalid block supplied by miner: %s %s at height %d",
			newBlock.ShortHash(), newBlock.ShortHashForMergedMining(), newBlock.Number())
		log.Errorf(message)
		return submitError(message)
	}

	importResult := s.chain.ImportMinedBlock(newBlock)
	log.Infof("Mined block import result is %s: %s %s at height %d", importResult,
		newBlock.ShortHash(), newBlock.ShortHashForMergedMining(), newBlock.Number())
	return SubmitBlockResult{
		Status:  SubmitStatusOK,
		Message: "OK",
		BlockInfo: &SubmittedBlockInfo{
			ImportResult: importResult,
			BlockHash:    newBlock.Hash(),
			BlockNumber:  newBlock.Number(),
		},
	}
}

// bitcoinMergedMerkleBranch returns the partial merkle branch proving that
// the coinbase transaction is part of the submitted block's merkle tree.
func bitcoinMergedMerkleBranch(bitcoinBlock *wire.MsgBlock) (*PartialMerkleTree, error) {
	txHashes := make([]*chainhash.Hash, len(bitcoinBlock.Transactions))
	for i, tx := range bitcoinBlock.Transactions {
		txHash := tx.TxHash()
		txHashes[i] = &txHash
	}
	return CoinbaseMerkleBranch(txHashes)
}
