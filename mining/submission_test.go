package mining

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/emberchain/emberd/core"
)

// buildBitcoinBlock builds a minimal solved bitcoin block whose coinbase
// embeds the given merged mining hash, plus optional extra transactions.
func buildBitcoinBlock(hashForMergedMining core.Hash, extraTxs int) *wire.MsgBlock {
	script := make([]byte, 0, len(MergedMiningTag)+len(hashForMergedMining))
	script = append(script, MergedMiningTag...)
	script = append(script, hashForMergedMining[:]...)

	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, script, nil))
	coinbase.AddTxOut(wire.NewTxOut(0, []byte{0x51}))

	block := &wire.MsgBlock{Header: wire.BlockHeader{Version: 1}}
	block.AddTransaction(coinbase)
	for i := 0; i < extraTxs; i++ {
		tx := wire.NewMsgTx(1)
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: uint32(i + 1)}, nil, nil))
		tx.AddTxOut(wire.NewTxOut(int64(i+1), []byte{0x51}))
		block.AddTransaction(tx)
	}
	return block
}

func TestSubmitBitcoinBlock(t *testing.T) {
	h := newTestHarness(t)
	h.executor.setFees(1000)
	h.build(t)
	work := h.server.GetWork()

	bitcoinBlock := buildBitcoinBlock(work.BlockHashForMergedMining, 2)
	result := h.server.SubmitBitcoinBlock(work.BlockHashForMergedMining.String(), bitcoinBlock)
	if result.Status != SubmitStatusOK {
		t.Fatalf("SubmitBitcoinBlock: got status %s (%s), want OK", result.Status, result.Message)
	}
	if result.BlockInfo == nil {
		t.Fatalf("SubmitBitcoinBlock: OK result without block info")
	}
	if result.BlockInfo.ImportResult != core.ImportedBest {
		t.Errorf("ImportResult: got %s, want %s", result.BlockInfo.ImportResult, core.ImportedBest)
	}
	if result.BlockInfo.BlockNumber != 1 {
		t.Errorf("BlockNumber: got %d, want 1", result.BlockInfo.BlockNumber)
	}

	imported := h.chain.importedBlocks()
	if len(imported) != 1 {
		t.Fatalf("imported blocks: got %d, want 1", len(imported))
	}
	published := imported[0]
	if !published.Sealed() {
		t.Errorf("the published block is not sealed")
	}
	if published.HashForMergedMining() != work.BlockHashForMergedMining {
		t.Errorf("the published block's merged mining hash changed")
	}
	if len(published.Header.BitcoinMergedMiningHeader) != 80 {
		t.Errorf("bitcoin header proof: got %d bytes, want 80", len(published.Header.BitcoinMergedMiningHeader))
	}
	if !bytes.Contains(published.Header.BitcoinMergedMiningCoinbaseTransaction, MergedMiningTag) {
		t.Errorf("the stored coinbase does not carry the merged mining tag")
	}
	if len(published.Header.BitcoinMergedMiningMerkleProof) == 0 {
		t.Errorf("the merkle proof is empty")
	}

	// The solved candidate is no longer offered as work.
	if again := h.server.GetWork(); again != nil {
		t.Errorf("GetWork after a successful submission: got %+v, want nil", again)
	}
}

func TestSubmitBitcoinBlockInvalidHash(t *testing.T) {
	h := newTestHarness(t)
	h.build(t)
	bitcoinBlock := buildBitcoinBlock(testHash(1), 0)

	result := h.server.SubmitBitcoinBlock("not-a-hash", bitcoinBlock)
	if result.Status != SubmitStatusError {
		t.Fatalf("SubmitBitcoinBlock with a bad hash string: got status %s", result.Status)
	}
}

func TestSubmitBitcoinBlockUnknownHash(t *testing.T) {
	h := newTestHarness(t)
	h.executor.setFees(1000)
	h.build(t)

	unknown := testHash(0x77)
	bitcoinBlock := buildBitcoinBlock(unknown, 0)
	result := h.server.SubmitBitcoinBlock(unknown.String(), bitcoinBlock)
	if result.Status != SubmitStatusError {
		t.Fatalf("SubmitBitcoinBlock with an unknown hash: got status %s", result.Status)
	}
	if !strings.Contains(result.Message, "could not find hash") {
		t.Errorf("unexpected message: %s", result.Message)
	}
	if len(h.chain.importedBlocks()) != 0 {
		t.Errorf("an unknown hash submission imported a block")
	}

	// The current candidate survives a rejected submission.
	if h.server.GetWork() == nil {
		t.Errorf("a rejected submission dropped the current work")
	}
}

func TestSubmitBitcoinBlockWithoutTransactions(t *testing.T) {
	h := newTestHarness(t)
	h.build(t)
	work := h.server.GetWork()

	result := h.server.SubmitBitcoinBlock(work.BlockHashForMergedMining.String(), &wire.MsgBlock{})
	if result.Status != SubmitStatusError {
		t.Fatalf("SubmitBitcoinBlock without transactions: got status %s", result.Status)
	}
}

func TestSubmitBitcoinBlockInvalidPow(t *testing.T) {
	h := newTestHarness(t)
	h.build(t)
	work := h.server.GetWork()
	h.pow.valid = false

	bitcoinBlock := buildBitcoinBlock(work.BlockHashForMergedMining, 0)
	result := h.server.SubmitBitcoinBlock(work.BlockHashForMergedMining.String(), bitcoinBlock)
	if result.Status != SubmitStatusError {
		t.Fatalf("SubmitBitcoinBlock with invalid PoW: got status %s", result.Status)
	}
	if !strings.Contains(result.Message, "Invalid block supplied by miner") {
		t.Errorf("unexpected message: %s", result.Message)
	}
	if len(h.chain.importedBlocks()) != 0 {
		t.Errorf("an invalid submission imported a block")
	}
}

func TestSubmitStaleCandidate(t *testing.T) {
	h := newTestHarness(t)
	h.executor.setFees(1000)
	h.build(t)
	stale := h.server.GetWork()

	// Advance the clock so the rebuilt candidate hashes differently.
	h.clock.set(genesisTimestamp + 60)
	h.build(t)
	current := h.server.GetWork()
	if current.BlockHashForMergedMining == stale.BlockHashForMergedMining {
		t.Fatalf("the rebuilt candidate has the same merged mining hash")
	}

	// The stale candidate is still in the cache and publishable, and its
	// submission leaves the current candidate in place.
	bitcoinBlock := buildBitcoinBlock(stale.BlockHashForMergedMining, 1)
	result := h.server.SubmitBitcoinBlock(stale.BlockHashForMergedMining.String(), bitcoinBlock)
	if result.Status != SubmitStatusOK {
		t.Fatalf("submitting a stale candidate: got status %s (%s)", result.Status, result.Message)
	}
	after := h.server.GetWork()
	if after == nil || after.BlockHashForMergedMining != current.BlockHashForMergedMining {
		t.Fatalf("submitting a stale candidate disturbed the current work")
	}
}
