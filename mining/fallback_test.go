package mining

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/emberchain/emberd/core"
)

// writeFallbackKeys generates both fallback signing keys into dir and
// returns them, indexed by the block number parity they sign for.
func writeFallbackKeys(t *testing.T, dir string) [2]*btcec.PrivateKey {
	t.Helper()
	var keys [2]*btcec.PrivateKey
	for i, fileName := range []string{fallbackKeyFile0, fallbackKeyFile1} {
		key, err := btcec.NewPrivateKey()
		if err != nil {
			t.Fatalf("NewPrivateKey: %s", err)
		}
		err = os.WriteFile(filepath.Join(dir, fileName), key.Serialize(), 0600)
		if err != nil {
			t.Fatalf("WriteFile: %s", err)
		}
		keys[i] = key
	}
	return keys
}

func TestGenerateFallbackBlockWithoutCandidate(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	writeFallbackKeys(t, h.cfg.FallbackKeysDir)

	if h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock produced a block without a candidate")
	}
}

func TestGenerateFallbackBlockMissingKeyConsumesCandidate(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	h.build(t)

	// No key files in the keys dir: the attempt fails, and the candidate
	// it consumed is gone until the next rebuild.
	if h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock produced a block without keys")
	}
	if h.server.GenerateFallbackBlock() {
		t.Fatalf("the failed attempt did not consume the candidate")
	}
	if got := h.server.FallbackBlocksGenerated(); got != 0 {
		t.Fatalf("FallbackBlocksGenerated: got %d, want 0", got)
	}

	h.build(t)
	writeFallbackKeys(t, h.cfg.FallbackKeysDir)
	if !h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock failed after a rebuild supplied a new candidate")
	}
}

func TestGenerateFallbackBlock(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	keys := writeFallbackKeys(t, h.cfg.FallbackKeysDir)
	h.executor.setFees(1000)
	h.build(t)

	h.clock.set(genesisTimestamp + 120)
	h.difficulty.value = big.NewInt(8192)

	if !h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock failed")
	}
	if got := h.server.FallbackBlocksGenerated(); got != 1 {
		t.Fatalf("FallbackBlocksGenerated: got %d, want 1", got)
	}

	imported := h.chain.importedBlocks()
	if len(imported) != 1 {
		t.Fatalf("imported blocks: got %d, want 1", len(imported))
	}
	block := imported[0]
	if !block.Sealed() {
		t.Errorf("the fallback block is not sealed")
	}
	if !bytes.Equal(block.Header.ExtraData, []byte{fallbackExtraDataMarker}) {
		t.Errorf("extra data: got %x, want the fallback marker", block.Header.ExtraData)
	}
	if block.Header.Timestamp != genesisTimestamp+120 {
		t.Errorf("timestamp: got %d, want %d", block.Header.Timestamp, genesisTimestamp+120)
	}
	if block.Header.Difficulty.Cmp(big.NewInt(8192)) != 0 {
		t.Errorf("difficulty was not recomputed for the new timestamp")
	}

	// The signature in the merged mining header field is the RLP list
	// [v, r, s] of a recoverable signature over the merged mining hash.
	var sig [][]byte
	err := rlp.DecodeBytes(block.Header.BitcoinMergedMiningHeader, &sig)
	if err != nil {
		t.Fatalf("decoding the fallback signature: %s", err)
	}
	if len(sig) != 3 || len(sig[0]) != 1 {
		t.Fatalf("fallback signature shape: got %d elements", len(sig))
	}
	compact := make([]byte, 65)
	compact[0] = sig[0][0]
	copy(compact[33-len(sig[1]):33], sig[1])
	copy(compact[65-len(sig[2]):65], sig[2])

	hash := block.HashForMergedMining()
	pubKey, _, err := ecdsa.RecoverCompact(compact, hash[:])
	if err != nil {
		t.Fatalf("RecoverCompact: %s", err)
	}
	// Block number 1 is odd, so key 1 signs.
	want := keys[1].PubKey()
	if !bytes.Equal(pubKey.SerializeCompressed(), want.SerializeCompressed()) {
		t.Fatalf("the fallback block is not signed by the parity key")
	}
}

func TestGenerateFallbackBlockUnknownParent(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	writeFallbackKeys(t, h.cfg.FallbackKeysDir)

	orphanParent := core.NewBlock(&core.BlockHeader{
		ParentHash:      testHash(0xEE),
		Number:          7,
		Timestamp:       genesisTimestamp + 5,
		Difficulty:      big.NewInt(4096),
		GasLimit:        big.NewInt(6800000),
		MinimumGasPrice: big.NewInt(1),
		StateRoot:       testHash(0xAB),
	}, nil, nil)
	orphanParent.Seal()

	// A candidate whose parent the chain no longer knows cannot have its
	// difficulty recomputed.
	err := h.server.BuildBlockToMine(orphanParent, false)
	if err != nil {
		t.Fatalf("BuildBlockToMine: %s", err)
	}
	if h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock produced a block with an unknown parent")
	}
	if len(h.chain.importedBlocks()) != 0 {
		t.Fatalf("a failed fallback attempt imported a block")
	}
}

func TestGenerateFallbackBlockInvalidPow(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	writeFallbackKeys(t, h.cfg.FallbackKeysDir)
	h.build(t)
	h.pow.valid = false

	if h.server.GenerateFallbackBlock() {
		t.Fatalf("GenerateFallbackBlock produced a block the PoW rule rejects")
	}
	if len(h.chain.importedBlocks()) != 0 {
		t.Fatalf("an invalid fallback block was imported")
	}
}

func TestFallbackMiningLoop(t *testing.T) {
	resetFallbackKeys()
	defer resetFallbackKeys()
	h := newTestHarness(t)
	writeFallbackKeys(t, h.cfg.FallbackKeysDir)
	h.clock.set(genesisTimestamp + 120)
	h.server.SetSecondsBetweenFallbackBlocks(1)

	h.server.Start()
	defer h.server.Stop()
	h.server.SetFallbackMining(true)

	// The periodic check fires once per second; wait for the first block.
	deadline := time.Now().Add(10 * time.Second)
	for h.server.FallbackBlocksGenerated() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no fallback block was generated before the deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(h.chain.importedBlocks()) == 0 {
		t.Fatalf("the fallback loop did not import a block")
	}
}
