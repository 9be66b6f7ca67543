package mining

import (
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/emberchain/emberd/core"
)

// Fallback key file names. The key used for a block is selected by the
// parity of its number: even numbers sign with key 0, odd with key 1.
const (
	fallbackKeyFile0 = "privkey0.bin"
	fallbackKeyFile1 = "privkey1.bin"
)

// fallbackKeySize is the size of a raw secp256k1 private key file.
const fallbackKeySize = 32

// fallbackExtraDataMarker is stamped into the extra data of fallback mined
// blocks so they can be told apart from merged mined ones.
const fallbackExtraDataMarker = 42

// fallbackKeys is the process-wide cache of the two fallback signing keys.
// A key file is read at most once per process after it has been found; a
// missing file is retried on the next attempt.
var fallbackKeys = struct {
	sync.Mutex
	keys [2]*btcec.PrivateKey
}{}

// fallbackKey returns the cached fallback key of the given index, loading
// it from keysDir on first use. It returns nil when the key file is absent
// or unreadable.
func fallbackKey(keysDir string, index int) *btcec.PrivateKey {
	fallbackKeys.Lock()
	defer fallbackKeys.Unlock()
	if fallbackKeys.keys[index] != nil {
		return fallbackKeys.keys[index]
	}
	fileName := fallbackKeyFile0
	if index == 1 {
		fileName = fallbackKeyFile1
	}
	raw, err := os.ReadFile(filepath.Join(keysDir, fileName))
	if err != nil || len(raw) < fallbackKeySize {
		return nil
	}
	fallbackKeys.keys[index], _ = btcec.PrivKeyFromBytes(raw[:fallbackKeySize])
	return fallbackKeys.keys[index]
}

// resetFallbackKeys drops the process-wide key cache. It exists for tests.
func resetFallbackKeys() {
	fallbackKeys.Lock()
	defer fallbackKeys.Unlock()
	fallbackKeys.keys[0] = nil
	fallbackKeys.keys[1] = nil
}

// GenerateFallbackBlock produces a block sealed with the fallback signature
// instead of bitcoin proof of work, and imports it. It returns true iff a
// block was produced and the import succeeded.
//
// The current candidate is consumed up front: it is cloned and the shared
// latest-block pointer is cleared immediately, so a given candidate is
// attempted at most once. If the required key turns out to be missing the
// candidate is lost; the next rebuild supplies a new one.
func (s *MinerServer) GenerateFallbackBlock() bool {
	s.mtx.Lock()
	if s.latestBlock == nil {
		s.mtx.Unlock()
		return false
	}
	newBlock := s.latestBlock.Clone()
	s.latestBlock = nil
	s.mtx.Unlock()

	keyIndex := 0
	if newBlock.Number()%2 != 0 {
		keyIndex = 1
	}
	privateKey := fallbackKey(s.cfg.FallbackKeysDir, keyIndex)
	if privateKey == nil {
		log.Warnf("Fallback mining key %d is not available, cannot generate block %d",
			keyIndex, newBlock.Number())
		return false
	}

	// Set the timestamp now, to control the mining interval, and
	// recompute the difficulty for it.
	newHeader := newBlock.Header
	newHeader.Timestamp = s.CurrentTimeInSeconds()
	parentBlock := s.chain.BlockByHash(newHeader.ParentHash)
	if parentBlock == nil {
		log.Errorf("Cannot generate fallback block %d: parent %s is unknown",
			newBlock.Number(), newHeader.ParentHash.Short())
		return false
	}
	newHeader.Difficulty = s.difficulty.Difficulty(newHeader, parentBlock.Header)

	newBlock.SetExtraData([]byte{fallbackExtraDataMarker})
	signature, err := fallbackSign(newBlock.HashForMergedMining(), privateKey)
	if err != nil {
		log.Errorf("Cannot sign fallback block %d: %+v", newBlock.Number(), err)
		return false
	}
	newBlock.SetBitcoinMergedMiningHeader(signature)
	newBlock.Seal()

	if !s.isValidBlock(newBlock) {
		log.Errorf("Invalid fallback block: %s %s at height %d",
			newBlock.ShortHash(), newBlock.ShortHashForMergedMining(), newBlock.Number())
		return false
	}

	importResult := s.chain.ImportMinedBlock(newBlock)
	s.mtx.Lock()
	s.fallbackBlocksGenerated++
	s.mtx.Unlock()
	log.Infof("Fallback block import result is %s: %s %s at height %d", importResult,
		newBlock.ShortHash(), newBlock.ShortHashForMergedMining(), newBlock.Number())
	return importResult.IsSuccessful()
}

// fallbackSign signs the merged mining hash with a recoverable ECDSA
// signature and encodes it as the RLP list [v, r, s], which is what the
// proof of work rule expects in the merged mining header field of fallback
// blocks.
func fallbackSign(hash core.Hash, privateKey *btcec.PrivateKey) ([]byte, error) {
	compact := ecdsa.SignCompact(privateKey, hash[:], false)
	v := compact[0]
	r := new(big.Int).SetBytes(compact[1:33])
	sValue := new(big.Int).SetBytes(compact[33:65])
	encoded, err := rlp.EncodeToBytes([]interface{}{[]byte{v}, r.Bytes(), sValue.Bytes()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode fallback signature")
	}
	return encoded, nil
}
