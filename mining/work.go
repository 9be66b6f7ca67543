package mining

import (
	"math/big"

	"github.com/emberchain/emberd/core"
)

// TargetSize is the size in bytes of a work target.
const TargetSize = 32

// MinerWork is the work descriptor handed to external miners: what to
// embed, what target to beat and whether long-polling miners should be
// notified. MinerWork values are immutable; every rebuild, and the
// notify-once transition of GetWork, publishes a fresh instance.
type MinerWork struct {
	// BlockHashForMergedMining is the hash the miner embeds in the
	// bitcoin coinbase transaction.
	BlockHashForMergedMining core.Hash

	// Target is the big-endian 256-bit value the bitcoin block hash must
	// be below.
	Target [TargetSize]byte

	// FeesPaidToMiner is the total fees of the candidate. Callers must
	// not mutate it.
	FeesPaidToMiner *big.Int

	// Notify tells pools to push the new work to their miners.
	Notify bool

	// ParentBlockHash is the hash of the candidate's parent.
	ParentBlockHash core.Hash
}

// withoutNotify returns a copy of the work with the notify flag cleared.
func (w *MinerWork) withoutNotify() *MinerWork {
	return &MinerWork{
		BlockHashForMergedMining: w.BlockHashForMergedMining,
		Target:                   w.Target,
		FeesPaidToMiner:          w.FeesPaidToMiner,
		Notify:                   false,
		ParentBlockHash:          w.ParentBlockHash,
	}
}

// oneLsh256 is 1 shifted left 256 bits.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// difficultyToTarget converts a block difficulty to the 32 byte big-endian
// target miners compare block hashes against.
func difficultyToTarget(difficulty *big.Int) [TargetSize]byte {
	d := difficulty
	if d == nil || d.Sign() <= 0 {
		d = big.NewInt(1)
	}
	t := new(big.Int).Div(oneLsh256, d)
	var target [TargetSize]byte
	b := t.Bytes()
	if len(b) > TargetSize {
		// Difficulty below one: saturate at the maximum target.
		for i := range target {
			target[i] = 0xff
		}
		return target
	}
	copy(target[TargetSize-len(b):], b)
	return target
}
