package mining

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// PartialMerkleTree is a pruned form of a bitcoin block's merkle tree that
// proves inclusion of a chosen subset of its transactions. Serialization is
// bitcoin compatible, so foreign chain tooling can verify it directly.
type PartialMerkleTree struct {
	numTransactions uint32
	hashes          []*chainhash.Hash
	bits            []bool
}

// CoinbaseMerkleBranch builds the partial merkle tree proving inclusion of
// the coinbase transaction among the given ordered transaction hashes of a
// bitcoin block. The coinbase is always the transaction at index 0, so the
// inclusion bit vector has exactly bit 0 set.
func CoinbaseMerkleBranch(txHashes []*chainhash.Hash) (*PartialMerkleTree, error) {
	if len(txHashes) == 0 {
		return nil, errors.New("cannot build a merkle branch without transactions")
	}
	includeBits := make([]byte, (len(txHashes)+7)/8)
	setBitLE(includeBits, 0)
	return buildPartialMerkleTree(includeBits, txHashes), nil
}

// buildPartialMerkleTree builds the partial tree over all transaction
// hashes, keeping the ones selected by includeBits provable.
func buildPartialMerkleTree(includeBits []byte, txHashes []*chainhash.Hash) *PartialMerkleTree {
	pmt := &PartialMerkleTree{numTransactions: uint32(len(txHashes))}
	height := 0
	for pmt.treeWidth(height) > 1 {
		height++
	}
	pmt.traverseAndBuild(height, 0, includeBits, txHashes)
	return pmt
}

// treeWidth returns the number of nodes at the given height of the tree.
func (pmt *PartialMerkleTree) treeWidth(height int) int {
	return (int(pmt.numTransactions) + (1 << height) - 1) >> height
}

func (pmt *PartialMerkleTree) traverseAndBuild(height, pos int, includeBits []byte, txHashes []*chainhash.Hash) {
	// The flag for this node tells whether it is the ancestor of an
	// included leaf.
	parentOfMatch := false
	for p := pos << height; p < (pos+1)<<height && p < int(pmt.numTransactions); p++ {
		if getBitLE(includeBits, p) {
			parentOfMatch = true
		}
	}
	pmt.bits = append(pmt.bits, parentOfMatch)

	if height == 0 || !parentOfMatch {
		// Leaf, or a fully pruned subtree: store its hash and stop.
		pmt.hashes = append(pmt.hashes, pmt.calcHash(height, pos, txHashes))
		return
	}

	pmt.traverseAndBuild(height-1, pos*2, includeBits, txHashes)
	if pos*2+1 < pmt.treeWidth(height-1) {
		pmt.traverseAndBuild(height-1, pos*2+1, includeBits, txHashes)
	}
}

func (pmt *PartialMerkleTree) calcHash(height, pos int, txHashes []*chainhash.Hash) *chainhash.Hash {
	if height == 0 {
		return txHashes[pos]
	}
	left := pmt.calcHash(height-1, pos*2, txHashes)
	right := left
	if pos*2+1 < pmt.treeWidth(height-1) {
		right = pmt.calcHash(height-1, pos*2+1, txHashes)
	}
	return hashMerkleBranches(left, right)
}

// hashMerkleBranches returns the double-SHA256 of the concatenation of the
// left and right branch hashes.
func hashMerkleBranches(left, right *chainhash.Hash) *chainhash.Hash {
	var data [2 * chainhash.HashSize]byte
	copy(data[:chainhash.HashSize], left[:])
	copy(data[chainhash.HashSize:], right[:])
	hash := chainhash.DoubleHashH(data[:])
	return &hash
}

// NumTransactions returns the total transaction count of the proven block.
func (pmt *PartialMerkleTree) NumTransactions() uint32 {
	return pmt.numTransactions
}

// Hashes returns the pruned tree's stored hashes, in depth-first order.
func (pmt *PartialMerkleTree) Hashes() []*chainhash.Hash {
	return pmt.hashes
}

// Serialize returns the bitcoin wire encoding of the partial merkle tree:
// the total transaction count, the stored hashes and the traversal flag
// bits packed little-endian within each byte.
func (pmt *PartialMerkleTree) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := pmt.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (pmt *PartialMerkleTree) encode(w io.Writer) error {
	err := binary.Write(w, binary.LittleEndian, pmt.numTransactions)
	if err != nil {
		return errors.Wrap(err, "failed to write transaction count")
	}
	err = wire.WriteVarInt(w, 0, uint64(len(pmt.hashes)))
	if err != nil {
		return errors.Wrap(err, "failed to write hash count")
	}
	for _, hash := range pmt.hashes {
		if _, err := w.Write(hash[:]); err != nil {
			return errors.Wrap(err, "failed to write hash")
		}
	}
	packed := make([]byte, (len(pmt.bits)+7)/8)
	for i, bit := range pmt.bits {
		if bit {
			setBitLE(packed, i)
		}
	}
	err = wire.WriteVarInt(w, 0, uint64(len(packed)))
	if err != nil {
		return errors.Wrap(err, "failed to write flag byte count")
	}
	if _, err := w.Write(packed); err != nil {
		return errors.Wrap(err, "failed to write flag bits")
	}
	return nil
}

// setBitLE sets bit i of data, counting bits little-endian within each
// byte.
func setBitLE(data []byte, i int) {
	data[i>>3] |= 1 << (uint(i) & 7)
}

// getBitLE returns bit i of data, counting bits little-endian within each
// byte.
func getBitLE(data []byte, i int) bool {
	return data[i>>3]&(1<<(uint(i)&7)) != 0
}
