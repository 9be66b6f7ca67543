package core

import (
	"fmt"
	"math/big"
)

// Block is a block header together with its transaction and uncle lists.
// A block placed in the miner server's work cache is immutable: anything
// that needs to mutate it first takes a Clone.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
	Uncles       []*BlockHeader

	sealed bool
	hash   Hash
}

// NewBlock returns a new block with the given header, transactions and
// uncles.
func NewBlock(header *BlockHeader, txs []*Transaction, uncles []*BlockHeader) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
		Uncles:       uncles,
	}
}

// Clone returns a deep, unsealed copy of the block.
func (b *Block) Clone() *Block {
	txs := make([]*Transaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.Clone()
	}
	uncles := make([]*BlockHeader, len(b.Uncles))
	for i, uncle := range b.Uncles {
		uncles[i] = uncle.Clone()
	}
	return &Block{
		Header:       b.Header.Clone(),
		Transactions: txs,
		Uncles:       uncles,
	}
}

// Seal freezes the block and caches its hash. Mutating a sealed block is a
// programming error and panics.
func (b *Block) Seal() {
	if b.sealed {
		return
	}
	b.hash = b.Header.Hash()
	b.sealed = true
}

// Sealed reports whether Seal has been called on the block.
func (b *Block) Sealed() bool {
	return b.sealed
}

// Hash returns the block hash. For sealed blocks the cached hash is
// returned.
func (b *Block) Hash() Hash {
	if b.sealed {
		return b.hash
	}
	return b.Header.Hash()
}

// HashForMergedMining returns the hash the bitcoin coinbase embeds for this
// block.
func (b *Block) HashForMergedMining() Hash {
	return b.Header.HashForMergedMining()
}

// Number returns the block height.
func (b *Block) Number() uint64 {
	return b.Header.Number
}

// ParentHash returns the hash of the block's parent.
func (b *Block) ParentHash() Hash {
	return b.Header.ParentHash
}

// PaidFees returns the total fees the block pays to its miner. It is filled
// in by block execution; before that it is zero.
func (b *Block) PaidFees() *big.Int {
	if b.Header.PaidFees == nil {
		return new(big.Int)
	}
	return b.Header.PaidFees
}

// ShortHash returns an abbreviated block hash for log messages.
func (b *Block) ShortHash() string {
	return b.Hash().Short()
}

// ShortHashForMergedMining returns an abbreviated merged mining hash for log
// messages.
func (b *Block) ShortHashForMergedMining() string {
	return b.HashForMergedMining().Short()
}

// SetExtraData sets the operator-chosen extra data of the block.
func (b *Block) SetExtraData(extraData []byte) {
	b.mustBeUnsealed()
	b.Header.ExtraData = extraData
}

// SetBitcoinMergedMiningHeader sets the serialized bitcoin header proving
// the merged mining work (or, for fallback blocks, the block signature).
func (b *Block) SetBitcoinMergedMiningHeader(header []byte) {
	b.mustBeUnsealed()
	b.Header.BitcoinMergedMiningHeader = header
}

// SetBitcoinMergedMiningCoinbaseTransaction sets the compressed bitcoin
// coinbase transaction embedding this block's merged mining hash.
func (b *Block) SetBitcoinMergedMiningCoinbaseTransaction(tx []byte) {
	b.mustBeUnsealed()
	b.Header.BitcoinMergedMiningCoinbaseTransaction = tx
}

// SetBitcoinMergedMiningMerkleProof sets the serialized partial merkle tree
// proving the coinbase transaction's inclusion in the bitcoin block.
func (b *Block) SetBitcoinMergedMiningMerkleProof(proof []byte) {
	b.mustBeUnsealed()
	b.Header.BitcoinMergedMiningMerkleProof = proof
}

func (b *Block) mustBeUnsealed() {
	if b.sealed {
		panic(fmt.Sprintf("attempt to mutate sealed block %s", b.hash))
	}
}
