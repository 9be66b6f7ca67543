package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// BloomSize is the size in bytes of a block's logs bloom.
const BloomSize = 256

// BlockHeader is the header of a block of the chain. The three
// BitcoinMergedMining fields carry the proof that work done on the bitcoin
// chain commits to this block; they are excluded from the hash used for
// merged mining, since that hash is what the bitcoin coinbase embeds.
type BlockHeader struct {
	ParentHash      Hash
	UnclesHash      Hash
	Coinbase        Address
	StateRoot       Hash
	TxTrieRoot      Hash
	ReceiptTrieRoot Hash
	LogsBloom       [BloomSize]byte
	Difficulty      *big.Int
	Number          uint64
	GasLimit        *big.Int
	GasUsed         uint64
	Timestamp       int64
	ExtraData       []byte
	Version         byte
	MinimumGasPrice *big.Int
	UncleCount      int
	PaidFees        *big.Int

	BitcoinMergedMiningHeader              []byte
	BitcoinMergedMiningCoinbaseTransaction []byte
	BitcoinMergedMiningMerkleProof         []byte
}

// headerRLP is the wire form of the header base fields. Signed and derived
// fields are converted to RLP encodable types.
type headerRLP struct {
	ParentHash      Hash
	UnclesHash      Hash
	Coinbase        Address
	StateRoot       Hash
	TxTrieRoot      Hash
	ReceiptTrieRoot Hash
	LogsBloom       [BloomSize]byte
	Difficulty      *big.Int
	Number          uint64
	GasLimit        *big.Int
	GasUsed         uint64
	Timestamp       uint64
	ExtraData       []byte
	Version         uint64
	MinimumGasPrice *big.Int
	UncleCount      uint64
	PaidFees        *big.Int
}

func (h *BlockHeader) toRLP() *headerRLP {
	return &headerRLP{
		ParentHash:      h.ParentHash,
		UnclesHash:      h.UnclesHash,
		Coinbase:        h.Coinbase,
		StateRoot:       h.StateRoot,
		TxTrieRoot:      h.TxTrieRoot,
		ReceiptTrieRoot: h.ReceiptTrieRoot,
		LogsBloom:       h.LogsBloom,
		Difficulty:      h.Difficulty,
		Number:          h.Number,
		GasLimit:        h.GasLimit,
		GasUsed:         h.GasUsed,
		Timestamp:       uint64(h.Timestamp),
		ExtraData:       h.ExtraData,
		Version:         uint64(h.Version),
		MinimumGasPrice: h.MinimumGasPrice,
		UncleCount:      uint64(h.UncleCount),
		PaidFees:        h.PaidFees,
	}
}

// EncodeBase returns the RLP encoding of the header without the merged
// mining fields.
func (h *BlockHeader) EncodeBase() []byte {
	encoded, err := rlp.EncodeToBytes(h.toRLP())
	if err != nil {
		panic(err)
	}
	return encoded
}

// Encode returns the full RLP encoding of the header, merged mining fields
// included.
func (h *BlockHeader) Encode() []byte {
	full := struct {
		Base                                   *headerRLP
		BitcoinMergedMiningHeader              []byte
		BitcoinMergedMiningCoinbaseTransaction []byte
		BitcoinMergedMiningMerkleProof         []byte
	}{
		Base:                                   h.toRLP(),
		BitcoinMergedMiningHeader:              h.BitcoinMergedMiningHeader,
		BitcoinMergedMiningCoinbaseTransaction: h.BitcoinMergedMiningCoinbaseTransaction,
		BitcoinMergedMiningMerkleProof:         h.BitcoinMergedMiningMerkleProof,
	}
	encoded, err := rlp.EncodeToBytes(&full)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hash returns the block hash, the Keccak-256 digest of the full header
// encoding.
func (h *BlockHeader) Hash() Hash {
	return Keccak256(h.Encode())
}

// HashForMergedMining returns the hash that miners embed in the bitcoin
// coinbase transaction. It commits to everything in the header except the
// merged mining fields themselves.
func (h *BlockHeader) HashForMergedMining() Hash {
	return Keccak256(h.EncodeBase())
}

// Clone returns a deep copy of the header.
func (h *BlockHeader) Clone() *BlockHeader {
	clone := &BlockHeader{
		ParentHash:      h.ParentHash,
		UnclesHash:      h.UnclesHash,
		Coinbase:        h.Coinbase,
		StateRoot:       h.StateRoot,
		TxTrieRoot:      h.TxTrieRoot,
		ReceiptTrieRoot: h.ReceiptTrieRoot,
		LogsBloom:       h.LogsBloom,
		Number:          h.Number,
		GasUsed:         h.GasUsed,
		Timestamp:       h.Timestamp,
		Version:         h.Version,
		UncleCount:      h.UncleCount,
	}
	if h.Difficulty != nil {
		clone.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	if h.GasLimit != nil {
		clone.GasLimit = new(big.Int).Set(h.GasLimit)
	}
	if h.MinimumGasPrice != nil {
		clone.MinimumGasPrice = new(big.Int).Set(h.MinimumGasPrice)
	}
	if h.PaidFees != nil {
		clone.PaidFees = new(big.Int).Set(h.PaidFees)
	}
	if h.ExtraData != nil {
		clone.ExtraData = append([]byte(nil), h.ExtraData...)
	}
	if h.BitcoinMergedMiningHeader != nil {
		clone.BitcoinMergedMiningHeader = append([]byte(nil), h.BitcoinMergedMiningHeader...)
	}
	if h.BitcoinMergedMiningCoinbaseTransaction != nil {
		clone.BitcoinMergedMiningCoinbaseTransaction = append([]byte(nil), h.BitcoinMergedMiningCoinbaseTransaction...)
	}
	if h.BitcoinMergedMiningMerkleProof != nil {
		clone.BitcoinMergedMiningMerkleProof = append([]byte(nil), h.BitcoinMergedMiningMerkleProof...)
	}
	return clone
}

// DeriveUnclesHash returns the hash committing to the given uncle header
// list.
func DeriveUnclesHash(uncles []*BlockHeader) Hash {
	encoded := make([][]byte, len(uncles))
	for i, uncle := range uncles {
		encoded[i] = uncle.Encode()
	}
	joined, err := rlp.EncodeToBytes(encoded)
	if err != nil {
		panic(err)
	}
	return Keccak256(joined)
}
