package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// FeeDistributionAddress is the address of the in-protocol contract that
// receives and redistributes the miner fees. The synthetic fee-distribution
// transaction included in every mined block is addressed to it.
var FeeDistributionAddress = Address{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0f, 0xee,
}

// Transaction is a single transaction of the chain. The sender is carried
// explicitly: signature handling belongs to the transaction pool, which only
// hands over transactions whose sender has already been recovered.
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *Address
	Value    *big.Int
	Data     []byte
	From     Address
}

type transactionRLP struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       []byte
	Value    *big.Int
	Data     []byte
	From     Address
}

// Hash returns the transaction hash, the Keccak-256 digest of the RLP
// encoding of the transaction.
func (tx *Transaction) Hash() Hash {
	var to []byte
	if tx.To != nil {
		to = tx.To[:]
	}
	encoded, err := rlp.EncodeToBytes(&transactionRLP{
		Nonce:    tx.Nonce,
		GasPrice: tx.GasPrice,
		Gas:      tx.Gas,
		To:       to,
		Value:    tx.Value,
		Data:     tx.Data,
		From:     tx.From,
	})
	if err != nil {
		// The fields above are all RLP encodable, so this cannot fail
		// at runtime.
		panic(err)
	}
	return Keccak256(encoded)
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	clone := &Transaction{
		Nonce: tx.Nonce,
		Gas:   tx.Gas,
		From:  tx.From,
	}
	if tx.GasPrice != nil {
		clone.GasPrice = new(big.Int).Set(tx.GasPrice)
	}
	if tx.Value != nil {
		clone.Value = new(big.Int).Set(tx.Value)
	}
	if tx.To != nil {
		to := *tx.To
		clone.To = &to
	}
	if tx.Data != nil {
		clone.Data = append([]byte(nil), tx.Data...)
	}
	return clone
}

// NewFeeDistributionTransaction returns the synthetic fee-distribution
// transaction for the block at the given height. It carries no signature and
// is addressed to the fee-distribution contract; its nonce is the height so
// that every block gets a distinct instance.
func NewFeeDistributionTransaction(height uint64) *Transaction {
	to := FeeDistributionAddress
	return &Transaction{
		Nonce:    height,
		GasPrice: new(big.Int),
		To:       &to,
		Value:    new(big.Int),
	}
}

// IsFeeDistribution reports whether the transaction is the synthetic
// fee-distribution transaction.
func (tx *Transaction) IsFeeDistribution() bool {
	return tx.To != nil && *tx.To == FeeDistributionAddress && tx.From == (Address{})
}

// DeriveTransactionsRoot returns the root committing to the ordered
// transaction list of a block.
func DeriveTransactionsRoot(txs []*Transaction) Hash {
	hashes := make([][]byte, len(txs))
	for i, tx := range txs {
		txHash := tx.Hash()
		hashes[i] = txHash.CloneBytes()
	}
	encoded, err := rlp.EncodeToBytes(hashes)
	if err != nil {
		panic(err)
	}
	return Keccak256(encoded)
}
