package mining

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/emberchain/emberd/core"
)

// transactionsForNewBlock assembles the ordered transaction list of a new
// candidate: the pending set plus the synthetic fee-distribution
// transaction, filtered for nonce validity and the floor gas price against
// the state at the parent's state root. Transactions that fail filtering
// are returned separately so the caller can schedule their removal from
// the pool.
func (s *MinerServer) transactionsForNewBlock(newBlockParent *core.Block,
	minimumGasPrice *big.Int) (txs, txsToRemove []*core.Transaction, err error) {

	pending := s.txPool.PendingTransactions()
	log.Debugf("Pending transaction list size %d", len(pending))

	candidates := make([]*core.Transaction, 0, len(pending)+1)
	candidates = append(candidates, pending...)
	candidates = append(candidates, core.NewFeeDistributionTransaction(newBlockParent.Number()+1))

	accounts, err := s.snapshots.Snapshot(newBlockParent.Header.StateRoot)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "no state snapshot at root %s", newBlockParent.Header.StateRoot)
	}

	txs, txsToRemove = filterTransactions(candidates, accounts, minimumGasPrice)
	return txs, txsToRemove, nil
}

// filterTransactions keeps transactions whose nonce continues the sender's
// account nonce sequence and whose gas price meets the floor. The synthetic
// fee-distribution transaction always passes.
func filterTransactions(candidates []*core.Transaction, accounts AccountReader,
	minimumGasPrice *big.Int) (kept, removed []*core.Transaction) {

	accountNonces := make(map[core.Address]uint64)
	for _, tx := range candidates {
		if tx.IsFeeDistribution() {
			kept = append(kept, tx)
			continue
		}
		expectedNonce, ok := accountNonces[tx.From]
		if !ok {
			expectedNonce = accounts.NonceAt(tx.From)
		}
		if tx.Nonce != expectedNonce || tx.GasPrice == nil || tx.GasPrice.Cmp(minimumGasPrice) < 0 {
			removed = append(removed, tx)
			continue
		}
		kept = append(kept, tx)
		accountNonces[tx.From] = expectedNonce + 1
	}
	return kept, removed
}

// removePendingTransactions reports the removal side effects of filtering
// back to the transaction pool.
func (s *MinerServer) removePendingTransactions(txs []*core.Transaction) {
	if len(txs) == 0 {
		return
	}
	for _, tx := range txs {
		log.Infof("Removing transaction %s", tx.Hash())
	}
	s.txPool.RemoveTransactions(txs)
	s.txPool.RemoveWireTransactions(txs)
}
