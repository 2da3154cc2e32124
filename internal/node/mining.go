package node

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/consensus"
	"github.com/tesserachain/tessera/pkg/contract"
)

// miningLoop attempts a block on every beacon round and at least once per
// block interval. Attempts are skipped unless the lottery selects this node.
func (n *Node) miningLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.Chain().Params.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case r, ok := <-n.beacon:
			if !ok {
				n.beacon = nil
				continue
			}
			n.logger.WithField("beacon", r).Debug("beacon round")
		}

		n.tryMine(ctx)
	}
}

func (n *Node) tryMine(ctx context.Context) {
	v, err := n.consensus.SelectNextValidator()
	if err != nil {
		if errors.Is(err, consensus.ErrInsufficientValidators) {
			n.logger.Debug("no active validators, skipping round")
			return
		}

		n.logger.WithError(err).Error("selecting validator")
		return
	}

	if v.Address != n.walletAddr {
		n.logger.WithField("selected", v.Address).Debug("not selected this round")
		return
	}

	prev := n.chain.Last()
	txs := n.collectTxs(ctx)
	txs = append([]*chain.Transaction{chain.NewCoinbase(n.walletAddr, prev.Height+1)}, txs...)

	mctx, cancel := context.WithCancel(ctx)
	n.setMiningCancel(cancel)
	defer n.clearMiningCancel()

	b, err := n.miner.Mine(mctx, prev, txs)
	if err != nil {
		n.requeue(txs)
		if mctx.Err() != nil {
			n.logger.Debug("mining attempt superseded")
			return
		}

		n.logger.WithError(err).Error("mining block")
		return
	}

	if err := n.chain.AddBlock(ctx, b); err != nil {
		n.requeue(txs)
		n.logger.WithError(err).Warn("own block rejected")
		return
	}

	n.consensus.ValidateBlock(b, v)

	if err := n.p2p.Publish(ctx, blockTopic, &Msg{Type: MsgTypeBlock, Block: b}); err != nil {
		n.logger.WithError(err).Error("broadcasting block")
	}

	n.logger.WithFields(logrus.Fields{
		"height": b.Height,
		"txs":    len(b.Transactions),
	}).Info("produced block")
}

// collectTxs pulls candidates from the mempool and gates contract calls
// through the engine; failed calls are dropped from the block.
func (n *Node) collectTxs(ctx context.Context) []*chain.Transaction {
	candidates := n.mempool.Take(chain.MaxBlockTxCount - 1)

	out := make([]*chain.Transaction, 0, len(candidates))
	for _, tx := range candidates {
		if !tx.IsContractCall() {
			out = append(out, tx)
			continue
		}

		call, err := contract.ParseCall(tx.Data)
		if err != nil {
			n.logger.WithError(err).WithField("tx", tx.Hash).Warn("dropping malformed contract call")
			continue
		}

		res, err := n.engine.Execute(ctx, call)
		if err != nil || !res.OK {
			n.logger.WithField("tx", tx.Hash).Warn("dropping failed contract call")
			continue
		}

		out = append(out, tx)
	}

	return out
}

// requeue returns non-coinbase transactions to the mempool after a failed
// attempt.
func (n *Node) requeue(txs []*chain.Transaction) {
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		n.mempool.Add(tx)
	}
}

func (n *Node) setMiningCancel(cancel context.CancelFunc) {
	n.miningMu.Lock()
	defer n.miningMu.Unlock()

	n.miningCancel = cancel
}

func (n *Node) clearMiningCancel() {
	n.miningMu.Lock()
	defer n.miningMu.Unlock()

	if n.miningCancel != nil {
		n.miningCancel()
		n.miningCancel = nil
	}
}

// cancelMining aborts any in-flight attempt; called when a competing block
// for the same height arrives.
func (n *Node) cancelMining() {
	n.miningMu.Lock()
	defer n.miningMu.Unlock()

	if n.miningCancel != nil {
		n.miningCancel()
	}
}
