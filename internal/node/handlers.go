package node

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

func (n *Node) listen(ctx context.Context) error {
	handlers := map[string]func(context.Context, *Inbound){
		txTopic:    n.onTx,
		blockTopic: n.onBlock,
		syncTopic:  n.onSync,
	}

	for topic, handle := range handlers {
		ch, err := n.p2p.Msgs(ctx, topic)
		if err != nil {
			return err
		}

		go func(handle func(context.Context, *Inbound)) {
			for in := range ch {
				handle(ctx, in)
			}
		}(handle)
	}

	return nil
}

func (n *Node) onTx(ctx context.Context, in *Inbound) {
	tx := in.Msg.Tx
	if tx == nil {
		return
	}

	if n.mempool.Has(tx.Hash) {
		return
	}
	if seen, err := n.store.HasTransaction(ctx, tx.Hash); err == nil && seen {
		return
	}

	if err := tx.Validate(); err != nil {
		n.logger.WithError(err).WithField("from", in.From).Warn("rejecting inbound tx")
		return
	}

	if n.shards != nil {
		if _, err := n.shards.SubmitTransaction(tx); err != nil {
			n.logger.WithError(err).Warn("routing tx to shards")
			return
		}
	}

	n.mempool.Add(tx)
}

func (n *Node) onBlock(ctx context.Context, in *Inbound) {
	b := in.Msg.Block
	if b == nil {
		return
	}

	tip := n.chain.Last()
	if b.Height <= tip.Height {
		return
	}

	if b.Height > tip.Height+1 {
		// gap; pull the longer chain instead
		if err := n.requestSync(ctx); err != nil {
			n.logger.WithError(err).Error("requesting sync")
		}
		return
	}

	if err := n.chain.AddBlock(ctx, b); err != nil {
		n.logger.WithError(err).WithField("from", in.From).Warn("rejecting inbound block")
		return
	}

	// someone else won this height
	n.cancelMining()

	if len(b.ProducerKey) > 0 {
		if v, ok := n.consensus.Validator(cryptography.AddressFromPublicKey(b.ProducerKey)); ok {
			n.consensus.ValidateBlock(b, v)
		}
	}

	for _, tx := range b.Transactions {
		n.mempool.Remove(tx.Hash)
	}
}

func (n *Node) onSync(ctx context.Context, in *Inbound) {
	sm := in.Msg.Sync
	if sm == nil {
		return
	}

	switch in.Msg.Type {
	case MsgTypeSyncRequest:
		if n.chain.Height() <= sm.FromHeight {
			return
		}

		resp := &Msg{
			Type: MsgTypeSyncResponse,
			Sync: &SyncMsg{Blocks: n.chain.Blocks()},
		}
		if err := n.p2p.Publish(ctx, syncTopic, resp); err != nil {
			n.logger.WithError(err).Error("publishing sync response")
		}

	case MsgTypeSyncResponse:
		if len(sm.Blocks) == 0 {
			return
		}

		err := n.chain.Replace(ctx, sm.Blocks)
		if err != nil {
			if !errors.Is(err, chain.ErrChainNotLonger) {
				n.logger.WithError(err).WithField("from", in.From).Warn("rejecting candidate chain")
			}
			return
		}

		for _, b := range sm.Blocks {
			for _, tx := range b.Transactions {
				n.mempool.Remove(tx.Hash)
			}
		}
	}
}
