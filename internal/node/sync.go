package node

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// syncLoop periodically asks the network for a longer chain. The interval
// backs off while the node stays at the same height and resets whenever the
// chain grows.
func (n *Node) syncLoop(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    5 * time.Second,
		Max:    2 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	lastHeight := n.chain.Height()

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.Duration()):
		}

		if h := n.chain.Height(); h > lastHeight {
			lastHeight = h
			b.Reset()
		}

		if err := n.requestSync(ctx); err != nil {
			n.logger.WithError(err).Error("requesting chain sync")
		}
	}
}

func (n *Node) requestSync(ctx context.Context) error {
	return n.p2p.Publish(ctx, syncTopic, &Msg{
		Type: MsgTypeSyncRequest,
		Sync: &SyncMsg{FromHeight: n.chain.Height()},
	})
}
