package node

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/config"
	"github.com/tesserachain/tessera/internal/utils/logging"
	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/consensus"
	"github.com/tesserachain/tessera/pkg/contract"
	"github.com/tesserachain/tessera/pkg/cryptography"
	"github.com/tesserachain/tessera/pkg/mempool"
	"github.com/tesserachain/tessera/pkg/shard"
	"github.com/tesserachain/tessera/pkg/storage"
)

// Node wires the chain, consensus, shard and storage layers onto the p2p
// collaborator and owns the mining and sync loops.
type Node struct {
	cfg *config.Config
	p2p *p2pHost

	store     storage.Store
	chain     *chain.Blockchain
	consensus *consensus.Manager
	shards    *shard.Manager
	mempool   *mempool.Pool
	engine    contract.Engine
	miner     *chain.Miner

	wallet     *cryptography.PrivateKey
	walletAddr string

	miningMu     sync.Mutex
	miningCancel context.CancelFunc

	beacon <-chan uint64

	logger *logrus.Entry
}

func (n *Node) Store() storage.Store {
	return n.store
}

func (n *Node) Chain() *chain.Blockchain {
	return n.chain
}

func (n *Node) Consensus() *consensus.Manager {
	return n.consensus
}

// Shards returns nil when sharding is disabled.
func (n *Node) Shards() *shard.Manager {
	return n.shards
}

func (n *Node) Mempool() *mempool.Pool {
	return n.mempool
}

func (n *Node) Address() string {
	return n.walletAddr
}

func NewNode(ctx context.Context, opts ...NodeOption) (*Node, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		engine: contract.NoopEngine{},
		logger: logging.Entry().WithField("component", "node"),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	if n.wallet == nil {
		n.wallet, err = LoadOrCreateWalletKey(cfg.Wallet().KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading wallet key")
		}
	}

	pub, err := n.wallet.Public().Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding wallet key")
	}
	n.walletAddr = cryptography.AddressFromPublicKey(pub)

	if n.store == nil {
		if path := cfg.Storage().Path; path != "" {
			n.store, err = storage.NewPebbleStore(path)
			if err != nil {
				return nil, errors.Wrap(err, "opening pebble store")
			}
		} else {
			n.store = storage.NewMemStore()
		}
	}

	n.chain, err = chain.New(cfg.Chain().Params, chain.WithPersistence(n.store))
	if err != nil {
		return nil, errors.Wrap(err, "initing chain")
	}

	n.consensus = consensus.NewManager(cfg.Consensus().Params, n.chain)

	if err := n.restoreRegistry(); err != nil {
		n.logger.WithError(err).Warn("restoring validator registry")
	}

	if g := cfg.Chain().Genesis; g != nil {
		for _, v := range g.Validators {
			_, err := n.consensus.RegisterValidator(v.Address, v.Stake, v.PublicKey)
			if err != nil && !errors.Is(err, consensus.ErrDuplicateValidator) {
				return nil, errors.Wrapf(err, "registering genesis validator %s", v.Address)
			}
		}
	}

	if cfg.Sharding().Enabled {
		n.shards, err = shard.NewManager(cfg.Sharding().Params, n.wallet, n.consensus)
		if err != nil {
			return nil, errors.Wrap(err, "initing shards")
		}
	}

	n.mempool = mempool.New()
	n.miner = chain.NewMiner(cfg.Chain().Params, n.wallet)

	n.p2p, err = newP2PHost(ctx, cfg)
	if err != nil {
		return nil, err
	}

	go n.watchEvents()

	if err := n.bootstrap(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "bootstrapping p2p")
	}

	drandc, err := newDrandClient()
	if err != nil {
		n.logger.WithError(err).Warn("beacon unavailable, falling back to local cadence")
	} else {
		n.beacon = watchBeacon(ctx, drandc)
	}

	return n, nil
}

func (n *Node) watchEvents() {
	sub, err := n.p2p.host.EventBus().Subscribe(event.WildcardSubscription)
	if err != nil {
		n.logger.WithError(err).Error("subscribing to p2p events")
		return
	}

	defer sub.Close()
	for e := range sub.Out() {
		switch eventType := e.(type) {
		case event.EvtLocalAddressesUpdated:
			evt := e.(event.EvtLocalAddressesUpdated)
			for _, addr := range evt.Current {
				if addr.Action != event.Maintained {
					actionStr := "added"
					if addr.Action == event.Removed {
						actionStr = "removed"
					}
					n.logger.WithField("addr", addr.Address.String()).WithField("action", actionStr).Info("updated reachability")
				}
			}
		default:
			n.logger.WithField("event", e).Debugf("unknown event %T", eventType)
		}
	}
}

func (n *Node) ListenAndServe(ctx context.Context) error {
	n.logger.WithField("addrs", n.p2p.host.Addrs()).WithField("id", n.p2p.host.ID().String()).Info("Starting listening")

	if err := n.listen(ctx); err != nil {
		return errors.Wrap(err, "attaching topic handlers")
	}

	go n.syncLoop(ctx)
	go n.miningLoop(ctx)

	<-ctx.Done()

	return nil
}

func (n *Node) Stop() error {
	n.logger.Warn("Shutting down")

	n.cancelMining()

	if err := n.saveRegistry(); err != nil {
		n.logger.WithError(err).Error("saving validator registry")
	}

	if err := n.p2p.host.Close(); err != nil {
		n.logger.WithError(err).Error("closing p2p host")
	}

	return n.store.Close()
}

func (n *Node) bootstrap(ctx context.Context, cfg *config.Config) error {
	n.logger.Debugf("bootstrapping P2P host")

	peers := cfg.P2P().BootstrapPeers
	if len(peers) == 0 {
		n.logger.Debug("no bootstrapping peers")
	}

	var wg sync.WaitGroup

	for _, peerAddr := range peers {
		ma, err := multiaddr.NewMultiaddr(peerAddr)
		if err != nil {
			return errors.Wrap(err, "parsing bootstrap multiaddr")
		}

		peerinfo, _ := peer.AddrInfoFromP2pAddr(ma)
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := n.p2p.Connect(ctx, *peerinfo); err != nil {
				n.logger.WithField("peer", peerinfo.String()).WithError(err).Warning("failed to connect to bootstrap peer")
			} else {
				n.logger.Debug("Connection established with bootstrap peer:", *peerinfo)
			}
		}()
	}
	wg.Wait()

	return nil
}
