package node

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p"
	connmgriFace "github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	discovery "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/host/peerstore/pstoremem"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/internal/config"
	"github.com/tesserachain/tessera/internal/utils/logging"
)

const pubsubBuf = 32

// Inbound is a decoded gossip message together with its origin peer.
type Inbound struct {
	From peer.ID
	Msg  *Msg
}

type p2pHost struct {
	host host.Host

	peerStore peerstore.Peerstore
	connMgr   connmgriFace.ConnManager
	pubsub    *pubsub.PubSub
	dht       *dht.IpfsDHT
	discovery *discovery.RoutingDiscovery

	topicsMu sync.Mutex
	topics   map[string]*pubsub.Topic

	logger *logrus.Entry
}

func newP2PHost(ctx context.Context, cfg *config.Config) (*p2pHost, error) {
	var err error
	h := &p2pHost{
		topics: make(map[string]*pubsub.Topic),
		logger: logging.Entry().WithField("component", "p2p"),
	}

	id, err := getIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}

	listeningAddrs, err := buildListeningAddrs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h.connMgr, err = connmgr.NewConnManager(
		cfg.P2P().Connections.PeersCountLow,
		cfg.P2P().Connections.PeersCountHigh,
	)
	if err != nil {
		return nil, err
	}

	h.peerStore, err = pstoremem.NewPeerstore()
	if err != nil {
		return nil, err
	}

	opts := []libp2p.Option{
		id,
		listeningAddrs,
		libp2p.DefaultTransports,
		libp2p.DefaultResourceManager,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.ConnectionManager(h.connMgr),
		libp2p.Peerstore(h.peerStore),
		libp2p.NATPortMap(),
		libp2p.EnableNATService(),
	}

	if cfg.P2P().Relay {
		opts = append(opts, libp2p.EnableRelay(), libp2p.EnableAutoRelay())
	}

	h.host, err = libp2p.NewWithoutDefaults(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating libp2p host")
	}

	h.dht, err = dht.New(ctx, h.host)
	if err != nil {
		return nil, errors.Wrap(err, "initing DHT")
	}
	if err := h.dht.Bootstrap(ctx); err != nil {
		return nil, errors.Wrap(err, "bootstrapping DHT")
	}

	h.discovery = discovery.NewRoutingDiscovery(h.dht)

	h.pubsub, err = newGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func newGossipSub(ctx context.Context, h *p2pHost) (*pubsub.PubSub, error) {
	p, err := pubsub.NewGossipSub(ctx, h.host,
		pubsub.WithPeerExchange(true),
		pubsub.WithStrictSignatureVerification(true),
		pubsub.WithDiscovery(h.discovery),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating gossipsub router")
	}

	return p, nil
}

func (h *p2pHost) Connect(ctx context.Context, pi peer.AddrInfo) error {
	return h.host.Connect(ctx, pi)
}

func (h *p2pHost) topic(name string) (*pubsub.Topic, error) {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()

	t, ok := h.topics[name]
	if ok {
		return t, nil
	}

	t, err := h.pubsub.Join(name)
	if err != nil {
		return nil, errors.Wrapf(err, "joining topic %s", name)
	}
	h.topics[name] = t

	return t, nil
}

// Msgs subscribes to a topic and returns the decoded message stream. Own
// messages are dropped so handlers never observe their own broadcasts.
func (h *p2pHost) Msgs(ctx context.Context, name string) (<-chan *Inbound, error) {
	t, err := h.topic(name)
	if err != nil {
		return nil, err
	}

	sub, err := t.Subscribe()
	if err != nil {
		return nil, errors.Wrapf(err, "subscribing to topic %s", name)
	}

	msgCh := make(chan *Inbound, pubsubBuf)

	go func() {
		defer sub.Cancel()

		for {
			m, err := sub.Next(ctx)
			if err != nil {
				h.logger.WithError(err).Errorf("sub %s closed", name)
				close(msgCh)
				return
			}

			if m.ReceivedFrom == h.host.ID() {
				continue
			}

			msg := &Msg{}
			if err := msgpack.Unmarshal(m.Data, msg); err != nil {
				h.logger.WithError(err).WithField("from", m.ReceivedFrom).Error("unmarshalling msg")
				continue
			}

			msgCh <- &Inbound{From: m.ReceivedFrom, Msg: msg}
		}
	}()

	return msgCh, nil
}

func (h *p2pHost) Publish(ctx context.Context, name string, m *Msg) error {
	t, err := h.topic(name)
	if err != nil {
		return err
	}

	b, err := m.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshaling msg")
	}

	return t.Publish(ctx, b)
}

func buildListeningAddrs(ctx context.Context, cfg *config.Config) (libp2p.Option, error) {
	maAddrs := []multiaddr.Multiaddr{}

	for _, addr := range cfg.P2P().ListenAddrs {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, err
		}
		maAddrs = append(maAddrs, maddr)
	}

	return libp2p.ListenAddrs(maAddrs...), nil
}
