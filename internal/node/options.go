package node

import (
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/pkg/contract"
	"github.com/tesserachain/tessera/pkg/cryptography"
	"github.com/tesserachain/tessera/pkg/storage"
)

type NodeOption func(*Node) error

func WithStore(s storage.Store) NodeOption {
	return func(n *Node) error {
		n.store = s
		return nil
	}
}

func WithWalletKey(k *cryptography.PrivateKey) NodeOption {
	return func(n *Node) error {
		n.wallet = k
		return nil
	}
}

func WithContractEngine(e contract.Engine) NodeOption {
	return func(n *Node) error {
		n.engine = e
		return nil
	}
}

func WithLogger(l *logrus.Entry) NodeOption {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}
