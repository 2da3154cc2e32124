package node

import (
	"os"

	"github.com/pkg/errors"
)

// The validator registry snapshot lives beside the node keys so restarts
// keep validator statistics and the open epoch books.

func registryPath() (string, error) {
	return defaultKeyPath("validators.snap")
}

func (n *Node) restoreRegistry() error {
	path, err := registryPath()
	if err != nil {
		return err
	}

	d, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "reading registry snapshot")
	}

	return n.consensus.Restore(d)
}

func (n *Node) saveRegistry() error {
	path, err := registryPath()
	if err != nil {
		return err
	}

	d, err := n.consensus.Snapshot()
	if err != nil {
		return err
	}

	return os.WriteFile(path, d, 0600)
}
