package storage

import (
	"context"

	"github.com/tesserachain/tessera/pkg/chain"
)

// Store is the persistence capability consumed by the core. The engine
// behind it is replaceable; the core only relies on these operations.
type Store interface {
	GetChain(ctx context.Context) ([]*chain.Block, error)
	SaveBlock(ctx context.Context, b *chain.Block) error
	SaveChain(ctx context.Context, blocks []*chain.Block) error

	GetBlockByHash(ctx context.Context, hash string) (*chain.Block, error)
	GetBlockByHeight(ctx context.Context, height uint64) (*chain.Block, error)

	GetTransaction(ctx context.Context, hash string) (*chain.Transaction, error)
	HasTransaction(ctx context.Context, hash string) (bool, error)

	// GetAddressTransactions returns confirmed transactions involving the
	// address, newest first.
	GetAddressTransactions(ctx context.Context, address string) ([]*chain.Transaction, error)

	// GetChainHeight returns -1 when no chain has been stored yet.
	GetChainHeight(ctx context.Context) (int64, error)

	Close() error
}
