package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/tesserachain/tessera/pkg/chain"
)

var (
	_ Store = (*MemStore)(nil)
)

// MemStore keeps the whole chain in memory. It backs tests and light
// ephemeral nodes.
type MemStore struct {
	mu sync.RWMutex

	byHash   map[string]*chain.Block
	byHeight map[uint64]string
	txs      map[string]*chain.Transaction
	txBlock  map[string]string
	byAddr   map[string][]string
	blooms   map[string][]byte

	txSeen *bloom.BloomFilter

	height int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		byHash:   make(map[string]*chain.Block),
		byHeight: make(map[uint64]string),
		txs:      make(map[string]*chain.Transaction),
		txBlock:  make(map[string]string),
		byAddr:   make(map[string][]string),
		blooms:   make(map[string][]byte),
		txSeen:   newTxBloom(),
		height:   -1,
	}
}

func (m *MemStore) SaveBlock(_ context.Context, b *chain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexBlock(b)

	return nil
}

func (m *MemStore) indexBlock(b *chain.Block) {
	m.byHash[b.Hash] = b
	m.byHeight[b.Height] = b.Hash

	if f, err := MakeBlockBloom(b); err == nil {
		m.blooms[b.Hash] = f
	}

	for _, t := range b.Transactions {
		m.txs[t.Hash] = t
		m.txBlock[t.Hash] = b.Hash
		m.txSeen.Add([]byte(t.Hash))
		m.byAddr[t.Sender] = append(m.byAddr[t.Sender], t.Hash)
		m.byAddr[t.Recipient] = append(m.byAddr[t.Recipient], t.Hash)
	}

	if int64(b.Height) > m.height {
		m.height = int64(b.Height)
	}
}

func (m *MemStore) SaveChain(_ context.Context, blocks []*chain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byHash = make(map[string]*chain.Block)
	m.byHeight = make(map[uint64]string)
	m.txs = make(map[string]*chain.Transaction)
	m.txBlock = make(map[string]string)
	m.byAddr = make(map[string][]string)
	m.blooms = make(map[string][]byte)
	m.txSeen = newTxBloom()
	m.height = -1

	for _, b := range blocks {
		m.indexBlock(b)
	}

	return nil
}

func (m *MemStore) GetChain(_ context.Context) ([]*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.height < 0 {
		return nil, ErrNotFound
	}

	blocks := make([]*chain.Block, 0, m.height+1)
	for h := uint64(0); int64(h) <= m.height; h++ {
		hash, ok := m.byHeight[h]
		if !ok {
			return nil, ErrNotFound
		}
		blocks = append(blocks, m.byHash[hash])
	}

	return blocks, nil
}

func (m *MemStore) GetBlockByHash(_ context.Context, hash string) (*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}

	return b, nil
}

func (m *MemStore) GetBlockByHeight(_ context.Context, height uint64) (*chain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hash, ok := m.byHeight[height]
	if !ok {
		return nil, ErrNotFound
	}

	return m.byHash[hash], nil
}

func (m *MemStore) GetTransaction(_ context.Context, hash string) (*chain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.txs[hash]
	if !ok {
		return nil, ErrNotFound
	}

	return t, nil
}

func (m *MemStore) HasTransaction(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// bloom miss is a definite no; a hit still needs the table
	if !m.txSeen.Test([]byte(hash)) {
		return false, nil
	}

	_, ok := m.txs[hash]

	return ok, nil
}

func (m *MemStore) GetAddressTransactions(_ context.Context, address string) ([]*chain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes, ok := m.byAddr[address]
	if !ok || len(hashes) == 0 {
		return nil, ErrNotFound
	}

	txs := make([]*chain.Transaction, 0, len(hashes))
	for _, h := range hashes {
		txs = append(txs, m.txs[h])
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp > txs[j].Timestamp
	})

	return txs, nil
}

func (m *MemStore) GetChainHeight(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.height, nil
}

func (m *MemStore) Close() error {
	return nil
}
