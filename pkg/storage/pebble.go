package storage

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/tesserachain/tessera/pkg/chain"
)

var (
	_ Store = (*PebbleStore)(nil)
)

const (
	tableSep           byte = ':'
	tableSepUpperBound      = tableSep + 1
)

type tablePrefix byte

const (
	blockTPrefix tablePrefix = iota + 1
	heightTPrefix
	txTPrefix
	txBlockTPrefix
	addrTxTPrefix
	blockBloomTPrefix
	metaTPrefix
)

const (
	metaHeightKey  = "height"
	metaTxBloomKey = "txbloom"
)

// PebbleStore persists the chain in a pebble KV database using prefix-byte
// tables. A seen-transaction bloom filter is kept in memory and flushed with
// the metadata table on Close.
type PebbleStore struct {
	db *pebble.DB

	mu     sync.RWMutex
	txSeen *bloom.BloomFilter
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble store")
	}

	s := &PebbleStore{
		db:     db,
		txSeen: newTxBloom(),
	}

	if err := s.loadTxBloom(); err != nil {
		return nil, errors.Wrap(err, "restoring tx bloom")
	}

	return s, nil
}

func tKey(t tablePrefix, parts ...[]byte) []byte {
	k := []byte{byte(t)}
	for _, p := range parts {
		k = append(k, tableSep)
		k = append(k, p...)
	}

	return k
}

func heightKey(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)

	return tKey(heightTPrefix, b)
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "reading key")
	}

	out := make([]byte, len(v))
	copy(out, v)

	if err := closer.Close(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *PebbleStore) SaveBlock(ctx context.Context, b *chain.Block) error {
	batch := s.db.NewBatch()

	if err := s.batchBlock(batch, b); err != nil {
		return err
	}

	cur, err := s.GetChainHeight(ctx)
	if err != nil {
		return err
	}
	if int64(b.Height) > cur {
		hb := make([]byte, 8)
		binary.BigEndian.PutUint64(hb, b.Height)
		if err := batch.Set(tKey(metaTPrefix, []byte(metaHeightKey)), hb, nil); err != nil {
			return errors.Wrap(err, "staging height")
		}
	}

	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return errors.Wrap(err, "applying block batch")
	}

	return nil
}

func (s *PebbleStore) batchBlock(batch *pebble.Batch, b *chain.Block) error {
	d, err := b.Marshal()
	if err != nil {
		return err
	}

	if err := batch.Set(tKey(blockTPrefix, []byte(b.Hash)), d, nil); err != nil {
		return errors.Wrap(err, "staging block")
	}
	if err := batch.Set(heightKey(b.Height), []byte(b.Hash), nil); err != nil {
		return errors.Wrap(err, "staging height index")
	}

	if f, err := MakeBlockBloom(b); err == nil {
		if err := batch.Set(tKey(blockBloomTPrefix, []byte(b.Hash)), f, nil); err != nil {
			return errors.Wrap(err, "staging block bloom")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range b.Transactions {
		td, err := t.Marshal()
		if err != nil {
			return err
		}

		if err := batch.Set(tKey(txTPrefix, []byte(t.Hash)), td, nil); err != nil {
			return errors.Wrap(err, "staging tx")
		}
		if err := batch.Set(tKey(txBlockTPrefix, []byte(t.Hash)), []byte(b.Hash), nil); err != nil {
			return errors.Wrap(err, "staging tx block index")
		}

		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(t.Timestamp))
		for _, addr := range []string{t.Sender, t.Recipient} {
			if err := batch.Set(tKey(addrTxTPrefix, []byte(addr), ts, []byte(t.Hash)), []byte(t.Hash), nil); err != nil {
				return errors.Wrap(err, "staging address index")
			}
		}

		s.txSeen.Add([]byte(t.Hash))
	}

	return nil
}

func (s *PebbleStore) SaveChain(ctx context.Context, blocks []*chain.Block) error {
	// replacement drops every table before rewriting so no stale fork blocks
	// survive above the new tip
	for p := blockTPrefix; p <= blockBloomTPrefix; p++ {
		if err := s.db.DeleteRange([]byte{byte(p)}, []byte{byte(p) + 1}, pebble.Sync); err != nil {
			return errors.Wrap(err, "clearing table")
		}
	}

	s.mu.Lock()
	s.txSeen = newTxBloom()
	s.mu.Unlock()

	batch := s.db.NewBatch()

	var height uint64
	for _, b := range blocks {
		if err := s.batchBlock(batch, b); err != nil {
			return err
		}
		height = b.Height
	}

	hb := make([]byte, 8)
	binary.BigEndian.PutUint64(hb, height)
	if err := batch.Set(tKey(metaTPrefix, []byte(metaHeightKey)), hb, nil); err != nil {
		return errors.Wrap(err, "staging height")
	}

	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return errors.Wrap(err, "applying chain batch")
	}

	return nil
}

func (s *PebbleStore) GetChain(ctx context.Context) ([]*chain.Block, error) {
	height, err := s.GetChainHeight(ctx)
	if err != nil {
		return nil, err
	}
	if height < 0 {
		return nil, ErrNotFound
	}

	blocks := make([]*chain.Block, 0, height+1)
	for h := uint64(0); int64(h) <= height; h++ {
		b, err := s.GetBlockByHeight(ctx, h)
		if err != nil {
			return nil, errors.Wrapf(err, "reading block at height %d", h)
		}
		blocks = append(blocks, b)
	}

	return blocks, nil
}

func (s *PebbleStore) GetBlockByHash(_ context.Context, hash string) (*chain.Block, error) {
	d, err := s.get(tKey(blockTPrefix, []byte(hash)))
	if err != nil {
		return nil, err
	}

	b := &chain.Block{}
	if err := b.Unmarshal(d); err != nil {
		return nil, errors.Wrap(err, "unmarshalling block")
	}

	return b, nil
}

func (s *PebbleStore) GetBlockByHeight(ctx context.Context, height uint64) (*chain.Block, error) {
	hash, err := s.get(heightKey(height))
	if err != nil {
		return nil, err
	}

	return s.GetBlockByHash(ctx, string(hash))
}

func (s *PebbleStore) GetTransaction(_ context.Context, hash string) (*chain.Transaction, error) {
	d, err := s.get(tKey(txTPrefix, []byte(hash)))
	if err != nil {
		return nil, err
	}

	t := &chain.Transaction{}
	if err := t.Unmarshal(d); err != nil {
		return nil, errors.Wrap(err, "unmarshalling tx")
	}

	return t, nil
}

func (s *PebbleStore) HasTransaction(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	hit := s.txSeen.Test([]byte(hash))
	s.mu.RUnlock()

	if !hit {
		return false, nil
	}

	if _, err := s.get(tKey(txTPrefix, []byte(hash))); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *PebbleStore) GetAddressTransactions(ctx context.Context, address string) ([]*chain.Transaction, error) {
	lower := tKey(addrTxTPrefix, []byte(address))
	lower = append(lower, tableSep)
	upper := tKey(addrTxTPrefix, []byte(address))
	upper = append(upper, tableSepUpperBound)

	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	defer iter.Close()

	txs := []*chain.Transaction{}
	seen := map[string]struct{}{}

	// keys are ordered oldest-first by timestamp; walk backwards for the
	// newest-first contract
	for ok := iter.Last(); ok; ok = iter.Prev() {
		hash := string(iter.Value())
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		t, err := s.GetTransaction(ctx, hash)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}

	if len(txs) == 0 {
		return nil, ErrNotFound
	}

	return txs, nil
}

func (s *PebbleStore) GetChainHeight(_ context.Context) (int64, error) {
	d, err := s.get(tKey(metaTPrefix, []byte(metaHeightKey)))
	if errors.Is(err, ErrNotFound) {
		return -1, nil
	} else if err != nil {
		return -1, err
	}

	return int64(binary.BigEndian.Uint64(d)), nil
}

func (s *PebbleStore) loadTxBloom() error {
	d, err := s.get(tKey(metaTPrefix, []byte(metaTxBloomKey)))
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	return s.txSeen.GobDecode(d)
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	d, err := s.txSeen.GobEncode()
	s.mu.Unlock()

	if err == nil {
		if err := s.db.Set(tKey(metaTPrefix, []byte(metaTxBloomKey)), d, pebble.Sync); err != nil {
			return errors.Wrap(err, "flushing tx bloom")
		}
	}

	return s.db.Close()
}
