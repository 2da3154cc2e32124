package shard

import (
	"encoding/hex"
	"sync"

	"github.com/multiformats/go-multihash"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/pkg/chain"
)

// Shard is an independently-chained partition of the address space. Its id is
// derived once at initialization and never changes; the validator set grows
// via assignment and never shrinks.
type Shard struct {
	mu sync.RWMutex

	ID        string
	Index     int
	CreatedAt int64
	Proof     []byte

	blocks        []*chain.Block
	state         map[string]uint64
	pending       map[string]*chain.Transaction
	validators    map[string]struct{}
	lastProcessed uint64
}

type shardIDDigest struct {
	Index     int    `msgpack:"i"`
	CreatedAt int64  `msgpack:"t"`
	Proof     []byte `msgpack:"p"`
}

func shardIDPayload(index int, createdAt int64) []byte {
	d, _ := msgpack.Marshal(&shardIDDigest{Index: index, CreatedAt: createdAt})
	return d
}

func deriveShardID(index int, createdAt int64, proof []byte) string {
	d, _ := msgpack.Marshal(&shardIDDigest{Index: index, CreatedAt: createdAt, Proof: proof})

	mh, _ := multihash.Sum(d, multihash.SHA3_256, -1)
	dec, _ := multihash.Decode(mh)

	return hex.EncodeToString(dec.Digest)
}

func newShard(index int, createdAt int64, proof []byte) *Shard {
	return &Shard{
		ID:         deriveShardID(index, createdAt, proof),
		Index:      index,
		CreatedAt:  createdAt,
		Proof:      proof,
		state:      make(map[string]uint64),
		pending:    make(map[string]*chain.Transaction),
		validators: make(map[string]struct{}),
	}
}

func (s *Shard) addPending(tx *chain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[tx.Hash] = tx
}

func (s *Shard) removePending(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, hash)
}

func (s *Shard) HasPending(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.pending[hash]

	return ok
}

func (s *Shard) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pending)
}

func (s *Shard) addValidator(publicKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.validators[publicKey] = struct{}{}
}

func (s *Shard) hasValidator(publicKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.validators[publicKey]

	return ok
}

func (s *Shard) ValidatorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.validators)
}

func (s *Shard) ChainLength() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blocks)
}

func (s *Shard) LastProcessedBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastProcessed
}

func (s *Shard) StateOf(address string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state[address]
}

// appendBlock accepts a finalized block onto the shard's own chain and
// applies its transactions to shard state. Height must strictly increase and
// timestamps must not go backwards. Pending-table cleanup is the manager's
// job: cross-shard entries must survive here until both shards finalize.
func (s *Shard) appendBlock(b *chain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.blocks); n > 0 {
		last := s.blocks[n-1]
		if b.Height <= last.Height || b.Timestamp < last.Timestamp {
			return
		}
	}

	s.blocks = append(s.blocks, b)
	s.lastProcessed = b.Height

	for _, tx := range b.Transactions {
		s.state[tx.Recipient] += tx.Amount
		if !tx.IsCoinbase() {
			if held := s.state[tx.Sender]; held >= tx.Amount {
				s.state[tx.Sender] = held - tx.Amount
			} else {
				s.state[tx.Sender] = 0
			}
		}
	}
}
