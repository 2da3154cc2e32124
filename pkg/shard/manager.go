package shard

import (
	"encoding/hex"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/utils/logging"
	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

type Params struct {
	TotalShards           int
	MinValidatorsPerShard int
	ConsensusThreshold    float64
}

func DefaultParams() *Params {
	return &Params{
		TotalShards:           4,
		MinValidatorsPerShard: 1,
		ConsensusThreshold:    0.67,
	}
}

// Verifier is the signature-verification capability the manager borrows from
// the consensus layer.
type Verifier interface {
	VerifySignature(publicKey, msg, signature []byte) bool
}

// ValidatorSignature is one validator's endorsement of a shard block hash.
type ValidatorSignature struct {
	PublicKey []byte `msgpack:"pk"`
	Signature []byte `msgpack:"sig"`
}

// Manager owns the shard map, the validator assignments and the cross-shard
// tracking table. The shard id slice is built once at initialization and
// indexed directly; routing never depends on map iteration order.
type Manager struct {
	mu sync.Mutex

	params *Params

	signer    *cryptography.PrivateKey
	signerPub []byte
	verifier  Verifier

	ids         []string
	shards      map[string]*Shard
	assignments map[string]string
	crossShard  map[string]*CrossShardTransaction

	now    func() time.Time
	logger *logrus.Entry
}

type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(params *Params, signer *cryptography.PrivateKey, verifier Verifier, opts ...Option) (*Manager, error) {
	if params == nil {
		params = DefaultParams()
	}
	if params.TotalShards < 1 {
		return nil, errors.New("at least one shard is required")
	}
	if signer == nil {
		return nil, errors.New("nil shard signer")
	}

	pub, err := signer.Public().Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding shard signer key")
	}

	m := &Manager{
		params:      params,
		signer:      signer,
		signerPub:   pub,
		verifier:    verifier,
		shards:      make(map[string]*Shard, params.TotalShards),
		assignments: make(map[string]string),
		crossShard:  make(map[string]*CrossShardTransaction),
		now:         time.Now,
		logger:      logging.Entry().WithField("component", "shard"),
	}

	for _, o := range opts {
		o(m)
	}

	createdAt := m.now().Unix()
	for i := 0; i < params.TotalShards; i++ {
		proof, err := signer.Sign(shardIDPayload(i, createdAt))
		if err != nil {
			return nil, errors.Wrapf(err, "proving shard %d identity", i)
		}

		s := newShard(i, createdAt, proof)
		m.ids = append(m.ids, s.ID)
		m.shards[s.ID] = s
	}

	m.logger.WithField("shards", len(m.ids)).Info("shards initialized")

	return m, nil
}

// ShardIDs returns the stable ordered enumeration established at
// initialization.
func (m *Manager) ShardIDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)

	return out
}

func (m *Manager) Shard(id string) (*Shard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shards[id]
	if !ok {
		return nil, ErrShardNotFound
	}

	return s, nil
}

// ShardOf routes an address deterministically: its route digest modulo the
// shard count indexes the ordered id slice.
func (m *Manager) ShardOf(address string) *Shard {
	h := new(big.Int).SetBytes(cryptography.RouteHash(address))
	i := h.Mod(h, big.NewInt(int64(len(m.ids)))).Int64()

	return m.shards[m.ids[i]]
}

// IsLocal reports whether sender and recipient route to the same shard.
func (m *Manager) IsLocal(tx *chain.Transaction) bool {
	return m.ShardOf(tx.Sender).ID == m.ShardOf(tx.Recipient).ID
}

// AssignValidator admits a validator onto whichever shard currently holds the
// fewest validators. The signature must be the validator's own proof over its
// public key.
func (m *Manager) AssignValidator(publicKey, signature []byte) (string, error) {
	if !m.verifier.VerifySignature(publicKey, publicKey, signature) {
		return "", ErrInvalidSignature
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := hex.EncodeToString(publicKey)
	if id, ok := m.assignments[key]; ok {
		return id, nil
	}

	target := m.shards[m.ids[0]]
	for _, id := range m.ids[1:] {
		if s := m.shards[id]; s.ValidatorCount() < target.ValidatorCount() {
			target = s
		}
	}

	target.addValidator(key)
	m.assignments[key] = target.ID

	m.logger.WithFields(logrus.Fields{
		"shard":      target.ID,
		"validators": target.ValidatorCount(),
	}).Debug("validator assigned")

	return target.ID, nil
}

// ValidatorShard returns the shard a validator was assigned to.
func (m *Manager) ValidatorShard(publicKey []byte) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.assignments[hex.EncodeToString(publicKey)]

	return id, ok
}

// SubmitTransaction routes a transaction. Local transactions land in their
// shard's pending table and nil is returned. Cross-shard transactions are
// recorded pending with a proof binding (hash, source, target) and enter
// BOTH shards' pending tables; the tracking entry is returned.
func (m *Manager) SubmitTransaction(tx *chain.Transaction) (*CrossShardTransaction, error) {
	source := m.ShardOf(tx.Sender)
	target := m.ShardOf(tx.Recipient)

	if source.ID == target.ID {
		source.addPending(tx)
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cst, ok := m.crossShard[tx.Hash]; ok {
		return cst, nil
	}

	proof, err := m.signer.Sign(bindingPayload(tx.Hash, source.ID, target.ID))
	if err != nil {
		return nil, errors.Wrap(err, "proving cross-shard binding")
	}

	cst := &CrossShardTransaction{
		Tx:          tx,
		SourceShard: source.ID,
		TargetShard: target.ID,
		Proof:       proof,
		Status:      StatusPending,
		Timestamp:   m.now().Unix(),
	}

	m.crossShard[tx.Hash] = cst
	source.addPending(tx)
	target.addPending(tx)

	m.logger.WithFields(logrus.Fields{
		"tx":     tx.Hash,
		"source": source.ID,
		"target": target.ID,
	}).Debug("cross-shard transaction tracked")

	return cst, nil
}

// CrossShardTransaction looks up a tracked entry by transaction hash.
func (m *Manager) CrossShardTransaction(hash string) (*CrossShardTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cst, ok := m.crossShard[hash]
	if !ok {
		return nil, ErrUnknownCrossShardTx
	}

	return cst, nil
}

// ValidateCrossShardProof reconstructs the binding payload and checks the
// entry's proof against the manager's signing key. Fails closed.
func (m *Manager) ValidateCrossShardProof(cst *CrossShardTransaction) bool {
	if cst == nil || cst.Tx == nil {
		return false
	}

	payload := bindingPayload(cst.Tx.Hash, cst.SourceShard, cst.TargetShard)

	return cryptography.Verify(m.signerPub, payload, cst.Proof)
}

// FinalizeShardBlock accepts a block onto a shard's chain once a quorum of
// the shard's validators has signed its hash, then advances any cross-shard
// transactions the block carries. The first finalizing shard moves an entry
// to processing; only the other shard finalizing completes it, so a single
// shard can never drive an entry to completion alone. The entire state
// transition runs under the manager's lock so no entry completes while
// either shard still holds it.
func (m *Manager) FinalizeShardBlock(shardID string, b *chain.Block, sigs []ValidatorSignature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shards[shardID]
	if !ok {
		return ErrShardNotFound
	}

	if err := m.checkQuorum(s, b, sigs); err != nil {
		return err
	}

	s.appendBlock(b)

	for _, tx := range b.Transactions {
		cst, ok := m.crossShard[tx.Hash]
		if !ok {
			s.removePending(tx.Hash)
			continue
		}

		switch cst.Status {
		case StatusPending:
			cst.Status = StatusProcessing
			cst.ProcessedBy = shardID
			s.removePending(tx.Hash)
		case StatusProcessing:
			if cst.ProcessedBy == shardID {
				continue
			}

			if err := m.completeLocked(cst); err != nil {
				return err
			}
		}
	}

	m.logger.WithFields(logrus.Fields{
		"shard":  shardID,
		"height": b.Height,
		"txs":    len(b.Transactions),
	}).Debug("shard block finalized")

	return nil
}

// checkQuorum counts distinct, assigned validators with a valid signature
// over the block hash. The count must reach the per-shard floor and the
// configured agreement fraction of the shard's validator set.
func (m *Manager) checkQuorum(s *Shard, b *chain.Block, sigs []ValidatorSignature) error {
	signed := make(map[string]struct{}, len(sigs))
	for _, vs := range sigs {
		key := hex.EncodeToString(vs.PublicKey)
		if !s.hasValidator(key) {
			continue
		}
		if !m.verifier.VerifySignature(vs.PublicKey, []byte(b.Hash), vs.Signature) {
			continue
		}

		signed[key] = struct{}{}
	}

	count := len(signed)
	if count < m.params.MinValidatorsPerShard {
		return errors.Wrapf(ErrQuorumNotMet, "%d of %d signatures", count, m.params.MinValidatorsPerShard)
	}
	if float64(count) < m.params.ConsensusThreshold*float64(s.ValidatorCount()) {
		return errors.Wrapf(ErrQuorumNotMet, "%d signatures below agreement threshold", count)
	}

	return nil
}

// completeLocked runs the second phase: both shards have finalized a block
// carrying the transaction, so it leaves both pending tables for good.
func (m *Manager) completeLocked(cst *CrossShardTransaction) error {
	completedAt := m.now().Unix()

	proof, err := m.signer.Sign(finalizationPayload(cst.Tx.Hash, cst.SourceShard, cst.TargetShard, completedAt))
	if err != nil {
		return errors.Wrap(err, "proving cross-shard finalization")
	}

	m.shards[cst.SourceShard].removePending(cst.Tx.Hash)
	m.shards[cst.TargetShard].removePending(cst.Tx.Hash)

	cst.Status = StatusCompleted
	cst.FinalizationProof = proof
	cst.CompletedAt = completedAt

	m.logger.WithField("tx", cst.Tx.Hash).Debug("cross-shard transaction completed")

	return nil
}

// Info is the per-shard status surface reported by the node.
type Info struct {
	ID            string `msgpack:"id"`
	ChainLength   int    `msgpack:"cl"`
	PendingCount  int    `msgpack:"pc"`
	Validators    int    `msgpack:"v"`
	LastProcessed uint64 `msgpack:"lp"`
}

func (m *Manager) ShardInfo(id string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shards[id]
	if !ok {
		return nil, ErrShardNotFound
	}

	return &Info{
		ID:            s.ID,
		ChainLength:   s.ChainLength(),
		PendingCount:  s.PendingCount(),
		Validators:    s.ValidatorCount(),
		LastProcessed: s.LastProcessedBlock(),
	}, nil
}
