package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/utils/logging"
	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

type Params struct {
	MinStake        uint64
	MinValidators   int
	BaseBlockReward uint64
	ActivityWindow  time.Duration
	MinReputation   int
	PropagationSLA  time.Duration
	MaxBlockSize    int
	MaxBlockTxCount int
}

func DefaultParams() *Params {
	return &Params{
		MinStake:        500000,
		MinValidators:   1,
		BaseBlockReward: 50,
		ActivityWindow:  24 * time.Hour,
		MinReputation:   50,
		PropagationSLA:  30 * time.Second,
		MaxBlockSize:    chain.MaxBlockSize,
		MaxBlockTxCount: chain.MaxBlockTxCount,
	}
}

// RewardCrediter is the chain-state collaborator's reward-credit interface.
// It is called at most once per validator per epoch; the epoch bookkeeping
// here is what makes that hold.
type RewardCrediter interface {
	CreditReward(address string, amount uint64) error
}

// Entropy draws a uniform value in [0, max). The default is the OS CSPRNG;
// the node may layer beacon randomness on top.
type Entropy func(max uint64) (uint64, error)

// Manager owns the validator registry and the epoch reward books. All
// access goes through its mutex; no other component mutates a Validator.
type Manager struct {
	mu sync.RWMutex

	params      *Params
	validators  map[string]*Validator
	epoch       uint64
	epochBlocks map[uint64]map[string][]string

	crediter RewardCrediter
	entropy  Entropy
	now      func() time.Time

	logger *logrus.Entry
}

type Option func(*Manager)

func WithEntropy(e Entropy) Option {
	return func(m *Manager) {
		m.entropy = e
	}
}

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(params *Params, crediter RewardCrediter, opts ...Option) *Manager {
	if params == nil {
		params = DefaultParams()
	}

	m := &Manager{
		params:      params,
		validators:  make(map[string]*Validator),
		epochBlocks: make(map[uint64]map[string][]string),
		crediter:    crediter,
		entropy:     cryptography.RandomUint64,
		now:         time.Now,
		logger:      logging.Entry().WithField("component", "consensus"),
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

// RegisterValidator admits a new validator with full reputation and a proof
// binding its public key to its address.
func (m *Manager) RegisterValidator(address string, stake uint64, publicKey []byte) (*Validator, error) {
	if stake < m.params.MinStake {
		return nil, ErrInsufficientStake
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.validators[address]; ok {
		return nil, ErrDuplicateValidator
	}

	v := &Validator{
		Address:      address,
		Stake:        stake,
		PublicKey:    publicKey,
		BlocksMined:  0,
		LastActive:   m.now().Unix(),
		Reputation:   100,
		QuantumProof: cryptography.BindKeyToAddress(address, publicKey),
	}

	m.validators[address] = v

	m.logger.WithFields(logrus.Fields{
		"validator": address,
		"stake":     stake,
	}).Info("validator registered")

	return v, nil
}

func (m *Manager) Validator(address string) (*Validator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.validators[address]

	return v, ok
}

// ActiveValidators returns the active set in stable address order, which is
// the order the weighted lottery walks.
func (m *Manager) ActiveValidators() []*Validator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.activeLocked()
}

func (m *Manager) activeLocked() []*Validator {
	now := m.now()

	active := make([]*Validator, 0, len(m.validators))
	for _, v := range m.validators {
		if v.Active(now, m.params.ActivityWindow, m.params.MinReputation) {
			active = append(active, v)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].Address < active[j].Address
	})

	return active
}

// SelectNextValidator runs the stake-weighted lottery: a uniform draw in
// [0, totalActiveStake) lands inside exactly one validator's cumulative
// stake band.
func (m *Manager) SelectNextValidator() (*Validator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.activeLocked()
	if len(active) < m.params.MinValidators {
		return nil, ErrInsufficientValidators
	}

	var total uint64
	for _, v := range active {
		total += v.Stake
	}
	if total == 0 {
		return nil, ErrInsufficientValidators
	}

	draw, err := m.entropy(total)
	if err != nil {
		return nil, errors.Wrap(err, "drawing selection entropy")
	}

	var cum uint64
	for _, v := range active {
		cum += v.Stake
		if draw < cum {
			return v, nil
		}
	}

	// unreachable with a well-behaved entropy source
	return active[len(active)-1], nil
}

// ValidateBlock accepts a block as the validator's work: the quantum proof
// must verify against the validator's key and the validator must be active.
// On acceptance the validator's statistics and reputation are updated and
// the block is credited to the current epoch.
func (m *Manager) ValidateBlock(b *chain.Block, v *Validator) bool {
	if b == nil || v == nil {
		return false
	}

	if !cryptography.Verify(v.PublicKey, []byte(b.Hash), b.QuantumProof) {
		m.logger.WithField("validator", v.Address).Warn("block proof failed verification")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.validators[v.Address]
	if !ok || !reg.Active(m.now(), m.params.ActivityWindow, m.params.MinReputation) {
		return false
	}

	reg.BlocksMined++
	reg.LastActive = m.now().Unix()
	reg.Reputation = clampReputation(reg.Reputation + m.blockQualityDelta(b))

	books, ok := m.epochBlocks[m.epoch]
	if !ok {
		books = make(map[string][]string)
		m.epochBlocks[m.epoch] = books
	}
	books[reg.Address] = append(books[reg.Address], b.Hash)

	return true
}

// blockQualityDelta is a small bounded adjustment: staying within the size
// and tx-count limits and propagating promptly each earn a point or two.
func (m *Manager) blockQualityDelta(b *chain.Block) int {
	delta := 0

	if b.Size() <= m.params.MaxBlockSize {
		delta += 2
	}
	if len(b.Transactions) <= m.params.MaxBlockTxCount {
		delta += 2
	}
	if m.now().Unix()-b.Timestamp <= int64(m.params.PropagationSLA.Seconds()) {
		delta++
	}

	return delta
}

func clampReputation(r int) int {
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}

	return r
}

// VerifySignature exposes the manager's proof-verification capability to
// dependents (the shard manager's quorum checks).
func (m *Manager) VerifySignature(publicKey, msg, signature []byte) bool {
	return cryptography.Verify(publicKey, msg, signature)
}

func (m *Manager) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.epoch
}
