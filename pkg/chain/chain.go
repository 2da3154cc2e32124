package chain

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/utils/logging"
)

// Persister is the slice of the storage capability the chain needs to stay
// durable. Implementations live in pkg/storage.
type Persister interface {
	SaveBlock(ctx context.Context, b *Block) error
	SaveChain(ctx context.Context, blocks []*Block) error
	GetChain(ctx context.Context) ([]*Block, error)
}

// Blockchain owns the canonical block sequence. All mutation goes through
// its mutex; the sequence is only ever appended to or atomically replaced.
type Blockchain struct {
	mu sync.RWMutex

	params  *Params
	blocks  []*Block
	credits map[string]uint64

	store  Persister
	logger *logrus.Entry
}

type Option func(*Blockchain)

func WithPersistence(s Persister) Option {
	return func(c *Blockchain) {
		c.store = s
	}
}

func New(params *Params, opts ...Option) (*Blockchain, error) {
	if params == nil {
		params = DefaultParams()
	}

	c := &Blockchain{
		params:  params,
		credits: make(map[string]uint64),
		logger:  logging.Entry().WithField("component", "chain"),
	}

	for _, o := range opts {
		o(c)
	}

	if c.store != nil {
		stored, err := c.store.GetChain(context.Background())
		if err == nil && len(stored) > 0 {
			if err := IsValidChain(stored, params); err != nil {
				return nil, errors.Wrap(err, "stored chain failed validation")
			}
			c.blocks = stored
			c.logger.WithField("height", stored[len(stored)-1].Height).Info("resumed chain from store")

			return c, nil
		}
	}

	c.blocks = []*Block{Genesis()}

	return c, nil
}

func (c *Blockchain) Params() *Params {
	return c.params
}

// Blocks returns a copy of the block sequence; callers never see the owned
// slice.
func (c *Blockchain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)

	return out
}

func (c *Blockchain) Last() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[len(c.blocks)-1]
}

func (c *Blockchain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[len(c.blocks)-1].Height
}

func (c *Blockchain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.blocks)
}

// AddBlock validates b against the current tip and appends it.
func (c *Blockchain) AddBlock(ctx context.Context, b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.blocks[len(c.blocks)-1]
	if err := ValidateBlock(b, last, c.params); err != nil {
		return err
	}

	c.blocks = append(c.blocks, b)

	if c.store != nil {
		if err := c.store.SaveBlock(ctx, b); err != nil {
			c.logger.WithError(err).Error("persisting block")
		}
	}

	return nil
}

// Replace swaps in a strictly longer, fully valid candidate chain. The swap
// is all-or-nothing: validation runs to completion before the owned sequence
// changes.
func (c *Blockchain) Replace(ctx context.Context, candidate []*Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(candidate) <= len(c.blocks) {
		return ErrChainNotLonger
	}

	if err := IsValidChain(candidate, c.params); err != nil {
		if errors.Is(err, ErrChainInvalid) {
			return err
		}
		return errors.Wrap(ErrChainInvalid, err.Error())
	}

	owned := make([]*Block, len(candidate))
	copy(owned, candidate)
	c.blocks = owned

	if c.store != nil {
		if err := c.store.SaveChain(ctx, owned); err != nil {
			c.logger.WithError(err).Error("persisting replaced chain")
		}
	}

	c.logger.WithField("height", owned[len(owned)-1].Height).Info("chain replaced")

	return nil
}

// BalanceOf folds the confirmed transaction history plus any epoch reward
// credits for the address.
func (c *Blockchain) BalanceOf(address string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var balance uint64
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.Recipient == address {
				balance += t.Amount
			}
			if t.Sender == address && !t.IsCoinbase() {
				if t.Amount > balance {
					balance = 0
				} else {
					balance -= t.Amount
				}
			}
		}
	}

	return balance + c.credits[address]
}

// CreditReward implements the reward-credit capability consumed by the
// consensus manager. Idempotency is the epoch bookkeeping's responsibility.
func (c *Blockchain) CreditReward(address string, amount uint64) error {
	if address == "" {
		return errors.New("empty reward address")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.credits[address] += amount

	return nil
}
