package consensus

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CalculateRewards computes the payable amount per validator for an epoch:
// blocksProduced × baseBlockReward × (stake / minStake) × (reputation / 100),
// floored to whole units. A validator whose reputation has collapsed to zero
// earns nothing for the epoch but keeps its registration.
func (m *Manager) CalculateRewards(epoch uint64) (map[string]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.calculateRewardsLocked(epoch)
}

func (m *Manager) calculateRewardsLocked(epoch uint64) (map[string]uint64, error) {
	if epoch > m.epoch {
		return nil, ErrEpochNotStarted
	}

	books, ok := m.epochBlocks[epoch]
	if !ok && epoch < m.epoch {
		return nil, ErrEpochSettled
	}

	base := new(big.Int).SetUint64(m.params.BaseBlockReward)
	den := new(big.Int).Mul(new(big.Int).SetUint64(m.params.MinStake), big.NewInt(100))

	rewards := make(map[string]uint64, len(books))
	for address, blocks := range books {
		v, ok := m.validators[address]
		if !ok {
			continue
		}

		// the intermediate product exceeds uint64 for large stakes
		amount := new(big.Int).SetUint64(uint64(len(blocks)))
		amount.Mul(amount, base)
		amount.Mul(amount, new(big.Int).SetUint64(v.Stake))
		amount.Mul(amount, big.NewInt(int64(v.Reputation)))
		amount.Quo(amount, den)

		if !amount.IsUint64() {
			rewards[address] = math.MaxUint64
			continue
		}

		rewards[address] = amount.Uint64()
	}

	return rewards, nil
}

// DistributeRewards pays out the current epoch through the reward-credit
// collaborator, drops the epoch's books and advances the epoch counter.
// The transition is one-way: a settled epoch can never be paid again.
func (m *Manager) DistributeRewards(epoch uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch > m.epoch {
		return ErrEpochNotStarted
	}
	if epoch < m.epoch {
		return ErrEpochSettled
	}

	rewards, err := m.calculateRewardsLocked(epoch)
	if err != nil {
		return err
	}

	for address, amount := range rewards {
		if amount == 0 {
			continue
		}

		if err := m.crediter.CreditReward(address, amount); err != nil {
			return errors.Wrapf(err, "crediting %s", address)
		}

		m.logger.WithFields(logrus.Fields{
			"validator": address,
			"amount":    amount,
			"epoch":     epoch,
		}).Debug("reward credited")
	}

	delete(m.epochBlocks, epoch)
	m.epoch++

	return nil
}
