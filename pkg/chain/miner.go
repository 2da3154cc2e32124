package chain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tesserachain/tessera/internal/utils/logging"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

// cancelCheckInterval is how many nonces the mining loop burns between
// context checks. Cancellation is cooperative so an abandoned attempt never
// leaves partial state.
const cancelCheckInterval = 4096

type Miner struct {
	params *Params
	key    *cryptography.PrivateKey
	logger *logrus.Entry
}

func NewMiner(params *Params, key *cryptography.PrivateKey) *Miner {
	if params == nil {
		params = DefaultParams()
	}

	return &Miner{
		params: params,
		key:    key,
		logger: logging.Entry().WithField("component", "miner"),
	}
}

// Mine assembles and proof-of-works a block on top of prev. It is the one
// unbounded CPU loop in the node and must run off the request path; callers
// cancel ctx when a competing block for the same height arrives.
func (m *Miner) Mine(ctx context.Context, prev *Block, txs []*Transaction) (*Block, error) {
	if prev == nil {
		return nil, errors.Wrap(ErrInvalidBlock, "nil predecessor")
	}
	if len(txs) > m.params.MaxBlockTxCount {
		txs = txs[:m.params.MaxBlockTxCount]
	}

	now := time.Now().Unix()
	if now <= prev.Timestamp {
		now = prev.Timestamp + 1
	}

	b := &Block{
		Height:       prev.Height + 1,
		Timestamp:    now,
		LastHash:     prev.Hash,
		Transactions: txs,
		Difficulty:   AdjustDifficulty(prev, now, m.params),
		MerkleRoot:   ComputeMerkleRoot(hashesOf(txs)),
	}

	started := time.Now()

	for {
		b.Hash = b.ComputeHash()
		if HashMeetsDifficulty(b.Hash, b.Difficulty) {
			break
		}

		// a miss is loop continuation, not an error
		b.Nonce++

		if b.Nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, "mining cancelled")
			}
		}
	}

	proof, err := m.key.Sign([]byte(b.Hash))
	if err != nil {
		return nil, errors.Wrap(err, "attaching quantum proof")
	}
	b.QuantumProof = proof

	pk, err := m.key.Public().Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding producer key")
	}
	b.ProducerKey = pk

	m.logger.WithFields(logrus.Fields{
		"height":     b.Height,
		"difficulty": b.Difficulty,
		"nonce":      b.Nonce,
		"took":       time.Since(started),
	}).Debug("mined block")

	return b, nil
}

func hashesOf(txs []*Transaction) []string {
	hashes := make([]string, 0, len(txs))
	for _, t := range txs {
		hashes = append(hashes, t.Hash)
	}

	return hashes
}
