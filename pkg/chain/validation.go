package chain

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/tesserachain/tessera/pkg/cryptography"
)

// ValidateBlock checks a non-genesis block against its exclusive
// predecessor: recomputed hash, linkage, timestamp monotonicity, bounded
// difficulty movement, proof-of-work target, producer quantum proof, merkle
// root and size limits, then every carried transaction.
func ValidateBlock(b, prev *Block, p *Params) error {
	if b == nil || prev == nil {
		return errors.Wrap(ErrInvalidBlock, "nil block")
	}

	if b.Hash != b.ComputeHash() {
		return errors.Wrap(ErrInvalidBlock, "hash mismatch")
	}
	if b.LastHash != prev.Hash {
		return errors.Wrap(ErrInvalidBlock, "broken chain linkage")
	}
	if b.Height != prev.Height+1 {
		return errors.Wrap(ErrInvalidBlock, "non-sequential height")
	}
	if b.Timestamp <= prev.Timestamp {
		return errors.Wrap(ErrInvalidBlock, "timestamp not after predecessor")
	}

	delta := b.Difficulty - prev.Difficulty
	if delta > 1 || delta < -1 {
		return errors.Wrap(ErrInvalidBlock, "difficulty moved more than one step")
	}
	if b.Difficulty < p.MinDifficulty || b.Difficulty > p.MaxDifficulty {
		return errors.Wrap(ErrInvalidBlock, "difficulty out of bounds")
	}
	if !HashMeetsDifficulty(b.Hash, b.Difficulty) {
		return errors.Wrap(ErrInvalidBlock, "hash does not meet difficulty target")
	}

	if len(b.ProducerKey) == 0 || !cryptography.Verify(b.ProducerKey, []byte(b.Hash), b.QuantumProof) {
		return errors.Wrap(ErrInvalidSignature, "block quantum proof")
	}

	if !merkleRootsEqual(b.MerkleRoot, ComputeMerkleRoot(b.TxHashes())) {
		return errors.Wrap(ErrInvalidBlock, "merkle root mismatch")
	}

	if len(b.Transactions) > p.MaxBlockTxCount {
		return errors.Wrap(ErrInvalidBlock, "too many transactions")
	}
	if b.Size() > p.MaxBlockSize {
		return ErrBlockTooLarge
	}

	coinbaseSeen := false
	for _, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return errors.Wrap(err, "invalid tx in block")
		}

		if t.IsCoinbase() {
			if coinbaseSeen {
				return errors.Wrap(ErrInvalidBlock, "multiple coinbase transactions")
			}
			coinbaseSeen = true

			if t.Amount != BlockReward(b.Height) {
				return errors.Wrap(ErrInvalidBlock, "coinbase amount does not match height reward")
			}
		}
	}

	return nil
}

// IsValidChain validates a full candidate chain: canonical genesis
// byte-for-byte, pairwise block validity, and the windowed difficulty drift
// rule that keeps short-term oscillation within 25% of the target pace.
func IsValidChain(blocks []*Block, p *Params) error {
	if len(blocks) == 0 {
		return errors.Wrap(ErrChainInvalid, "empty chain")
	}

	gotGen, err := blocks[0].Marshal()
	if err != nil {
		return errors.Wrap(ErrChainInvalid, "unserializable genesis")
	}
	wantGen, _ := Genesis().Marshal()
	if !bytes.Equal(gotGen, wantGen) {
		return errors.Wrap(ErrChainInvalid, "genesis block mismatch")
	}

	for i := 1; i < len(blocks); i++ {
		if err := ValidateBlock(blocks[i], blocks[i-1], p); err != nil {
			return errors.Wrapf(err, "block %d", i)
		}
	}

	if err := checkDifficultyDrift(blocks, p); err != nil {
		return err
	}

	return nil
}

// checkDifficultyDrift rejects chains where any adjustment-interval window of
// mined blocks deviates from the target span by more than 25%. Windows never
// include genesis since its timestamp is a fixed constant.
func checkDifficultyDrift(blocks []*Block, p *Params) error {
	n := p.DifficultyAdjustmentInterval
	if n < 2 || len(blocks) < n+1 {
		return nil
	}

	target := time.Duration(n-1) * p.BlockInterval
	lower := target * 3 / 4
	upper := target * 5 / 4

	for i := 1; i+n <= len(blocks); i++ {
		span := time.Duration(blocks[i+n-1].Timestamp-blocks[i].Timestamp) * time.Second
		if span < lower || span > upper {
			return errors.Wrapf(ErrChainInvalid, "difficulty drift outside window at block %d", i)
		}
	}

	return nil
}

func merkleRootsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
