package chain

import "time"

// Params bounds the difficulty controller and the validation limits of a
// chain instance.
type Params struct {
	MinDifficulty                int
	MaxDifficulty                int
	BlockInterval                time.Duration
	DifficultyAdjustmentInterval int
	MaxBlockSize                 int
	MaxBlockTxCount              int
}

func DefaultParams() *Params {
	return &Params{
		MinDifficulty:                2,
		MaxDifficulty:                12,
		BlockInterval:                10 * time.Second,
		DifficultyAdjustmentInterval: 10,
		MaxBlockSize:                 MaxBlockSize,
		MaxBlockTxCount:              MaxBlockTxCount,
	}
}

// AdjustDifficulty is a reactive ±1 controller: blocks arriving slower than
// twice the target interval ease difficulty, blocks faster than half the
// interval raise it. It never moves more than one step per block.
func AdjustDifficulty(prev *Block, newTimestamp int64, p *Params) int {
	elapsed := time.Duration(newTimestamp-prev.Timestamp) * time.Second
	d := prev.Difficulty

	switch {
	case elapsed > 2*p.BlockInterval:
		d--
	case elapsed < p.BlockInterval/2:
		d++
	}

	if d < p.MinDifficulty {
		d = p.MinDifficulty
	}
	if d > p.MaxDifficulty {
		d = p.MaxDifficulty
	}

	return d
}
