package storage

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/tesserachain/tessera/pkg/chain"
)

const (
	bloomCapacity      = 1 << 20
	bloomFalsePositive = 0.01
)

// newTxBloom builds the seen-transaction filter both stores consult before
// touching the transaction table.
func newTxBloom() *bloom.BloomFilter {
	return bloom.NewWithEstimates(bloomCapacity, bloomFalsePositive)
}

// MakeBlockBloom encodes a membership filter over a block's transaction
// hashes, cheap enough to ship to light peers.
func MakeBlockBloom(b *chain.Block) ([]byte, error) {
	f := bloom.NewWithEstimates(chain.MaxBlockTxCount, bloomFalsePositive)

	for _, h := range b.TxHashes() {
		f.Add([]byte(h))
	}

	return f.GobEncode()
}

func BlockBloomContains(encoded []byte, txHash string) (bool, error) {
	f := bloom.NewWithEstimates(chain.MaxBlockTxCount, bloomFalsePositive)

	if err := f.GobDecode(encoded); err != nil {
		return false, err
	}

	return f.Test([]byte(txHash)), nil
}
