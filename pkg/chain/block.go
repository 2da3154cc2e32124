package chain

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// GenesisLastHash is the sentinel back-reference of the genesis block.
	GenesisLastHash = "0000000000000000000000000000000000000000000000000000000000000000"

	MaxBlockTxCount = 1000
	MaxBlockSize    = 1 << 20

	genesisTimestamp  int64 = 1700000000
	genesisDifficulty       = 3
)

type Block struct {
	Height       uint64         `msgpack:"ht"`
	Timestamp    int64          `msgpack:"t"`
	LastHash     string         `msgpack:"l"`
	Hash         string         `msgpack:"h"`
	Transactions []*Transaction `msgpack:"tx"`
	Nonce        uint64         `msgpack:"n"`
	Difficulty   int            `msgpack:"d"`
	QuantumProof []byte         `msgpack:"q,omitempty"`
	ProducerKey  []byte         `msgpack:"p,omitempty"`
	MerkleRoot   *string        `msgpack:"m,omitempty"`
}

type blockDigest struct {
	Timestamp int64    `msgpack:"t"`
	LastHash  string   `msgpack:"l"`
	TxHashes  []string `msgpack:"x"`
	Nonce     uint64   `msgpack:"n"`
	Difficulty int     `msgpack:"d"`
}

// Genesis returns the canonical first block. It is built from constants only
// and is byte-identical across runs and nodes.
func Genesis() *Block {
	b := &Block{
		Height:     0,
		Timestamp:  genesisTimestamp,
		LastHash:   GenesisLastHash,
		Nonce:      0,
		Difficulty: genesisDifficulty,
	}
	b.Hash = b.ComputeHash()

	return b
}

func (b *Block) ComputeHash() string {
	d, _ := msgpack.Marshal(&blockDigest{
		Timestamp:  b.Timestamp,
		LastHash:   b.LastHash,
		TxHashes:   b.TxHashes(),
		Nonce:      b.Nonce,
		Difficulty: b.Difficulty,
	})

	return digestHex(d)
}

func (b *Block) TxHashes() []string {
	hashes := make([]string, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		hashes = append(hashes, t.Hash)
	}

	return hashes
}

func (b *Block) Size() int {
	d, err := b.Marshal()
	if err != nil {
		return 0
	}

	return len(d)
}

func (b *Block) Marshal() ([]byte, error) {
	d, err := msgpack.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling block")
	}

	return d, nil
}

func (b *Block) Unmarshal(d []byte) error {
	return msgpack.Unmarshal(d, b)
}
