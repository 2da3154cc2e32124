package shard

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/pkg/chain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// CrossShardTransaction tracks one transaction whose sender and recipient
// route to different shards. Exactly one entry exists per transaction hash
// and the manager's tracking table is its only owner. ProcessedBy records
// which shard finalized first; completion requires the other shard.
type CrossShardTransaction struct {
	Tx                *chain.Transaction `msgpack:"tx"`
	SourceShard       string             `msgpack:"s"`
	TargetShard       string             `msgpack:"t"`
	Proof             []byte             `msgpack:"p"`
	Status            Status             `msgpack:"st"`
	Timestamp         int64              `msgpack:"ts"`
	ProcessedBy       string             `msgpack:"pb,omitempty"`
	FinalizationProof []byte             `msgpack:"fp,omitempty"`
	CompletedAt       int64              `msgpack:"ca,omitempty"`
}

type bindingDigest struct {
	TxHash      string `msgpack:"h"`
	SourceShard string `msgpack:"s"`
	TargetShard string `msgpack:"t"`
}

type finalizationDigest struct {
	TxHash      string `msgpack:"h"`
	SourceShard string `msgpack:"s"`
	TargetShard string `msgpack:"t"`
	CompletedAt int64  `msgpack:"c"`
}

func bindingPayload(txHash, source, target string) []byte {
	d, _ := msgpack.Marshal(&bindingDigest{
		TxHash:      txHash,
		SourceShard: source,
		TargetShard: target,
	})

	return d
}

func finalizationPayload(txHash, source, target string, completedAt int64) []byte {
	d, _ := msgpack.Marshal(&finalizationDigest{
		TxHash:      txHash,
		SourceShard: source,
		TargetShard: target,
		CompletedAt: completedAt,
	})

	return d
}
