package node

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/pkg/chain"
)

const (
	txTopic    = "/tessera/tx"
	blockTopic = "/tessera/blocks"
	syncTopic  = "/tessera/sync"
)

type MsgType uint16

const (
	MsgTypeTx MsgType = iota + 1
	MsgTypeBlock
	MsgTypeSyncRequest
	MsgTypeSyncResponse
)

type Msg struct {
	Type  MsgType            `msgpack:"t"`
	Tx    *chain.Transaction `msgpack:"tx,omitempty"`
	Block *chain.Block       `msgpack:"b,omitempty"`
	Sync  *SyncMsg           `msgpack:"sy,omitempty"`
}

// SyncMsg doubles as request and response: a request carries the requester's
// height, a response carries the responder's full chain.
type SyncMsg struct {
	FromHeight uint64         `msgpack:"f,omitempty"`
	Blocks     []*chain.Block `msgpack:"bl,omitempty"`
}

func (m *Msg) Marshal() ([]byte, error) {
	return msgpack.Marshal(m)
}

func (m *Msg) Unmarshal(d []byte) error {
	return msgpack.Unmarshal(d, m)
}
