// Package contract defines the capability boundary to the smart-contract
// sandbox. The core only sees an opaque success/failure plus gas used; the
// sandbox itself lives outside this module.
package contract

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type Call struct {
	Address  string   `msgpack:"a"`
	Method   string   `msgpack:"m"`
	Args     [][]byte `msgpack:"ar,omitempty"`
	GasLimit uint64   `msgpack:"g"`
}

type Result struct {
	OK      bool   `msgpack:"o"`
	GasUsed uint64 `msgpack:"g"`
	Return  []byte `msgpack:"r,omitempty"`
}

type Engine interface {
	Execute(ctx context.Context, call *Call) (*Result, error)
}

// ParseCall decodes a transaction data payload into a contract call.
func ParseCall(data []byte) (*Call, error) {
	c := &Call{}
	if err := msgpack.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decoding contract call")
	}
	if c.Address == "" || c.Method == "" {
		return nil, errors.New("incomplete contract call")
	}

	return c, nil
}

func (c *Call) Encode() ([]byte, error) {
	d, err := msgpack.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encoding contract call")
	}

	return d, nil
}

var _ Engine = (*NoopEngine)(nil)

// NoopEngine accepts every call without executing anything. Nodes that do
// not host a sandbox run with it; blocks they assemble simply include the
// calls for sandbox-running peers to execute.
type NoopEngine struct{}

func (NoopEngine) Execute(_ context.Context, call *Call) (*Result, error) {
	return &Result{OK: true, GasUsed: 0}, nil
}
