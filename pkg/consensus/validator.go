package consensus

import (
	"time"
)

type Validator struct {
	Address      string `msgpack:"a"`
	Stake        uint64 `msgpack:"s"`
	PublicKey    []byte `msgpack:"pk"`
	BlocksMined  uint64 `msgpack:"bm"`
	LastActive   int64  `msgpack:"la"`
	Reputation   int    `msgpack:"r"`
	QuantumProof []byte `msgpack:"q"`
}

// Active validators have been seen within the activity window and hold
// enough reputation to be trusted with block production.
func (v *Validator) Active(now time.Time, window time.Duration, minReputation int) bool {
	return now.Unix()-v.LastActive <= int64(window.Seconds()) && v.Reputation >= minReputation
}
