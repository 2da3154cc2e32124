package shard

import "github.com/pkg/errors"

var (
	ErrShardNotFound       = errors.New("shard not found")
	ErrQuorumNotMet        = errors.New("validator quorum not met")
	ErrInvalidSignature    = errors.New("signature failed verification")
	ErrUnknownCrossShardTx = errors.New("cross-shard transaction not tracked")
)
