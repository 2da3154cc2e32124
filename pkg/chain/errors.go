package chain

import "github.com/pkg/errors"

var (
	ErrInvalidBlock       = errors.New("invalid block")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidSignature   = errors.New("signature verification failed")
	ErrBlockTooLarge      = errors.New("block exceeds size limit")

	ErrChainNotLonger = errors.New("candidate chain is not longer")
	ErrChainInvalid   = errors.New("candidate chain is invalid")
)
