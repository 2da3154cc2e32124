package consensus

import "github.com/pkg/errors"

var (
	ErrInsufficientStake      = errors.New("stake below minimum")
	ErrDuplicateValidator     = errors.New("validator already registered")
	ErrInsufficientValidators = errors.New("not enough active validators")

	ErrEpochNotStarted = errors.New("epoch has not started")
	ErrEpochSettled    = errors.New("epoch already distributed")
)
