package cryptography

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "reading random bytes")
	}

	return b, nil
}

// RandomUint64 returns a uniform value in [0, max) from the OS CSPRNG.
func RandomUint64(max uint64) (uint64, error) {
	if max == 0 {
		return 0, errors.New("max must be non-zero")
	}

	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(max))
	if err != nil {
		return 0, errors.Wrap(err, "drawing random int")
	}

	return n.Uint64(), nil
}
