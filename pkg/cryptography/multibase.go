package cryptography

import (
	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"
)

func DecodeMultibase(mb string) ([]byte, error) {
	_, d, err := multibase.Decode(mb)
	return d, err
}

func EncodeMultibase(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("empty key material")
	}

	return multibase.Encode(multibase.Base58BTC, raw)
}
