package cryptography

import (
	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressFromPublicKey derives an account address from the raw encoded
// ML-DSA public key: the last 20 bytes of its Keccak256 digest, hex encoded.
func AddressFromPublicKey(publicKey []byte) string {
	h := ethCrypto.Keccak256(publicKey)
	return common.BytesToAddress(h[12:]).Hex()
}

// RouteHash maps an address onto a stable 256-bit routing digest. Shard
// routing takes this modulo the shard count.
func RouteHash(address string) []byte {
	return ethCrypto.Keccak256([]byte(address))
}

// BindKeyToAddress commits a public key to an address at registration time.
func BindKeyToAddress(address string, publicKey []byte) []byte {
	return ethCrypto.Keccak256([]byte(address), publicKey)
}
