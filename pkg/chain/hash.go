package chain

import (
	"encoding/hex"
	"strings"

	"github.com/multiformats/go-multihash"
)

// digestHex returns the hex-encoded SHA3-256 digest of d. Block and
// transaction hashes, merkle nodes and proof bindings all go through here so
// the chain carries a single digest format.
func digestHex(d []byte) string {
	mh, _ := multihash.Sum(d, multihash.SHA3_256, -1)
	dec, _ := multihash.Decode(mh)
	return hex.EncodeToString(dec.Digest)
}

// HashMeetsDifficulty reports whether the hash's leading hex characters
// contain at least difficulty zeros.
func HashMeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if difficulty > len(hash) {
		return false
	}

	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}
