package cryptography

import (
	"crypto"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"github.com/pkg/errors"
)

var (
	_ crypto.PrivateKey = (*PrivateKey)(nil)
	_ crypto.PublicKey  = (*PublicKey)(nil)

	scheme = schemes.ByName("ML-DSA-65")
)

// PrivateKey is an ML-DSA-65 signing key. Signatures produced by it are
// the "quantum proofs" carried on blocks, validator registrations and
// cross-shard bindings.
type PrivateKey struct {
	sk sign.PrivateKey
}

type PublicKey struct {
	pk sign.PublicKey
}

func GenerateKeyPair() (*PublicKey, *PrivateKey, error) {
	pk, sk, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating ml-dsa key pair")
	}

	return &PublicKey{pk}, &PrivateKey{sk}, nil
}

func (p *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if p == nil || p.sk == nil {
		return nil, errors.New("nil private key")
	}

	return scheme.Sign(p.sk, msg, nil), nil
}

func (p *PrivateKey) Public() *PublicKey {
	return &PublicKey{p.sk.Public().(sign.PublicKey)}
}

func (p *PrivateKey) Bytes() ([]byte, error) {
	return p.sk.MarshalBinary()
}

func PrivateKeyFromBytes(d []byte) (*PrivateKey, error) {
	sk, err := scheme.UnmarshalBinaryPrivateKey(d)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling ml-dsa private key")
	}

	return &PrivateKey{sk}, nil
}

func (p *PublicKey) Bytes() ([]byte, error) {
	return p.pk.MarshalBinary()
}

func PublicKeyFromBytes(d []byte) (*PublicKey, error) {
	pk, err := scheme.UnmarshalBinaryPublicKey(d)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling ml-dsa public key")
	}

	return &PublicKey{pk}, nil
}

func (p *PublicKey) Verify(msg, signature []byte) bool {
	if p == nil || p.pk == nil || len(signature) == 0 {
		return false
	}

	return scheme.Verify(p.pk, msg, signature, nil)
}

// Verify checks a detached signature against a raw encoded public key.
// Malformed keys or signatures verify as false, never as an error.
func Verify(publicKey, msg, signature []byte) bool {
	pk, err := PublicKeyFromBytes(publicKey)
	if err != nil {
		return false
	}

	return pk.Verify(msg, signature)
}

func SignatureSize() int {
	return scheme.SignatureSize()
}

func PublicKeySize() int {
	return scheme.PublicKeySize()
}
