package cryptography

import (
	"github.com/cloudflare/circl/kem"
	kemSchemes "github.com/cloudflare/circl/kem/schemes"
	"github.com/pkg/errors"
)

var kemScheme = kemSchemes.ByName("ML-KEM-768")

// KemPrivateKey is an ML-KEM-768 decapsulation key, used by the transport
// layer to derive shared session secrets. The consensus core never touches
// the derived secrets directly.
type KemPrivateKey struct {
	sk kem.PrivateKey
}

type KemPublicKey struct {
	pk kem.PublicKey
}

func GenerateKemKeyPair() (*KemPublicKey, *KemPrivateKey, error) {
	pk, sk, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating ml-kem key pair")
	}

	return &KemPublicKey{pk}, &KemPrivateKey{sk}, nil
}

func (p *KemPublicKey) Bytes() ([]byte, error) {
	return p.pk.MarshalBinary()
}

func KemPublicKeyFromBytes(d []byte) (*KemPublicKey, error) {
	pk, err := kemScheme.UnmarshalBinaryPublicKey(d)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling ml-kem public key")
	}

	return &KemPublicKey{pk}, nil
}

// Encapsulate derives a fresh shared secret for the holder of the public
// key, returning the ciphertext to transmit and the local copy of the
// secret.
func (p *KemPublicKey) Encapsulate() (ct, ss []byte, err error) {
	ct, ss, err = kemScheme.Encapsulate(p.pk)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encapsulating shared secret")
	}

	return ct, ss, nil
}

func (p *KemPrivateKey) Decapsulate(ct []byte) ([]byte, error) {
	ss, err := kemScheme.Decapsulate(p.sk, ct)
	if err != nil {
		return nil, errors.Wrap(err, "decapsulating shared secret")
	}

	return ss, nil
}
