package cryptography

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("block hash binding")

	sig, err := priv.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, pub.Verify(msg, sig))
	assert.False(t, pub.Verify([]byte("other message"), sig))
}

func TestVerifyTamperedSignature(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("payload")

	sig, err := priv.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	sig[0] ^= 0xff

	assert.False(t, pub.Verify(msg, sig))
}

func TestVerifyFailsClosed(t *testing.T) {
	// malformed key material must report false, not error out
	assert.False(t, Verify([]byte("not a key"), []byte("msg"), []byte("sig")))

	pub, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	assert.False(t, pub.Verify([]byte("msg"), nil))
}

func TestVerifyWrongKey(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	other, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("payload")
	sig, err := priv.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	assert.False(t, other.Verify(msg, sig))
}

func TestKeyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	pkb, err := pub.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	skb, err := priv.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	pub2, err := PublicKeyFromBytes(pkb)
	if err != nil {
		t.Fatal(err)
	}
	priv2, err := PrivateKeyFromBytes(skb)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("round trip")
	sig, err := priv2.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}

	assert.True(t, pub2.Verify(msg, sig))
}

func TestEncapsulateDecapsulate(t *testing.T) {
	pub, priv, err := GenerateKemKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ct, ss, err := pub.Encapsulate()
	if err != nil {
		t.Fatal(err)
	}

	got, err := priv.Decapsulate(ct)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, ss, got)
}

func TestAddressDerivationStable(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	pkb, err := pub.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	a := AddressFromPublicKey(pkb)
	b := AddressFromPublicKey(pkb)

	assert.Equal(t, a, b)
	assert.Len(t, a, 42) // 0x + 20 bytes hex
}
