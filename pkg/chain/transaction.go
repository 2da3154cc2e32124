package chain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesserachain/tessera/pkg/cryptography"
)

const (
	// CoinbaseSender is the designated sender of block reward transactions.
	// Coinbase transactions carry no signature; their amount is bound to the
	// block height instead.
	CoinbaseSender = "COINBASE"

	baseBlockReward  uint64 = 50
	halvingInterval  uint64 = 210000
	maxTxDataSize           = 32 * 1024
)

type Transaction struct {
	Sender          string `msgpack:"s"`
	Recipient       string `msgpack:"r"`
	Amount          uint64 `msgpack:"a"`
	Timestamp       int64  `msgpack:"t"`
	Nonce           uint64 `msgpack:"n"`
	Data            []byte `msgpack:"d,omitempty"`
	SenderPublicKey []byte `msgpack:"pk,omitempty"`
	Signature       []byte `msgpack:"sig,omitempty"`
	Hash            string `msgpack:"h"`
}

// txDigest is the canonical hashing payload; signature and key material are
// excluded so the hash is stable before and after signing.
type txDigest struct {
	Sender    string `msgpack:"s"`
	Recipient string `msgpack:"r"`
	Amount    uint64 `msgpack:"a"`
	Timestamp int64  `msgpack:"t"`
	Data      []byte `msgpack:"d"`
	Nonce     uint64 `msgpack:"n"`
}

func NewTransaction(sender, recipient string, amount uint64, data []byte, nonce uint64) *Transaction {
	t := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Nonce:     nonce,
		Data:      data,
	}
	t.Hash = t.ComputeHash()

	return t
}

// NewCoinbase builds the producer reward transaction for a block at the
// given height.
func NewCoinbase(recipient string, height uint64) *Transaction {
	t := &Transaction{
		Sender:    CoinbaseSender,
		Recipient: recipient,
		Amount:    BlockReward(height),
		Timestamp: time.Now().Unix(),
	}
	t.Hash = t.ComputeHash()

	return t
}

// BlockReward halves every halvingInterval blocks.
func BlockReward(height uint64) uint64 {
	halvings := height / halvingInterval
	if halvings >= 64 {
		return 0
	}

	return baseBlockReward >> halvings
}

func (t *Transaction) ComputeHash() string {
	d, _ := msgpack.Marshal(&txDigest{
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Amount:    t.Amount,
		Timestamp: t.Timestamp,
		Data:      t.Data,
		Nonce:     t.Nonce,
	})

	return digestHex(d)
}

func (t *Transaction) IsCoinbase() bool {
	return t.Sender == CoinbaseSender
}

// IsContractCall reports whether the payload designates a contract
// invocation to be routed through the contract engine.
func (t *Transaction) IsContractCall() bool {
	return len(t.Data) > 0
}

// Sign attaches the sender's public key and a detached ML-DSA signature over
// the transaction hash.
func (t *Transaction) Sign(priv *cryptography.PrivateKey) error {
	if t.IsCoinbase() {
		return errors.New("coinbase transactions are not signed")
	}

	pk, err := priv.Public().Bytes()
	if err != nil {
		return errors.Wrap(err, "encoding sender public key")
	}

	sig, err := priv.Sign([]byte(t.Hash))
	if err != nil {
		return errors.Wrap(err, "signing tx hash")
	}

	t.SenderPublicKey = pk
	t.Signature = sig

	return nil
}

// Validate applies structural checks before any signature verification runs,
// then binds the signature to the sender key. Coinbase amounts are checked
// against the height-dependent reward at block validation instead.
func (t *Transaction) Validate() error {
	if t.Sender == "" || t.Recipient == "" {
		return errors.Wrap(ErrInvalidTransaction, "missing sender or recipient")
	}
	if t.Sender == t.Recipient {
		return errors.Wrap(ErrInvalidTransaction, "sender and recipient must differ")
	}
	if t.Amount == 0 {
		return errors.Wrap(ErrInvalidTransaction, "amount must be positive")
	}
	if len(t.Data) > maxTxDataSize {
		return errors.Wrap(ErrInvalidTransaction, "data payload too large")
	}
	if t.Hash != t.ComputeHash() {
		return errors.Wrap(ErrInvalidTransaction, "hash mismatch")
	}

	if t.IsCoinbase() {
		return nil
	}

	if cryptography.AddressFromPublicKey(t.SenderPublicKey) != t.Sender {
		return errors.Wrap(ErrInvalidSignature, "sender key does not derive sender address")
	}
	if !cryptography.Verify(t.SenderPublicKey, []byte(t.Hash), t.Signature) {
		return ErrInvalidSignature
	}

	return nil
}

func (t *Transaction) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling tx")
	}

	return b, nil
}

func (t *Transaction) Unmarshal(b []byte) error {
	return msgpack.Unmarshal(b, t)
}
