package consensus

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserachain/tessera/pkg/chain"
	"github.com/tesserachain/tessera/pkg/cryptography"
)

type creditRecorder struct {
	credits map[string]uint64
}

func newCreditRecorder() *creditRecorder {
	return &creditRecorder{credits: make(map[string]uint64)}
}

func (c *creditRecorder) CreditReward(address string, amount uint64) error {
	c.credits[address] += amount
	return nil
}

func testConsensusParams() *Params {
	p := DefaultParams()
	p.MinStake = 1000

	return p
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRegisterValidator(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, _, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)

	v, err := m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), v.Stake)
	assert.Equal(t, 100, v.Reputation)
	assert.Equal(t, now.Unix(), v.LastActive)

	if !bytes.Equal(v.QuantumProof, cryptography.BindKeyToAddress(addr, pkb)) {
		t.Fatal("registration proof does not bind key to address")
	}

	_, err = m.RegisterValidator(addr, 3000, pkb)
	assert.ErrorIs(t, err, ErrDuplicateValidator)

	_, err = m.RegisterValidator("0xsomebody", 999, pkb)
	assert.ErrorIs(t, err, ErrInsufficientStake)
}

func TestSelectNextValidatorWeighting(t *testing.T) {
	p := DefaultParams()
	m := NewManager(p, newCreditRecorder())

	_, err := m.RegisterValidator("0xaaaa", 1000000, []byte("key-a"))
	require.NoError(t, err)
	_, err = m.RegisterValidator("0xbbbb", 2000000, []byte("key-b"))
	require.NoError(t, err)

	const draws = 10000

	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		v, err := m.SelectNextValidator()
		require.NoError(t, err)
		counts[v.Address]++
	}

	assert.Equal(t, draws, counts["0xaaaa"]+counts["0xbbbb"])

	// B holds two thirds of the stake so it should win about twice as
	// often as A. Bounds sit well past five standard deviations.
	assert.Greater(t, counts["0xbbbb"], 6300)
	assert.Less(t, counts["0xbbbb"], 7000)
}

func TestSelectNextValidatorBands(t *testing.T) {
	var draw uint64
	m := NewManager(testConsensusParams(), newCreditRecorder(),
		WithEntropy(func(max uint64) (uint64, error) { return draw, nil }))

	_, err := m.RegisterValidator("0xaaaa", 1000, []byte("key-a"))
	require.NoError(t, err)
	_, err = m.RegisterValidator("0xbbbb", 3000, []byte("key-b"))
	require.NoError(t, err)

	draw = 0
	v, err := m.SelectNextValidator()
	require.NoError(t, err)
	assert.Equal(t, "0xaaaa", v.Address)

	draw = 999
	v, err = m.SelectNextValidator()
	require.NoError(t, err)
	assert.Equal(t, "0xaaaa", v.Address)

	draw = 1000
	v, err = m.SelectNextValidator()
	require.NoError(t, err)
	assert.Equal(t, "0xbbbb", v.Address)

	draw = 3999
	v, err = m.SelectNextValidator()
	require.NoError(t, err)
	assert.Equal(t, "0xbbbb", v.Address)
}

func TestSelectNextValidatorExcludesInactive(t *testing.T) {
	m := NewManager(testConsensusParams(), newCreditRecorder())

	_, err := m.RegisterValidator("0xaaaa", 1000, []byte("key-a"))
	require.NoError(t, err)
	b, err := m.RegisterValidator("0xbbbb", 5000000, []byte("key-b"))
	require.NoError(t, err)

	b.Reputation = 10

	for i := 0; i < 200; i++ {
		v, err := m.SelectNextValidator()
		require.NoError(t, err)
		assert.Equal(t, "0xaaaa", v.Address)
	}
}

func TestSelectNextValidatorNoneActive(t *testing.T) {
	m := NewManager(testConsensusParams(), newCreditRecorder())

	_, err := m.SelectNextValidator()
	assert.ErrorIs(t, err, ErrInsufficientValidators)

	v, err := m.RegisterValidator("0xaaaa", 1000, []byte("key-a"))
	require.NoError(t, err)
	v.Reputation = 0

	_, err = m.SelectNextValidator()
	assert.ErrorIs(t, err, ErrInsufficientValidators)
}

func signedTestBlock(t *testing.T, sk *cryptography.PrivateKey, pkb []byte, ts int64) *chain.Block {
	t.Helper()

	b := &chain.Block{
		Height:     1,
		Timestamp:  ts,
		LastHash:   chain.Genesis().Hash,
		Difficulty: 2,
	}
	b.Hash = b.ComputeHash()

	proof, err := sk.Sign([]byte(b.Hash))
	require.NoError(t, err)

	b.QuantumProof = proof
	b.ProducerKey = pkb

	return b
}

func TestValidateBlock(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	v, err := m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)
	v.Reputation = 50

	b := signedTestBlock(t, sk, pkb, now.Unix())

	assert.True(t, m.ValidateBlock(b, v))
	assert.Equal(t, uint64(1), v.BlocksMined)
	assert.Equal(t, 55, v.Reputation)

	books := m.epochBlocks[m.Epoch()]
	require.Len(t, books[addr], 1)
	assert.Equal(t, b.Hash, books[addr][0])
}

func TestValidateBlockBadProof(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	v, err := m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)

	b := signedTestBlock(t, sk, pkb, now.Unix())
	b.QuantumProof[0] ^= 0xff

	assert.False(t, m.ValidateBlock(b, v))
	assert.Equal(t, uint64(0), v.BlocksMined)
}

func TestValidateBlockInactiveValidator(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	v, err := m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)
	v.Reputation = 10

	b := signedTestBlock(t, sk, pkb, now.Unix())

	assert.False(t, m.ValidateBlock(b, v))
}

func TestReputationClamp(t *testing.T) {
	assert.Equal(t, 0, clampReputation(-5))
	assert.Equal(t, 100, clampReputation(120))
	assert.Equal(t, 60, clampReputation(60))
}

func TestCalculateRewards(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	_, err = m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)

	b := signedTestBlock(t, sk, pkb, now.Unix())
	v, _ := m.Validator(addr)
	require.True(t, m.ValidateBlock(b, v))

	rewards, err := m.CalculateRewards(0)
	require.NoError(t, err)

	// 1 block x 50 base x (2000/1000 stake) x (100/100 reputation)
	assert.Equal(t, uint64(100), rewards[addr])

	_, err = m.CalculateRewards(7)
	assert.ErrorIs(t, err, ErrEpochNotStarted)
}

func TestCalculateRewardsLargeStake(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	const stake = uint64(1) << 62

	_, err := m.RegisterValidator("0xwhale", stake, []byte("key-w"))
	require.NoError(t, err)

	m.epochBlocks[0] = map[string][]string{
		"0xwhale": {"h1", "h2", "h3", "h4"},
	}

	rewards, err := m.CalculateRewards(0)
	require.NoError(t, err)

	// 4 x 50 x 2^62 x 100 / (1000 x 100): the naive uint64 product wraps,
	// the exact quotient is 2^62 / 5
	assert.Equal(t, uint64(922337203685477580), rewards["0xwhale"])
}

func TestDistributeRewards(t *testing.T) {
	now := time.Unix(1700001000, 0)
	crediter := newCreditRecorder()
	m := NewManager(testConsensusParams(), crediter, WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	_, err = m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)

	b := signedTestBlock(t, sk, pkb, now.Unix())
	v, _ := m.Validator(addr)
	require.True(t, m.ValidateBlock(b, v))

	err = m.DistributeRewards(1)
	assert.ErrorIs(t, err, ErrEpochNotStarted)

	require.NoError(t, m.DistributeRewards(0))
	assert.Equal(t, uint64(100), crediter.credits[addr])
	assert.Equal(t, uint64(1), m.Epoch())

	err = m.DistributeRewards(0)
	assert.ErrorIs(t, err, ErrEpochSettled)

	_, err = m.CalculateRewards(0)
	assert.ErrorIs(t, err, ErrEpochSettled)
}

func TestSnapshotRestore(t *testing.T) {
	now := time.Unix(1700001000, 0)
	m := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	_, err = m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)

	b := signedTestBlock(t, sk, pkb, now.Unix())
	v, _ := m.Validator(addr)
	require.True(t, m.ValidateBlock(b, v))

	d, err := m.Snapshot()
	require.NoError(t, err)

	restored := NewManager(testConsensusParams(), newCreditRecorder(), WithClock(fixedClock(now)))
	require.NoError(t, restored.Restore(d))

	rv, ok := restored.Validator(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(1), rv.BlocksMined)
	assert.Equal(t, v.Reputation, rv.Reputation)

	rewards, err := restored.CalculateRewards(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), rewards[addr])
}

func TestDistributeRewardsZeroReputation(t *testing.T) {
	now := time.Unix(1700001000, 0)
	crediter := newCreditRecorder()
	m := NewManager(testConsensusParams(), crediter, WithClock(fixedClock(now)))

	pk, sk, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)
	pkb, err := pk.Bytes()
	require.NoError(t, err)

	addr := cryptography.AddressFromPublicKey(pkb)
	_, err = m.RegisterValidator(addr, 2000, pkb)
	require.NoError(t, err)

	b := signedTestBlock(t, sk, pkb, now.Unix())
	v, _ := m.Validator(addr)
	require.True(t, m.ValidateBlock(b, v))

	// reputation collapses after the block was booked
	v.Reputation = 0

	require.NoError(t, m.DistributeRewards(0))
	assert.Zero(t, crediter.credits[addr])
	assert.Equal(t, uint64(1), m.Epoch())
}
