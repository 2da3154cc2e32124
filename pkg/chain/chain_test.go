package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserachain/tessera/pkg/cryptography"
)

func testKey(t *testing.T) *cryptography.PrivateKey {
	t.Helper()

	_, priv, err := cryptography.GenerateKeyPair()
	require.NoError(t, err)

	return priv
}

// mineOn mines a block with an explicit difficulty and timestamp so tests
// control the chain shape precisely.
func mineOn(t *testing.T, prev *Block, txs []*Transaction, difficulty int, ts int64, key *cryptography.PrivateKey) *Block {
	t.Helper()

	b := &Block{
		Height:       prev.Height + 1,
		Timestamp:    ts,
		LastHash:     prev.Hash,
		Transactions: txs,
		Difficulty:   difficulty,
		MerkleRoot:   ComputeMerkleRoot(hashesOf(txs)),
	}

	for {
		b.Hash = b.ComputeHash()
		if HashMeetsDifficulty(b.Hash, b.Difficulty) {
			break
		}
		b.Nonce++
	}

	proof, err := key.Sign([]byte(b.Hash))
	require.NoError(t, err)
	b.QuantumProof = proof

	pk, err := key.Public().Bytes()
	require.NoError(t, err)
	b.ProducerKey = pk

	return b
}

func testParams() *Params {
	p := DefaultParams()
	p.MinDifficulty = 1

	return p
}

func TestGenesisFixed(t *testing.T) {
	a, _ := Genesis().Marshal()
	b, _ := Genesis().Marshal()

	assert.Equal(t, a, b)
	assert.Equal(t, GenesisLastHash, Genesis().LastHash)
	assert.Empty(t, Genesis().Transactions)
	assert.Nil(t, Genesis().MerkleRoot)
}

func TestBlockRoundTrip(t *testing.T) {
	key := testKey(t)
	gen := Genesis()

	b := mineOn(t, gen, nil, 2, gen.Timestamp+10, key)

	d, err := b.Marshal()
	require.NoError(t, err)

	got := &Block{}
	require.NoError(t, got.Unmarshal(d))

	assert.Equal(t, b.Hash, got.ComputeHash())
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := NewTransaction("0xaaaa", "0xbbbb", 42, nil, 1)

	d, err := tx.Marshal()
	require.NoError(t, err)

	got := &Transaction{}
	require.NoError(t, got.Unmarshal(d))

	assert.Equal(t, tx.Hash, got.ComputeHash())
}

func TestMineDifficultyFour(t *testing.T) {
	key := testKey(t)
	gen := Genesis()

	b := mineOn(t, gen, nil, 4, gen.Timestamp+10, key)

	assert.Equal(t, "0000", b.Hash[:4])
	assert.NoError(t, ValidateBlock(b, gen, testParams()))

	// flipping the nonce without remining breaks the hash binding
	b.Nonce++
	assert.Error(t, ValidateBlock(b, gen, testParams()))
}

func TestValidateBlockTamper(t *testing.T) {
	key := testKey(t)
	gen := Genesis()
	p := testParams()

	cb := NewCoinbase("0xcccc", 1)
	b := mineOn(t, gen, []*Transaction{cb}, 2, gen.Timestamp+10, key)
	require.NoError(t, ValidateBlock(b, gen, p))

	tampered := *b
	tampered.LastHash = "ff" + tampered.LastHash[2:]
	assert.Error(t, ValidateBlock(&tampered, gen, p))

	tampered = *b
	tampered.Hash = "00" + tampered.Hash[2:]
	assert.Error(t, ValidateBlock(&tampered, gen, p))

	tampered = *b
	tampered.Transactions = []*Transaction{NewCoinbase("0xdddd", 1)}
	assert.Error(t, ValidateBlock(&tampered, gen, p))
}

func TestQuantumProofRequired(t *testing.T) {
	key := testKey(t)
	gen := Genesis()

	b := mineOn(t, gen, nil, 2, gen.Timestamp+10, key)
	b.QuantumProof = nil

	err := ValidateBlock(b, gen, testParams())
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAdjustDifficulty(t *testing.T) {
	p := DefaultParams()
	prev := &Block{Timestamp: 1000, Difficulty: 5}

	// slow block eases difficulty
	assert.Equal(t, 4, AdjustDifficulty(prev, 1000+30, p))
	// fast block raises it
	assert.Equal(t, 6, AdjustDifficulty(prev, 1000+2, p))
	// in-band leaves it alone
	assert.Equal(t, 5, AdjustDifficulty(prev, 1000+10, p))

	prev.Difficulty = p.MinDifficulty
	assert.Equal(t, p.MinDifficulty, AdjustDifficulty(prev, 1000+100, p))

	prev.Difficulty = p.MaxDifficulty
	assert.Equal(t, p.MaxDifficulty, AdjustDifficulty(prev, 1000+1, p))
}

func buildChain(t *testing.T, n int, key *cryptography.PrivateKey) []*Block {
	return buildChainSpaced(t, n, 10, key)
}

// buildChainSpaced mines n blocks on genesis with a fixed timestamp step
// between consecutive blocks.
func buildChainSpaced(t *testing.T, n int, step int64, key *cryptography.PrivateKey) []*Block {
	t.Helper()

	blocks := []*Block{Genesis()}
	diff := 2
	for i := 0; i < n; i++ {
		prev := blocks[len(blocks)-1]
		blocks = append(blocks, mineOn(t, prev, nil, diff, prev.Timestamp+step, key))
		if diff > 1 {
			diff--
		}
	}

	return blocks
}

func TestIsValidChain(t *testing.T) {
	key := testKey(t)
	p := testParams()

	blocks := buildChain(t, 4, key)
	assert.NoError(t, IsValidChain(blocks, p))

	// single-byte tamper anywhere breaks it
	blocks[2].Hash = "00" + blocks[2].Hash[2:]
	assert.Error(t, IsValidChain(blocks, p))
}

func TestIsValidChainRejectsForeignGenesis(t *testing.T) {
	key := testKey(t)
	p := testParams()

	blocks := buildChain(t, 2, key)
	forged := *blocks[0]
	forged.Timestamp++
	forged.Hash = forged.ComputeHash()
	blocks[0] = &forged

	assert.ErrorIs(t, IsValidChain(blocks, p), ErrChainInvalid)
}

func TestDifficultyDriftWindow(t *testing.T) {
	key := testKey(t)
	p := testParams()

	// enough mined blocks past genesis to fill one adjustment window
	n := p.DifficultyAdjustmentInterval

	// 10s spacing matches the target pace exactly
	onPace := buildChainSpaced(t, n, 10, key)
	assert.NoError(t, IsValidChain(onPace, p))

	// 14s spacing puts the window span past 125% of target
	slow := buildChainSpaced(t, n, 14, key)
	assert.ErrorIs(t, IsValidChain(slow, p), ErrChainInvalid)

	// 7s spacing falls below 75%
	fast := buildChainSpaced(t, n, 7, key)
	assert.ErrorIs(t, IsValidChain(fast, p), ErrChainInvalid)
}

func TestReplace(t *testing.T) {
	key := testKey(t)
	p := testParams()
	ctx := context.Background()

	c, err := New(p)
	require.NoError(t, err)

	longer := buildChain(t, 3, key)
	require.NoError(t, c.Replace(ctx, longer))
	assert.Equal(t, uint64(3), c.Height())

	// equal length fails
	assert.ErrorIs(t, c.Replace(ctx, longer), ErrChainNotLonger)

	// shorter fails
	assert.ErrorIs(t, c.Replace(ctx, longer[:2]), ErrChainNotLonger)

	// longer but tampered fails and leaves the chain untouched
	tampered := buildChain(t, 5, key)
	tampered[3].LastHash = "00" + tampered[3].LastHash[2:]
	assert.ErrorIs(t, c.Replace(ctx, tampered), ErrChainInvalid)
	assert.Equal(t, uint64(3), c.Height())
}

func TestAddBlock(t *testing.T) {
	key := testKey(t)
	ctx := context.Background()

	c, err := New(testParams())
	require.NoError(t, err)

	b := mineOn(t, c.Last(), nil, 2, c.Last().Timestamp+10, key)
	require.NoError(t, c.AddBlock(ctx, b))
	assert.Equal(t, uint64(1), c.Height())

	// stale predecessor
	stale := mineOn(t, Genesis(), nil, 2, Genesis().Timestamp+20, key)
	assert.Error(t, c.AddBlock(ctx, stale))
}

func TestZeroAmountRejectedBeforeSignatureCheck(t *testing.T) {
	tx := NewTransaction("0xaaaa", "0xbbbb", 0, nil, 0)
	// garbage signature material: if signature verification ran first this
	// would surface ErrInvalidSignature instead
	tx.SenderPublicKey = []byte("junk")
	tx.Signature = []byte("junk")

	err := tx.Validate()
	assert.ErrorIs(t, err, ErrInvalidTransaction)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestSignedTransactionValidates(t *testing.T) {
	key := testKey(t)

	pk, err := key.Public().Bytes()
	require.NoError(t, err)
	sender := cryptography.AddressFromPublicKey(pk)

	tx := NewTransaction(sender, "0xbbbb", 10, nil, 7)
	require.NoError(t, tx.Sign(key))
	assert.NoError(t, tx.Validate())

	tx.Signature[0] ^= 0xff
	assert.ErrorIs(t, tx.Validate(), ErrInvalidSignature)
}

func TestBlockReward(t *testing.T) {
	assert.Equal(t, uint64(50), BlockReward(0))
	assert.Equal(t, uint64(50), BlockReward(209999))
	assert.Equal(t, uint64(25), BlockReward(210000))
	assert.Equal(t, uint64(12), BlockReward(420000))
}

func TestCoinbaseAmountBoundToHeight(t *testing.T) {
	key := testKey(t)
	gen := Genesis()

	cb := NewCoinbase("0xcccc", 1)
	cb.Amount = 999
	cb.Hash = cb.ComputeHash()

	b := mineOn(t, gen, []*Transaction{cb}, 2, gen.Timestamp+10, key)
	assert.Error(t, ValidateBlock(b, gen, testParams()))
}

func TestMiningCancellation(t *testing.T) {
	key := testKey(t)
	p := testParams()

	m := NewMiner(p, key)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	hard := &Block{
		Height:     0,
		Timestamp:  time.Now().Unix() - 1,
		LastHash:   GenesisLastHash,
		Difficulty: p.MaxDifficulty,
	}
	hard.Hash = hard.ComputeHash()

	_, err := m.Mine(ctx, hard, nil)
	assert.Error(t, err)
}

func TestMerkleRoot(t *testing.T) {
	assert.Nil(t, ComputeMerkleRoot(nil))

	one := ComputeMerkleRoot([]string{"aa"})
	require.NotNil(t, one)

	two := ComputeMerkleRoot([]string{"aa", "bb"})
	require.NotNil(t, two)
	assert.NotEqual(t, *one, *two)

	// order matters
	swapped := ComputeMerkleRoot([]string{"bb", "aa"})
	assert.NotEqual(t, *two, *swapped)
}

func TestBalanceAndRewardCredit(t *testing.T) {
	key := testKey(t)
	ctx := context.Background()

	c, err := New(testParams())
	require.NoError(t, err)

	cb := NewCoinbase("0xabc", 1)
	b := mineOn(t, c.Last(), []*Transaction{cb}, 2, c.Last().Timestamp+10, key)
	require.NoError(t, c.AddBlock(ctx, b))

	assert.Equal(t, BlockReward(1), c.BalanceOf("0xabc"))

	require.NoError(t, c.CreditReward("0xabc", 7))
	assert.Equal(t, BlockReward(1)+7, c.BalanceOf("0xabc"))
}
