package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserachain/tessera/pkg/chain"
)

func testBlocks(t *testing.T) []*chain.Block {
	t.Helper()

	gen := chain.Genesis()

	tx1 := chain.NewTransaction("0xaaaa", "0xbbbb", 5, nil, 0)
	tx2 := chain.NewTransaction("0xbbbb", "0xcccc", 3, nil, 1)
	tx2.Timestamp = tx1.Timestamp + 5
	tx2.Hash = tx2.ComputeHash()

	b1 := &chain.Block{
		Height:       1,
		Timestamp:    gen.Timestamp + 10,
		LastHash:     gen.Hash,
		Transactions: []*chain.Transaction{tx1, tx2},
		Difficulty:   2,
		MerkleRoot:   chain.ComputeMerkleRoot([]string{tx1.Hash, tx2.Hash}),
	}
	b1.Hash = b1.ComputeHash()

	return []*chain.Block{gen, b1}
}

func runStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()
	blocks := testBlocks(t)

	h, err := s.GetChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), h)

	_, err = s.GetChain(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	for _, b := range blocks {
		require.NoError(t, s.SaveBlock(ctx, b))
	}

	h, err = s.GetChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)

	got, err := s.GetChain(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, blocks[1].Hash, got[1].Hash)

	byHash, err := s.GetBlockByHash(ctx, blocks[1].Hash)
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Height, byHash.Height)

	byHeight, err := s.GetBlockByHeight(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, blocks[1].Hash, byHeight.Hash)

	_, err = s.GetBlockByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	wantTx := blocks[1].Transactions[0]
	tx, err := s.GetTransaction(ctx, wantTx.Hash)
	require.NoError(t, err)
	assert.Equal(t, wantTx.Hash, tx.ComputeHash())

	has, err := s.HasTransaction(ctx, wantTx.Hash)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasTransaction(ctx, "beef")
	require.NoError(t, err)
	assert.False(t, has)

	// address index: 0xbbbb is in both txs, newest first
	txs, err := s.GetAddressTransactions(ctx, "0xbbbb")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.GreaterOrEqual(t, txs[0].Timestamp, txs[1].Timestamp)

	_, err = s.GetAddressTransactions(ctx, "0xnobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// replacement rewrites every index
	require.NoError(t, s.SaveChain(ctx, blocks[:1]))
	h, err = s.GetChainHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h)
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	defer s.Close()

	runStoreSuite(t, s)
}

func TestPebbleStore(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	runStoreSuite(t, s)
}

func TestBlockBloom(t *testing.T) {
	blocks := testBlocks(t)

	f, err := MakeBlockBloom(blocks[1])
	require.NoError(t, err)

	for _, h := range blocks[1].TxHashes() {
		ok, err := BlockBloomContains(f, h)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
