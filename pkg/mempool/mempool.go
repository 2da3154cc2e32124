package mempool

import (
	"container/heap"
	"sync"

	"github.com/tesserachain/tessera/pkg/chain"
)

// Pool is the prioritized holding area for unconfirmed transactions. Higher
// amounts surface first; ties fall back to arrival order so block assembly
// stays deterministic.
type Pool struct {
	mu    sync.Mutex
	items txHeap
	index map[string]*poolItem
	seq   uint64
}

type poolItem struct {
	tx  *chain.Transaction
	seq uint64
	pos int
}

type txHeap []*poolItem

func New() *Pool {
	p := &Pool{
		index: make(map[string]*poolItem),
	}
	heap.Init(&p.items)

	return p
}

func (h txHeap) Len() int { return len(h) }

func (h txHeap) Less(i, j int) bool {
	if h[i].tx.Amount != h[j].tx.Amount {
		return h[i].tx.Amount > h[j].tx.Amount
	}

	return h[i].seq < h[j].seq
}

func (h txHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *txHeap) Push(x interface{}) {
	it := x.(*poolItem)
	it.pos = len(*h)
	*h = append(*h, it)
}

func (h *txHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return it
}

// Add returns false when the transaction is already pooled.
func (p *Pool) Add(tx *chain.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[tx.Hash]; ok {
		return false
	}

	it := &poolItem{tx: tx, seq: p.seq}
	p.seq++

	heap.Push(&p.items, it)
	p.index[tx.Hash] = it

	return true
}

func (p *Pool) Has(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.index[hash]

	return ok
}

func (p *Pool) Remove(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.index[hash]
	if !ok {
		return
	}

	heap.Remove(&p.items, it.pos)
	delete(p.index, hash)
}

// Pop takes the highest priority transaction, or nil when empty.
func (p *Pool) Pop() *chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil
	}

	it := heap.Pop(&p.items).(*poolItem)
	delete(p.index, it.tx.Hash)

	return it.tx
}

// Take removes and returns up to n transactions in priority order, for block
// assembly.
func (p *Pool) Take(n int) []*chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*chain.Transaction, 0, n)
	for len(p.items) > 0 && len(out) < n {
		it := heap.Pop(&p.items).(*poolItem)
		delete(p.index, it.tx.Hash)
		out = append(out, it.tx)
	}

	return out
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.items)
}
