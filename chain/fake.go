package chain

import (
	"fmt"
	"sync"
)

// FakeClient is an in-memory Client double used by sync/anchor/sampler
// tests to script exact chain histories, including reorgs (spec §8
// scenarios B and E), without a live bitcoind. Blocks are addressed by
// height; SetChain/Reorg mutate the height->block mapping directly.
type FakeClient struct {
	mu     sync.RWMutex
	blocks map[uint32]*Block
	txs    map[string]*Transaction
	tip    uint32
}

// NewFakeClient returns an empty FakeClient with no blocks.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		blocks: make(map[uint32]*Block),
		txs:    make(map[string]*Transaction),
	}
}

// AppendBlock adds block as the new tip. Its height must be exactly one
// greater than the current tip (or zero, for the first block).
func (f *FakeClient) AppendBlock(block *Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[block.Height] = block
	for i := range block.Transactions {
		tx := block.Transactions[i]
		f.txs[tx.TxID] = &tx
	}
	if block.Height > f.tip || len(f.blocks) == 1 {
		f.tip = block.Height
	}
}

// Reorg replaces every block at height >= fromHeight with replacements,
// simulating a chain reorganization. replacements[i] becomes the block at
// height fromHeight+i; the new tip is fromHeight+len(replacements)-1.
func (f *FakeClient) Reorg(fromHeight uint32, replacements []*Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h := range f.blocks {
		if h >= fromHeight {
			delete(f.blocks, h)
		}
	}
	for i, block := range replacements {
		h := fromHeight + uint32(i)
		block.Height = h
		f.blocks[h] = block
		for j := range block.Transactions {
			tx := block.Transactions[j]
			f.txs[tx.TxID] = &tx
		}
	}
	f.tip = fromHeight + uint32(len(replacements)) - 1
}

// RegisterTransaction makes tx resolvable via RawTransaction independent
// of whether it appears in any block (used to stand in for a fee-paying
// transaction's previous outputs).
func (f *FakeClient) RegisterTransaction(tx *Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.TxID] = tx
}

// TipHeight implements Client.
func (f *FakeClient) TipHeight() (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.blocks) == 0 {
		return 0, fmt.Errorf("chain: fake client has no blocks")
	}
	return f.tip, nil
}

// BlockHash implements Client.
func (f *FakeClient) BlockHash(height uint32) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.blocks[height]
	if !ok {
		return "", fmt.Errorf("chain: fake client has no block at height %d", height)
	}
	return b.Hash, nil
}

// HeightForHash implements Client.
func (f *FakeClient) HeightForHash(hash string) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for h, b := range f.blocks {
		if b.Hash == hash {
			return h, nil
		}
	}
	return 0, fmt.Errorf("chain: fake client has no block with hash %s", hash)
}

// Block implements Client.
func (f *FakeClient) Block(height uint32) (*Block, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.blocks[height]
	if !ok {
		return nil, fmt.Errorf("chain: fake client has no block at height %d", height)
	}
	return b, nil
}

// RawTransaction implements Client.
func (f *FakeClient) RawTransaction(txid string) (*Transaction, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tx, ok := f.txs[txid]
	if !ok {
		return nil, fmt.Errorf("chain: fake client has no transaction %s", txid)
	}
	return tx, nil
}
