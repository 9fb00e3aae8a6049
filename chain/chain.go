// Package chain implements the BlockchainClient contract of spec §4.1: an
// abstract, synchronous view of the upstream Bitcoin chain used by the
// sync engine and query API. The real backend (RPCClient) is grounded on
// this project's teacher's rpcclient package, generalized from its
// future/promise call shape to a direct synchronous interface since §4.1
// specifies a blocking contract.
package chain

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TxOutput is one output of a Transaction.
type TxOutput struct {
	ValueSatoshis int64
	ScriptPubKey  []byte
}

// TxInput is one input of a Transaction, referencing a previous output.
type TxInput struct {
	PrevTxID string
	PrevVout uint32
}

// Transaction is the minimal transaction shape the engine needs: enough
// to extract anchors (outputs) and compute fees (inputs' previous
// outputs, fetched via RawTransaction).
type Transaction struct {
	TxID    string
	Inputs  []TxInput
	Outputs []TxOutput
}

// Block is one block's worth of transactions plus its identity.
type Block struct {
	Height       uint32
	Hash         string
	Transactions []Transaction
}

// Client is the abstract BlockchainClient contract (spec §4.1).
// Implementations must classify transport failures using the errkind
// package so the sync engine can distinguish retryable timeouts from
// fatal errors (spec §4.1, §7).
type Client interface {
	// TipHeight returns the current height of the upstream chain's tip.
	TipHeight() (uint32, error)
	// BlockHash returns the hash of the block at height. Fails if height
	// is greater than the current tip.
	BlockHash(height uint32) (string, error)
	// HeightForHash resolves a block hash to its height. Fails if hash is
	// not a block known to the upstream chain.
	HeightForHash(hash string) (uint32, error)
	// Block returns the full block at height, including every
	// transaction's inputs, outputs, and txid.
	Block(height uint32) (*Block, error)
	// RawTransaction returns a transaction by its txid, regardless of
	// which block (if any) contains it. Used to resolve a fee-paying
	// transaction's inputs' previous outputs (spec §4.7).
	RawTransaction(txid string) (*Transaction, error)
}

// ParseHash validates that s is a well-formed chainhash.Hash hex string,
// returning the parsed hash. Used by the RPC backend to validate
// responses before trusting them as block/transaction identities.
func ParseHash(s string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}
