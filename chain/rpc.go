package chain

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/logger"
)

var log = logger.Subsystem(logger.SubsystemTags.CHAN)

// RPCConfig configures the connection to a Bitcoin Core JSON-RPC server.
type RPCConfig struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	HTTPPostMode bool
}

// RPCClient is the real Client backend, issuing the exact RPC methods
// enumerated in spec §6: getblockcount, getblockhash,
// getblock(verbosity=2), getrawtransaction(verbose=true).
type RPCClient struct {
	rpc *rpcclient.Client
}

// NewRPCClient dials the Bitcoin Core JSON-RPC server described by cfg.
func NewRPCClient(cfg RPCConfig) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	c, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, errkind.UpstreamError(err, "dialing bitcoind RPC at %s", cfg.Host)
	}
	return &RPCClient{rpc: c}, nil
}

// TipHeight implements Client via getblockcount.
func (c *RPCClient) TipHeight() (uint32, error) {
	count, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, classify(err, "getblockcount")
	}
	return uint32(count), nil
}

// BlockHash implements Client via getblockhash.
func (c *RPCClient) BlockHash(height uint32) (string, error) {
	hash, err := c.rpc.GetBlockHash(int64(height))
	if err != nil {
		return "", classify(err, "getblockhash(%d)", height)
	}
	return hash.String(), nil
}

// HeightForHash implements Client via getblock(hash, verbosity=1)'s
// height field, used by QueryAPI.time to resolve a caller-supplied hash.
func (c *RPCClient) HeightForHash(hash string) (uint32, error) {
	h, err := chainhash.NewHashFromStr(hash)
	if err != nil {
		return 0, errkind.UpstreamMalformed(err, "parsing block hash %q", hash)
	}
	verbose, err := c.rpc.GetBlockVerbose(h)
	if err != nil {
		return 0, classify(err, "getblock(%s, verbosity=1)", hash)
	}
	return uint32(verbose.Height), nil
}

// Block implements Client via getblock(hash, verbosity=2).
func (c *RPCClient) Block(height uint32) (*Block, error) {
	hashStr, err := c.BlockHash(height)
	if err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, errkind.UpstreamMalformed(err, "parsing block hash %q", hashStr)
	}

	verbose, err := c.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		return nil, classify(err, "getblock(%s, verbosity=2)", hashStr)
	}

	txs := make([]Transaction, 0, len(verbose.Tx))
	for _, raw := range verbose.Tx {
		tx, err := convertTxRawResult(&raw)
		if err != nil {
			return nil, errkind.UpstreamMalformed(err, "decoding tx %s in block %s", raw.Txid, hashStr)
		}
		txs = append(txs, *tx)
	}

	return &Block{Height: height, Hash: hashStr, Transactions: txs}, nil
}

// RawTransaction implements Client via getrawtransaction(txid, verbose=true).
func (c *RPCClient) RawTransaction(txid string) (*Transaction, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, errkind.UpstreamMalformed(err, "parsing txid %q", txid)
	}
	raw, err := c.rpc.GetRawTransactionVerbose(hash)
	if err != nil {
		return nil, classify(err, "getrawtransaction(%s)", txid)
	}
	return convertTxRawResult(raw)
}

func convertTxRawResult(raw *btcjson.TxRawResult) (*Transaction, error) {
	inputs := make([]TxInput, 0, len(raw.Vin))
	for _, vin := range raw.Vin {
		if vin.Coinbase != "" {
			continue
		}
		inputs = append(inputs, TxInput{PrevTxID: vin.Txid, PrevVout: vin.Vout})
	}

	outputs := make([]TxOutput, 0, len(raw.Vout))
	for _, vout := range raw.Vout {
		scriptBytes, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return nil, err
		}
		amount, err := btcutil.NewAmount(vout.Value)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, TxOutput{
			ValueSatoshis: int64(amount),
			ScriptPubKey:  scriptBytes,
		})
	}

	return &Transaction{TxID: raw.Txid, Inputs: inputs, Outputs: outputs}, nil
}

// classify maps an rpcclient-layer error into the engine's retryable/fatal
// taxonomy per spec §4.1/§7: a transport timeout (an error reporting
// Timeout() == true) is retryable; anything else, including a refused
// connection, propagates as a fatal upstream error for the current block.
func classify(err error, format string, args ...interface{}) error {
	if isTimeout(err) {
		log.Warnf("upstream call timed out: %s", err)
		return errkind.UpstreamTimeout(err, format, args...)
	}
	return errkind.UpstreamError(err, format, args...)
}

type timeouter interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}
