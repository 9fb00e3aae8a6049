// Package anchor implements the AnchorExtractor contract of spec §4.2: a
// pure function from a block to the anchor records it contains and the
// txids eligible for fee sampling. The on-chain codec is grounded on this
// project's witnessd reference (BuildOpReturnScript/ParseWitnessdOpReturn),
// generalized from a fixed 2-byte marker to an arbitrary configured
// prefix and built on btcsuite/btcd/txscript's script tokenizer instead of
// a hand-rolled opcode walk.
package anchor

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/logger"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

var log = logger.Subsystem(logger.SubsystemTags.ANCH)

// MaxOpReturnDataSize is the current Bitcoin Core standardness limit on
// OP_RETURN payload size (spec §6: "the full on-chain data must fit
// within the network's standard OP_RETURN size limit (80 bytes)").
const MaxOpReturnDataSize = 80

// Record is one discovered anchor (spec §4.1's AnchorRecord, minus
// fee_paid, which the sync engine fills in once it has resolved the
// carrying transaction's inputs per spec §4.7).
type Record struct {
	TransactionNumber uint64
	BlockHeight       uint32
	BlockHash         string
	AnchorPayload     []byte
	TxID              string
	// FeePaid is left zero by Extract; the sync engine fills it in via
	// spec §4.7's fee computation before appending to the TransactionLog.
	FeePaid uint64
}

// Extract scans block for anchor outputs carrying prefix, per spec §4.2.
// It returns one Record per qualifying transaction (in block order) and
// the txids of transactions that are candidates for fee sampling: those
// with no anchor output and at most maxInputCount inputs.
func Extract(block *chain.Block, prefix []byte, maxInputCount uint32) ([]Record, []string, error) {
	records := make([]Record, 0)
	sampleTxIDs := make([]string, 0)

	for txIndex, tx := range block.Transactions {
		payload, ambiguous, err := extractSingleAnchor(tx.Outputs, prefix)
		if err != nil {
			return nil, nil, err
		}
		if ambiguous {
			log.Warnf("skipping tx %s in block %d: more than one anchor output", tx.TxID, block.Height)
			continue
		}
		if payload != nil {
			txNum, err := txnum.Construct(block.Height, uint32(txIndex))
			if err != nil {
				log.Warnf("skipping tx %s in block %d: %s", tx.TxID, block.Height, err)
				continue
			}
			records = append(records, Record{
				TransactionNumber: txNum,
				BlockHeight:       block.Height,
				BlockHash:         block.Hash,
				AnchorPayload:     payload,
				TxID:              tx.TxID,
			})
			continue
		}
		if uint32(len(tx.Inputs)) <= maxInputCount {
			sampleTxIDs = append(sampleTxIDs, tx.TxID)
		}
	}

	return records, sampleTxIDs, nil
}

// extractSingleAnchor inspects a transaction's outputs for qualifying
// anchor data. It returns (payload, false, nil) for exactly one match,
// (nil, true, nil) for two or more matches (the transaction is rejected
// per spec §4.2 rule 2), and (nil, false, nil) for none.
func extractSingleAnchor(outputs []chain.TxOutput, prefix []byte) ([]byte, bool, error) {
	var found []byte
	count := 0
	for _, out := range outputs {
		data, ok := opReturnData(out.ScriptPubKey)
		if !ok {
			continue
		}
		if !bytes.HasPrefix(data, prefix) {
			continue
		}
		count++
		if count == 1 {
			payload := make([]byte, len(data)-len(prefix))
			copy(payload, data[len(prefix):])
			found = payload
		}
		if count > 1 {
			return nil, true, nil
		}
	}
	if count == 1 {
		return found, false, nil
	}
	return nil, false, nil
}

// opReturnData returns the pushed data of a standard
// `OP_RETURN <data>` script, or ok=false if script is not of that shape.
func opReturnData(script []byte) (data []byte, ok bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() {
		return nil, false
	}
	if tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() {
		return nil, false
	}
	opcode := tokenizer.Opcode()
	if opcode > txscript.OP_PUSHDATA4 && opcode != txscript.OP_0 {
		return nil, false
	}
	pushed := tokenizer.Data()
	// No further pushes allowed; anything else makes this a non-anchor
	// (possibly multi-push) OP_RETURN we don't recognize.
	if tokenizer.Next() {
		return nil, false
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	return pushed, true
}

// Encode builds the standard `OP_RETURN <prefix||payload>` script for an
// outbound anchor transaction (used by tests and any anchor-writing
// tooling). It rejects payloads that would exceed the network's
// standardness limit once the prefix is attached.
func Encode(prefix, payload []byte) ([]byte, error) {
	data := make([]byte, 0, len(prefix)+len(payload))
	data = append(data, prefix...)
	data = append(data, payload...)
	if len(data) > MaxOpReturnDataSize {
		return nil, txscript.Error{ErrorCode: txscript.ErrTooMuchNullData, Description: "data exceeds max data size"}
	}
	return txscript.NullDataScript(data)
}

// Decode is the inverse of Encode: given a complete OP_RETURN script and
// the expected prefix, it returns the payload with the prefix stripped.
// ok is false if script is not an OP_RETURN output or does not carry
// prefix.
func Decode(script, prefix []byte) (payload []byte, ok bool) {
	data, isOpReturn := opReturnData(script)
	if !isOpReturn || !bytes.HasPrefix(data, prefix) {
		return nil, false
	}
	out := make([]byte, len(data)-len(prefix))
	copy(out, data[len(prefix):])
	return out, true
}
