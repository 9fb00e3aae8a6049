package anchor

import (
	"testing"

	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

var prefix = []byte("sidetree:")

func mustEncode(t *testing.T, payload []byte) []byte {
	t.Helper()
	script, err := Encode(prefix, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return script
}

func TestExtractHappyPath(t *testing.T) {
	block := &chain.Block{
		Height: 101,
		Hash:   "hash101",
		Transactions: []chain.Transaction{
			{
				TxID: "tx0",
				Outputs: []chain.TxOutput{
					{ValueSatoshis: 1000},
				},
			},
			{
				TxID: "tx1",
				Outputs: []chain.TxOutput{
					{ScriptPubKey: mustEncode(t, []byte("abc"))},
				},
			},
		},
	}

	records, samples, err := Extract(block, prefix, 100)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := txnum.MustConstruct(101, 1)
	if records[0].TransactionNumber != want {
		t.Fatalf("expected transaction number %d, got %d", want, records[0].TransactionNumber)
	}
	if string(records[0].AnchorPayload) != "abc" {
		t.Fatalf("expected payload abc, got %q", records[0].AnchorPayload)
	}
	if len(samples) != 1 || samples[0] != "tx0" {
		t.Fatalf("expected tx0 in sample set, got %v", samples)
	}
}

func TestExtractRejectsTwoAnchorsInOneTx(t *testing.T) {
	block := &chain.Block{
		Height: 5,
		Hash:   "hash5",
		Transactions: []chain.Transaction{
			{
				TxID: "ambiguous",
				Outputs: []chain.TxOutput{
					{ScriptPubKey: mustEncode(t, []byte("one"))},
					{ScriptPubKey: mustEncode(t, []byte("two"))},
				},
			},
		},
	}

	records, samples, err := Extract(block, prefix, 100)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected the ambiguous tx to be rejected, got %d records", len(records))
	}
	if len(samples) != 0 {
		t.Fatalf("expected the rejected tx to also be excluded from sampling, got %v", samples)
	}
}

func TestExtractSkipsWrongPrefix(t *testing.T) {
	block := &chain.Block{
		Height: 5,
		Hash:   "hash5",
		Transactions: []chain.Transaction{
			{
				TxID: "tx0",
				Outputs: []chain.TxOutput{
					{ScriptPubKey: mustEncode2(t, []byte("other:"), []byte("xyz"))},
				},
			},
		},
	}

	records, samples, err := Extract(block, prefix, 100)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no anchor records for a non-matching prefix, got %d", len(records))
	}
	if len(samples) != 1 {
		t.Fatalf("expected the non-anchor tx to be sampled, got %v", samples)
	}
}

func mustEncode2(t *testing.T, prefix2, payload []byte) []byte {
	t.Helper()
	script, err := Encode(prefix2, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return script
}

func TestExtractExcludesHighInputCountFromSampling(t *testing.T) {
	block := &chain.Block{
		Height: 5,
		Hash:   "hash5",
		Transactions: []chain.Transaction{
			{
				TxID: "manyinputs",
				Inputs: []chain.TxInput{
					{PrevTxID: "a"}, {PrevTxID: "b"}, {PrevTxID: "c"},
				},
			},
		},
	}

	_, samples, err := Extract(block, prefix, 2)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("expected transaction with 3 inputs to be excluded at max 2, got %v", samples)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	script := mustEncode(t, []byte("round-trip-payload"))
	payload, ok := Decode(script, prefix)
	if !ok {
		t.Fatal("expected Decode to recognize the encoded script")
	}
	if string(payload) != "round-trip-payload" {
		t.Fatalf("expected payload round-trip, got %q", payload)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxOpReturnDataSize)
	_, err := Encode(prefix, big)
	if err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}
