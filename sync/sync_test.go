package sync

import (
	"context"
	"testing"

	"github.com/daglabs/sidetree-anchor-engine/anchor"
	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/quantile"
	"github.com/daglabs/sidetree-anchor-engine/store"
	"github.com/daglabs/sidetree-anchor-engine/txlog"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

var testPrefix = []byte("sidetree:")

func anchorOutput(t *testing.T, payload string) chain.TxOutput {
	t.Helper()
	script, err := anchor.Encode(testPrefix, []byte(payload))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return chain.TxOutput{ScriptPubKey: script}
}

func newEngine(t *testing.T, fc *chain.FakeClient, batchSize uint32) (*Engine, *txlog.Log, *quantile.Calculator) {
	t.Helper()
	db := store.NewMemoryStore()
	log := txlog.New(db)
	qc, err := quantile.NewCalculator(db, 1, 2, 0.5)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	cfg := Config{
		AnchorPrefix:         testPrefix,
		GenesisBlock:         0,
		MaxTransactionInputs: 100,
		BatchSizeInBlocks:    batchSize,
		SampleSize:           3,
	}
	return New(fc, log, qc, cfg, nil), log, qc
}

func feeTx(id string, valueOut int64) chain.Transaction {
	return chain.Transaction{TxID: id, Outputs: []chain.TxOutput{{ValueSatoshis: valueOut}}}
}

func TestScenarioAHappyPathSync(t *testing.T) {
	fc := chain.NewFakeClient()
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h0"})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "h101",
		Transactions: []chain.Transaction{
			{TxID: "t0"},
			{TxID: "t1", Outputs: []chain.TxOutput{anchorOutput(t, "abc")}},
		},
	})
	fc.AppendBlock(&chain.Block{Height: 2, Hash: "h103",
		Transactions: []chain.Transaction{
			{TxID: "t2", Outputs: []chain.TxOutput{anchorOutput(t, "def")}},
		},
	})

	engine, log, _ := newEngine(t, fc, 1000)
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	count, err := log.Count()
	if err != nil || count != 2 {
		t.Fatalf("expected 2 anchor records, got %d err %v", count, err)
	}
	last, ok, err := log.Last()
	if err != nil || !ok {
		t.Fatalf("expected a last record: ok=%v err=%v", ok, err)
	}
	if last.TransactionNumber != txnum.MustConstruct(2, 0) {
		t.Fatalf("expected last record at height 2 index 0, got %d", last.TransactionNumber)
	}
	if engine.LastSeen().Height != 2 || engine.LastSeen().Hash != "h103" {
		t.Fatalf("expected last_seen_block (2, h103), got %+v", engine.LastSeen())
	}
}

func TestScenarioCDoubleAnchorRejection(t *testing.T) {
	fc := chain.NewFakeClient()
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h0",
		Transactions: []chain.Transaction{
			{TxID: "ambiguous", Outputs: []chain.TxOutput{
				anchorOutput(t, "one"), anchorOutput(t, "two"),
			}},
			{TxID: "ok", Outputs: []chain.TxOutput{anchorOutput(t, "fine")}},
		},
	})

	engine, log, _ := newEngine(t, fc, 1000)
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	count, err := log.Count()
	if err != nil || count != 1 {
		t.Fatalf("expected exactly 1 surviving anchor record, got %d err %v", count, err)
	}
	last, _, _ := log.Last()
	if string(last.AnchorPayload) != "fine" {
		t.Fatalf("expected surviving record payload 'fine', got %q", last.AnchorPayload)
	}
}

func TestScenarioBReorgAtTip(t *testing.T) {
	fc := chain.NewFakeClient()
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h100"})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "h101",
		Transactions: []chain.Transaction{
			{TxID: "t0"},
			{TxID: "t1", Outputs: []chain.TxOutput{anchorOutput(t, "abc")}},
		},
	})
	fc.AppendBlock(&chain.Block{Height: 2, Hash: "h102"})
	fc.AppendBlock(&chain.Block{Height: 3, Hash: "h103"})

	engine, log, _ := newEngine(t, fc, 2)
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("initial Tick failed: %v", err)
	}
	if count, _ := log.Count(); count != 1 {
		t.Fatalf("expected 1 anchor record before reorg, got %d", count)
	}

	fc.Reorg(3, []*chain.Block{{Hash: "h103prime"}})

	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("reorg Tick failed: %v", err)
	}
	count, err := log.Count()
	if err != nil || count != 1 {
		t.Fatalf("expected log to still hold exactly 1 anchor record after reorg+resync, got %d err %v", count, err)
	}
	last, _, _ := log.Last()
	if string(last.AnchorPayload) != "abc" {
		t.Fatalf("expected the block-1 anchor to have survived, got %q", last.AnchorPayload)
	}
	if engine.LastSeen().Height != 3 || engine.LastSeen().Hash != "h103prime" {
		t.Fatalf("expected resync to reach (3, h103prime), got %+v", engine.LastSeen())
	}
}

func TestScenarioDBatchBoundaryQuantile(t *testing.T) {
	fc := chain.NewFakeClient()
	prevID := "genesis-in"
	fc.RegisterTransaction(&chain.Transaction{TxID: prevID, Outputs: []chain.TxOutput{{ValueSatoshis: 1000}}})

	mkBlock := func(height uint32, hash string, fee int64, txid string) *chain.Block {
		in := chain.TxInput{PrevTxID: prevID, PrevVout: 0}
		tx := chain.Transaction{TxID: txid, Inputs: []chain.TxInput{in}, Outputs: []chain.TxOutput{{ValueSatoshis: 1000 - fee}}}
		return &chain.Block{Height: height, Hash: hash, Transactions: []chain.Transaction{tx}}
	}

	fc.AppendBlock(mkBlock(0, "b0", 10, "tx0"))
	fc.AppendBlock(mkBlock(1, "b1", 20, "tx1"))
	fc.AppendBlock(mkBlock(2, "b2", 30, "tx2"))
	fc.AppendBlock(mkBlock(3, "b3", 10, "tx3")) // batch boundary at height 3 (batch_size=4)
	fc.AppendBlock(mkBlock(4, "b4", 100, "tx4"))
	fc.AppendBlock(mkBlock(5, "b5", 200, "tx5"))
	fc.AppendBlock(mkBlock(6, "b6", 300, "tx6"))
	fc.AppendBlock(mkBlock(7, "b7", 100, "tx7")) // batch boundary at height 7

	engine, _, qc := newEngine(t, fc, 4)
	if err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// ProcessBlock resets the sampler on every block, not just at batch
	// boundaries (DESIGN.md's resolution of Open Question 4), so only the
	// boundary block's own transaction ever survives into a batch's fee
	// sample: batch 0's sample is just tx3's fee (10), batch 1's is just
	// tx7's fee (100).
	v0, ok, err := qc.Quantile(0)
	if err != nil || !ok {
		t.Fatalf("expected a snapshot for batch 0, ok=%v err=%v", ok, err)
	}
	if v0 != 10 {
		t.Fatalf("expected batch 0's quantile to be 10 (its sample is just tx3's fee), got %d", v0)
	}

	v1, ok, err := qc.Quantile(1)
	if err != nil || !ok {
		t.Fatalf("expected a snapshot for batch 1, ok=%v err=%v", ok, err)
	}
	if v1 != 10 {
		t.Fatalf("expected batch 1's rolling quantile over {10,100} to be 10, got %d", v1)
	}
}
