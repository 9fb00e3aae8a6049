package queryapi

import (
	"testing"

	"github.com/daglabs/sidetree-anchor-engine/anchor"
	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/quantile"
	"github.com/daglabs/sidetree-anchor-engine/store"
	"github.com/daglabs/sidetree-anchor-engine/txlog"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

func newTestAPI(t *testing.T, cfg Config) (*API, *txlog.Log, *chain.FakeClient) {
	t.Helper()
	db := store.NewMemoryStore()
	log := txlog.New(db)
	qc, err := quantile.NewCalculator(db, 1, 2, 0.5)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	fc := chain.NewFakeClient()
	return New(log, qc, fc, cfg), log, fc
}

func TestTimeReturnsCurrentTipWhenHashAbsent(t *testing.T) {
	api, _, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h0"})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "h1"})

	height, hash, err := api.Time("")
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if height != 1 || hash != "h1" {
		t.Fatalf("expected (1, h1), got (%d, %s)", height, hash)
	}
}

func TestTimeResolvesProvidedHashUpstream(t *testing.T) {
	api, _, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h0"})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "h1"})
	fc.AppendBlock(&chain.Block{Height: 2, Hash: "h2"})

	height, hash, err := api.Time("h1")
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if height != 1 || hash != "h1" {
		t.Fatalf("expected (1, h1), got (%d, %s)", height, hash)
	}
}

func TestTimeRejectsUnknownHash(t *testing.T) {
	api, _, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 0, Hash: "h0"})

	if _, _, err := api.Time("not-a-real-hash"); err == nil {
		t.Fatal("expected Time to fail resolving an unknown hash")
	}
}

func TestTransactionsRejectsOnlyOneOfSinceHashSet(t *testing.T) {
	api, _, _ := newTestAPI(t, Config{PageSize: 2})
	since := uint64(5)
	if _, err := api.Transactions(&since, nil); err == nil {
		t.Fatal("expected BadRequest when only since is set")
	}
	hash := "abc"
	if _, err := api.Transactions(nil, &hash); err == nil {
		t.Fatal("expected BadRequest when only hash is set")
	}
}

func TestTransactionsRejectsStaleForkHash(t *testing.T) {
	api, log, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "real-hash"})
	rec := anchor.Record{TransactionNumber: txnum.MustConstruct(1, 0), BlockHeight: 1, BlockHash: "real-hash", AnchorPayload: []byte("a")}
	if err := log.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	since := rec.TransactionNumber
	staleHash := "stale-hash"
	if _, err := api.Transactions(&since, &staleHash); err == nil {
		t.Fatal("expected BadRequest for a stale-fork hash")
	}
}

func TestTransactionsPaginationMatchesScenarioF(t *testing.T) {
	api, log, fc := newTestAPI(t, Config{PageSize: 2})
	var last anchor.Record
	for i := uint32(1); i <= 5; i++ {
		fc.AppendBlock(&chain.Block{Height: i, Hash: "h"})
		rec := anchor.Record{TransactionNumber: txnum.MustConstruct(i, 0), BlockHeight: i, BlockHash: "h", AnchorPayload: []byte("x")}
		if err := log.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		last = rec
	}
	_ = last

	page1, err := api.Transactions(nil, nil)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if !page1.MoreTransactions || len(page1.Transactions) != 2 {
		t.Fatalf("expected first page of 2 with more=true, got %+v", page1)
	}

	since := page1.Transactions[1].TransactionNumber
	hash := page1.Transactions[1].BlockHash
	page2, err := api.Transactions(&since, &hash)
	if err != nil {
		t.Fatalf("Transactions page 2 failed: %v", err)
	}
	if !page2.MoreTransactions || len(page2.Transactions) != 2 {
		t.Fatalf("expected second page of 2 with more=true, got %+v", page2)
	}

	since2 := page2.Transactions[1].TransactionNumber
	hash2 := page2.Transactions[1].BlockHash
	page3, err := api.Transactions(&since2, &hash2)
	if err != nil {
		t.Fatalf("Transactions page 3 failed: %v", err)
	}
	if page3.MoreTransactions || len(page3.Transactions) != 1 {
		t.Fatalf("expected final page of 1 with more=false, got %+v", page3)
	}
}

func TestFirstValidTransactionSkipsStaleRecords(t *testing.T) {
	api, _, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "h1-current"})
	fc.AppendBlock(&chain.Block{Height: 2, Hash: "h2-current"})

	stale := anchor.Record{TransactionNumber: txnum.MustConstruct(1, 0), BlockHeight: 1, BlockHash: "h1-stale"}
	valid := anchor.Record{TransactionNumber: txnum.MustConstruct(2, 0), BlockHeight: 2, BlockHash: "h2-current"}

	got, ok, err := api.FirstValidTransaction([]anchor.Record{stale, valid})
	if err != nil {
		t.Fatalf("FirstValidTransaction failed: %v", err)
	}
	if !ok || got.TransactionNumber != valid.TransactionNumber {
		t.Fatalf("expected the valid record to win, got %+v ok=%v", got, ok)
	}
}

func TestFirstValidTransactionReturnsNotOKWhenNoneMatch(t *testing.T) {
	api, _, fc := newTestAPI(t, Config{PageSize: 2})
	fc.AppendBlock(&chain.Block{Height: 1, Hash: "current"})
	stale := anchor.Record{TransactionNumber: txnum.MustConstruct(1, 0), BlockHeight: 1, BlockHash: "stale"}

	_, ok, err := api.FirstValidTransaction([]anchor.Record{stale})
	if err != nil {
		t.Fatalf("FirstValidTransaction failed: %v", err)
	}
	if ok {
		t.Fatal("expected no record to validate")
	}
}

func TestFeeAppliesHistoricalOffsetAndScale(t *testing.T) {
	db := store.NewMemoryStore()
	qc, err := quantile.NewCalculator(db, 1, 10, 0.5)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	if err := qc.Add(0, []uint64{10, 20, 30}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	api := New(txlog.New(db), qc, chain.NewFakeClient(), Config{
		PageSize:                 2,
		BatchSizeInBlocks:        10,
		HistoricalOffsetInBlocks: 5,
		QuantileScale:            2.0,
	})

	fee, ok, err := api.Fee(8)
	if err != nil {
		t.Fatalf("Fee failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a fee snapshot for batch 0")
	}
	if fee != 40 {
		t.Fatalf("expected normalized fee 40 (20*2), got %d", fee)
	}
}

func TestFeeReturnsNotOKForUnknownBatch(t *testing.T) {
	db := store.NewMemoryStore()
	qc, err := quantile.NewCalculator(db, 1, 10, 0.5)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	api := New(txlog.New(db), qc, chain.NewFakeClient(), Config{
		PageSize: 2, BatchSizeInBlocks: 10, QuantileScale: 1.0,
	})

	_, ok, err := api.Fee(100)
	if err != nil {
		t.Fatalf("Fee failed: %v", err)
	}
	if ok {
		t.Fatal("expected no fee snapshot for an unseen batch")
	}
}
