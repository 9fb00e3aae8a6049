package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/daglabs/sidetree-anchor-engine/errkind"
)

type scriptedClient struct {
	calls   int
	fail    int
	failErr error
}

func (s *scriptedClient) TipHeight() (uint32, error) {
	s.calls++
	if s.calls <= s.fail {
		return 0, s.failErr
	}
	return 42, nil
}

func (s *scriptedClient) BlockHash(height uint32) (string, error)   { return "", nil }
func (s *scriptedClient) HeightForHash(hash string) (uint32, error) { return 0, nil }
func (s *scriptedClient) Block(height uint32) (*Block, error)       { return nil, nil }
func (s *scriptedClient) RawTransaction(txid string) (*Transaction, error) {
	return nil, nil
}

func TestRetryingClientRetriesOnTimeout(t *testing.T) {
	inner := &scriptedClient{fail: 2, failErr: errkind.UpstreamTimeout(errors.New("timed out"), "getblockcount")}
	rc := NewRetryingClient(inner, RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 5})
	rc.sleep = func(time.Duration) {}

	height, err := rc.TipHeight()
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if height != 42 {
		t.Fatalf("expected height 42, got %d", height)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", inner.calls)
	}
}

func TestRetryingClientGivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedClient{fail: 100, failErr: errkind.UpstreamTimeout(errors.New("timed out"), "getblockcount")}
	rc := NewRetryingClient(inner, RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 3})
	rc.sleep = func(time.Duration) {}

	_, err := rc.TipHeight()
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if inner.calls != 4 {
		t.Fatalf("expected 4 calls (1 + 3 retries), got %d", inner.calls)
	}
}

func TestRetryingClientDoesNotRetryFatalErrors(t *testing.T) {
	inner := &scriptedClient{fail: 1, failErr: errkind.UpstreamMalformed(errors.New("bad json"), "getblockcount")}
	rc := NewRetryingClient(inner, RetryPolicy{BaseDelay: time.Millisecond, MaxRetries: 5})
	rc.sleep = func(time.Duration) {}

	_, err := rc.TipHeight()
	if err == nil {
		t.Fatal("expected fatal error to propagate")
	}
	if inner.calls != 1 {
		t.Fatalf("expected no retries for a non-retryable error, got %d calls", inner.calls)
	}
}

func TestFakeClientHeightForHash(t *testing.T) {
	fc := NewFakeClient()
	fc.AppendBlock(&Block{Height: 0, Hash: "h0"})
	fc.AppendBlock(&Block{Height: 1, Hash: "h1"})

	height, err := fc.HeightForHash("h1")
	if err != nil || height != 1 {
		t.Fatalf("expected height 1 for h1, got %d, err %v", height, err)
	}

	if _, err := fc.HeightForHash("nope"); err == nil {
		t.Fatal("expected error for unknown hash")
	}
}

func TestFakeClientReorg(t *testing.T) {
	fc := NewFakeClient()
	fc.AppendBlock(&Block{Height: 0, Hash: "h0"})
	fc.AppendBlock(&Block{Height: 1, Hash: "h1"})
	fc.AppendBlock(&Block{Height: 2, Hash: "h2a"})

	tip, err := fc.TipHeight()
	if err != nil || tip != 2 {
		t.Fatalf("expected tip 2, got %d, err %v", tip, err)
	}

	fc.Reorg(2, []*Block{{Hash: "h2b"}, {Hash: "h3b"}})

	tip, err = fc.TipHeight()
	if err != nil || tip != 3 {
		t.Fatalf("expected tip 3 after reorg, got %d, err %v", tip, err)
	}
	hash, err := fc.BlockHash(2)
	if err != nil || hash != "h2b" {
		t.Fatalf("expected reorged hash h2b at height 2, got %s, err %v", hash, err)
	}
}
