package chain

import (
	"time"

	"github.com/daglabs/sidetree-anchor-engine/errkind"
)

// RetryPolicy controls RetryingClient's exponential backoff, configured
// from the engine's request_timeout_ms/request_max_retries settings
// (spec §5, §6, §7): a timed-out call is retried with a delay of
// baseDelay*2^attempt, up to maxRetries attempts.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// RetryingClient wraps a Client, retrying calls that fail with a
// retryable errkind.Kind (UpstreamTimeout) using exponential backoff, and
// propagating any other failure immediately as fatal (spec §7).
type RetryingClient struct {
	inner  Client
	policy RetryPolicy
	sleep  func(time.Duration)
}

// NewRetryingClient wraps inner with policy's backoff behavior.
func NewRetryingClient(inner Client, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{inner: inner, policy: policy, sleep: time.Sleep}
}

func (r *RetryingClient) call(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errkind.Is(lastErr, errkind.KindUpstreamTimeout) {
			return lastErr
		}
		if attempt == r.policy.MaxRetries {
			break
		}
		delay := r.policy.BaseDelay * (1 << uint(attempt))
		r.sleep(delay)
	}
	return lastErr
}

// TipHeight implements Client, retrying on UpstreamTimeout.
func (r *RetryingClient) TipHeight() (uint32, error) {
	var height uint32
	err := r.call(func() error {
		var innerErr error
		height, innerErr = r.inner.TipHeight()
		return innerErr
	})
	return height, err
}

// BlockHash implements Client, retrying on UpstreamTimeout.
func (r *RetryingClient) BlockHash(height uint32) (string, error) {
	var hash string
	err := r.call(func() error {
		var innerErr error
		hash, innerErr = r.inner.BlockHash(height)
		return innerErr
	})
	return hash, err
}

// HeightForHash implements Client, retrying on UpstreamTimeout.
func (r *RetryingClient) HeightForHash(hash string) (uint32, error) {
	var height uint32
	err := r.call(func() error {
		var innerErr error
		height, innerErr = r.inner.HeightForHash(hash)
		return innerErr
	})
	return height, err
}

// Block implements Client, retrying on UpstreamTimeout.
func (r *RetryingClient) Block(height uint32) (*Block, error) {
	var block *Block
	err := r.call(func() error {
		var innerErr error
		block, innerErr = r.inner.Block(height)
		return innerErr
	})
	return block, err
}

// RawTransaction implements Client, retrying on UpstreamTimeout.
func (r *RetryingClient) RawTransaction(txid string) (*Transaction, error) {
	var tx *Transaction
	err := r.call(func() error {
		var innerErr error
		tx, innerErr = r.inner.RawTransaction(txid)
		return innerErr
	})
	return tx, err
}
