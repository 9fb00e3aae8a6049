// Package sync implements the SyncEngine state machine of spec §4.6: the
// single-threaded cooperative loop that advances the transaction log and
// quantile calculator from the upstream chain, detects reorganizations,
// and rolls back to a surviving height. Its poll loop is grounded on this
// project's polymarket-indexer reference's Syncer, generalized from that
// reference's dual backfill/realtime mode split (absent from this
// engine's single-mode state machine) down to one tick loop, per this
// project's own resolved design decision for spec §4.6.
package sync

import (
	"context"
	"time"

	"github.com/daglabs/sidetree-anchor-engine/anchor"
	"github.com/daglabs/sidetree-anchor-engine/chain"
	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/logger"
	"github.com/daglabs/sidetree-anchor-engine/quantile"
	"github.com/daglabs/sidetree-anchor-engine/sampler"
	"github.com/daglabs/sidetree-anchor-engine/txlog"
	"github.com/daglabs/sidetree-anchor-engine/txnum"
)

var log = logger.Subsystem(logger.SubsystemTags.SYNC)

// State is one of the SyncEngine's states (spec §4.6).
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateReverting
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSyncing:
		return "Syncing"
	case StateReverting:
		return "Reverting"
	case StateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// SeenBlock is the engine's last_seen_block: the tip height/hash the log
// and quantile state are known consistent with.
type SeenBlock struct {
	Height uint32
	Hash   string
}

// Config bundles the constants a tick needs from spec §6's configuration.
type Config struct {
	AnchorPrefix         []byte
	GenesisBlock         uint32
	MaxTransactionInputs uint32
	BatchSizeInBlocks    uint32
	SampleSize           int
}

// Engine is the SyncEngine (spec §4.6).
type Engine struct {
	chainClient chain.Client
	log         *txlog.Log
	quantile    *quantile.Calculator
	sampler     *sampler.Sampler
	cfg         Config

	state    State
	lastSeen *SeenBlock
}

// New constructs an Engine. lastSeen may be nil to resume from genesis.
func New(chainClient chain.Client, txLog *txlog.Log, quantileCalc *quantile.Calculator, cfg Config, lastSeen *SeenBlock) *Engine {
	return &Engine{
		chainClient: chainClient,
		log:         txLog,
		quantile:    quantileCalc,
		sampler:     sampler.New(cfg.SampleSize),
		cfg:         cfg,
		state:       StateIdle,
		lastSeen:    lastSeen,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return e.state
}

// LastSeen returns the engine's last_seen_block, or nil if never set.
func (e *Engine) LastSeen() *SeenBlock {
	return e.lastSeen
}

// Tick runs one periodic tick (spec §4.6).
func (e *Engine) Tick(ctx context.Context) error {
	if e.state == StateHalted {
		return errkind.Invariant("sync: Tick called while engine is Halted")
	}

	if e.lastSeen == nil {
		to, err := e.chainClient.TipHeight()
		if err != nil {
			return err
		}
		return e.syncRange(ctx, e.cfg.GenesisBlock, to)
	}

	currentHash, err := e.chainClient.BlockHash(e.lastSeen.Height)
	if err != nil {
		return err
	}
	if currentHash != e.lastSeen.Hash {
		e.state = StateReverting
		if err := e.Revert(ctx); err != nil {
			e.state = StateHalted
			return err
		}
		e.state = StateIdle
		// Resume forward sync from the surviving block (or genesis) in
		// the same tick.
		return e.Tick(ctx)
	}

	to, err := e.chainClient.TipHeight()
	if err != nil {
		return err
	}
	if to <= e.lastSeen.Height {
		e.state = StateIdle
		return nil
	}
	return e.syncRange(ctx, e.lastSeen.Height+1, to)
}

func (e *Engine) syncRange(ctx context.Context, from, to uint32) error {
	e.state = StateSyncing
	for h := from; h <= to; h++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.ProcessBlock(h); err != nil {
			return err
		}
		hash, err := e.chainClient.BlockHash(h)
		if err != nil {
			return err
		}
		e.lastSeen = &SeenBlock{Height: h, Hash: hash}
	}
	e.state = StateIdle
	return nil
}

// ProcessBlock implements process_block(h) (spec §4.6).
func (e *Engine) ProcessBlock(height uint32) error {
	block, err := e.chainClient.Block(height)
	if err != nil {
		return err
	}
	e.sampler.Reset([]byte(block.Hash))

	records, sampleTxIDs, err := anchor.Extract(block, e.cfg.AnchorPrefix, e.cfg.MaxTransactionInputs)
	if err != nil {
		return err
	}
	for _, rec := range records {
		fee, err := e.computeFee(rec.TxID)
		if err != nil {
			return err
		}
		rec.FeePaid = fee
		if err := e.log.Append(rec); err != nil {
			return err
		}
	}

	for _, txid := range sampleTxIDs {
		e.sampler.Observe(txid)
	}

	if txnum.IsBatchBoundary(height, e.cfg.BatchSizeInBlocks) {
		sample := e.sampler.Sample()
		fees := make([]uint64, 0, len(sample))
		for _, txid := range sample {
			fee, err := e.computeFee(txid)
			if err != nil {
				return err
			}
			fees = append(fees, fee)
		}
		batchID := txnum.BatchID(height, e.cfg.BatchSizeInBlocks)
		if err := e.quantile.Add(batchID, fees); err != nil {
			return err
		}
		e.sampler.Clear()
	}

	return nil
}

// computeFee implements §4.7's fee computation: sum of input previous
// output values minus sum of output values.
func (e *Engine) computeFee(txid string) (uint64, error) {
	tx, err := e.chainClient.RawTransaction(txid)
	if err != nil {
		return 0, err
	}
	var inputTotal, outputTotal int64
	for _, in := range tx.Inputs {
		prev, err := e.chainClient.RawTransaction(in.PrevTxID)
		if err != nil {
			return 0, err
		}
		if int(in.PrevVout) >= len(prev.Outputs) {
			return 0, errkind.UpstreamMalformed(nil, "prevout index %d out of range for tx %s", in.PrevVout, in.PrevTxID)
		}
		inputTotal += prev.Outputs[in.PrevVout].ValueSatoshis
	}
	for _, out := range tx.Outputs {
		outputTotal += out.ValueSatoshis
	}
	fee := inputTotal - outputTotal
	if fee < 0 {
		return 0, errkind.Invariant("negative fee computed for tx %s", txid)
	}
	return uint64(fee), nil
}

// Revert implements the rollback procedure (spec §4.6).
func (e *Engine) Revert(ctx context.Context) error {
	for {
		count, err := e.log.Count()
		if err != nil {
			return err
		}
		if count == 0 {
			e.lastSeen = nil
			return nil
		}

		probes, err := e.log.ExponentiallySpaced()
		if err != nil {
			return err
		}

		var survivor *anchor.Record
		var oldest anchor.Record
		for i, probe := range probes {
			hash, err := e.chainClient.BlockHash(probe.BlockHeight)
			if err == nil && hash == probe.BlockHash {
				p := probe
				survivor = &p
				break
			}
			if i == len(probes)-1 {
				oldest = probe
			}
		}

		if survivor != nil {
			revertToBlock := txnum.BatchBoundaryCeiling(survivor.BlockHeight+1, e.cfg.BatchSizeInBlocks)
			revertToTxNumStart, err := txnum.Construct(revertToBlock, 0)
			if err != nil {
				return errkind.Invariant("sync: revert_to_block %d produced an invalid transaction number: %s", revertToBlock, err)
			}
			revertToTxNum := revertToTxNumStart - 1
			if err := e.log.RemoveLaterThan(revertToTxNum); err != nil {
				return err
			}
			e.sampler.Clear()
			if err := e.quantile.RemoveBatchesGE(txnum.BatchID(revertToBlock, e.cfg.BatchSizeInBlocks)); err != nil {
				return err
			}
			e.lastSeen = &SeenBlock{Height: survivor.BlockHeight, Hash: survivor.BlockHash}
			log.Infof("sync: reverted to surviving block %d", survivor.BlockHeight)
			return nil
		}

		oldestBoundaryTxNum, err := txnum.Construct(oldest.BlockHeight, 0)
		if err != nil {
			return errkind.Invariant("sync: oldest probe height %d produced an invalid transaction number: %s", oldest.BlockHeight, err)
		}
		if err := e.log.RemoveLaterThan(oldestBoundaryTxNum); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Run polls Tick every period until ctx is canceled, logging and
// continuing past retryable errors (spec §7's propagation policy: the
// tick aborts, last_seen_block does not advance, and the next tick
// retries).
func (e *Engine) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				log.Errorf("sync: tick failed: %s", err)
				if e.state == StateHalted {
					return
				}
			}
		}
	}
}
