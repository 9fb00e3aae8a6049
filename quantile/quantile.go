// Package quantile implements the QuantileCalculator contract of spec
// §4.4: a sliding window of per-batch fee histograms used to compute a
// smoothed quantile ("normalized fee") over the last W batches. It is
// grounded on parallelcoin's FeeEstimator, which maintains a comparable
// bucketed bin/drop-oldest-bucket rolling structure for fee estimation;
// this package generalizes that shape to spec §4.4's explicit batch-id
// windowing and persisted-snapshot durability contract.
package quantile

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"sort"

	"github.com/daglabs/sidetree-anchor-engine/errkind"
	"github.com/daglabs/sidetree-anchor-engine/logger"
	"github.com/daglabs/sidetree-anchor-engine/store"
)

var log = logger.Subsystem(logger.SubsystemTags.QNTL)

// Bucket is the storage namespace for BatchQuantileSnapshots, primary
// keyed by big-endian batch_id per spec §6's persisted layout.
var Bucket = store.MakeBucket([]byte("quantile_snapshots"))

// snapshot is the on-disk representation of one BatchQuantileSnapshot.
// Histogram is this batch's own frequency vector (not the rolling
// merge), so the rolling window can be rebuilt by replaying the last W
// persisted snapshots' histograms (used by RemoveBatchesGE).
type snapshot struct {
	BatchID       uint64
	QuantileValue uint64
	Histogram     map[int64]uint64
	FeesDigest    uint64
}

// Calculator maintains the rolling sliding-window quantile state
// in-memory, backed by store for durable per-batch snapshots.
type Calculator struct {
	db         store.Database
	resolution uint64
	windowSize int
	quantile   float64

	window     []snapshot // oldest first, len <= windowSize
	rolling    map[int64]uint64
	hasAny     bool
	lastBatch  uint64
}

// NewCalculator constructs a Calculator over db. resolution is the
// histogram bucket width in satoshis (fee_approximation); windowSize is
// window_size_in_batches; quantile is the configured q in (0,1).
// Existing snapshots (if db already has up to windowSize of them) are
// loaded to rebuild the rolling state, matching what RemoveBatchesGE does
// after a rollback.
func NewCalculator(db store.Database, resolution uint64, windowSize int, quantile float64) (*Calculator, error) {
	c := &Calculator{
		db:         db,
		resolution: resolution,
		windowSize: windowSize,
		quantile:   quantile,
		rolling:    make(map[int64]uint64),
	}
	if err := c.loadWindow(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Calculator) loadWindow() error {
	cursor, err := c.db.Cursor(Bucket)
	if err != nil {
		return errkind.PersistenceError(err, "opening quantile snapshot cursor")
	}
	defer cursor.Close()

	var all []snapshot
	ok, err := cursor.First()
	if err != nil {
		return errkind.PersistenceError(err, "seeking quantile snapshot cursor")
	}
	for ok {
		snap, err := decodeSnapshot(cursor.Value())
		if err != nil {
			return errkind.Invariant("decoding persisted quantile snapshot: %s", err)
		}
		all = append(all, snap)
		ok, err = cursor.Next()
		if err != nil {
			return errkind.PersistenceError(err, "advancing quantile snapshot cursor")
		}
	}
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].BatchID < all[j].BatchID })
	if len(all) > c.windowSize {
		all = all[len(all)-c.windowSize:]
	}
	c.window = all
	c.rolling = make(map[int64]uint64)
	for _, snap := range c.window {
		mergeInto(c.rolling, snap.Histogram)
	}
	c.hasAny = true
	c.lastBatch = all[len(all)-1].BatchID
	return nil
}

// Add implements QuantileCalculator.add (spec §4.4).
func (c *Calculator) Add(batchID uint64, fees []uint64) error {
	digest := digestFees(fees)

	if c.hasAny {
		if batchID == c.lastBatch {
			existing, err := c.load(batchID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.FeesDigest == digest {
					return nil
				}
				return errkind.Invariant("quantile.Add called for batch %d with different fees than the persisted snapshot", batchID)
			}
		} else if batchID != c.lastBatch+1 {
			return errkind.Invariant("quantile.Add called out of order: batch %d after %d", batchID, c.lastBatch)
		}
	}

	histogram := buildHistogram(fees, c.resolution)

	newWindow := append(append([]snapshot{}, c.window...), snapshot{
		BatchID:    batchID,
		Histogram:  histogram,
		FeesDigest: digest,
	})

	newRolling := make(map[int64]uint64, len(c.rolling))
	for k, v := range c.rolling {
		newRolling[k] = v
	}
	if len(newWindow) > c.windowSize {
		evicted := newWindow[0]
		newWindow = newWindow[1:]
		subtractFrom(newRolling, evicted.Histogram)
	}
	mergeInto(newRolling, histogram)

	quantileValue := computeQuantile(newRolling, c.resolution, c.quantile)
	newWindow[len(newWindow)-1].QuantileValue = quantileValue

	encoded, err := encodeSnapshot(newWindow[len(newWindow)-1])
	if err != nil {
		return errkind.Invariant("encoding quantile snapshot: %s", err)
	}
	key := batchIDKey(batchID)
	if err := c.db.Put(Bucket, key, encoded); err != nil {
		return errkind.PersistenceError(err, "persisting quantile snapshot for batch %d", batchID)
	}

	c.window = newWindow
	c.rolling = newRolling
	c.hasAny = true
	c.lastBatch = batchID
	log.Debugf("quantile: batch %d -> %d (window=%d)", batchID, quantileValue, len(c.window))
	return nil
}

// Quantile implements QuantileCalculator.quantile (spec §4.4).
func (c *Calculator) Quantile(batchID uint64) (uint64, bool, error) {
	snap, err := c.load(batchID)
	if err != nil {
		return 0, false, err
	}
	if snap == nil {
		return 0, false, nil
	}
	return snap.QuantileValue, true, nil
}

// RemoveBatchesGE implements QuantileCalculator.remove_batches_ge
// (spec §4.4), invoked by rollback.
func (c *Calculator) RemoveBatchesGE(batchID uint64) error {
	cursor, err := c.db.Cursor(Bucket)
	if err != nil {
		return errkind.PersistenceError(err, "opening quantile snapshot cursor")
	}
	var toDelete []uint64
	ok, err := cursor.First()
	if err != nil {
		cursor.Close()
		return errkind.PersistenceError(err, "seeking quantile snapshot cursor")
	}
	for ok {
		id := binary.BigEndian.Uint64(cursor.Key())
		if id >= batchID {
			toDelete = append(toDelete, id)
		}
		ok, err = cursor.Next()
		if err != nil {
			cursor.Close()
			return errkind.PersistenceError(err, "advancing quantile snapshot cursor")
		}
	}
	cursor.Close()

	for _, id := range toDelete {
		if err := c.db.Delete(Bucket, batchIDKey(id)); err != nil {
			return errkind.PersistenceError(err, "deleting quantile snapshot for batch %d", id)
		}
	}

	return c.loadWindow()
}

func (c *Calculator) load(batchID uint64) (*snapshot, error) {
	raw, err := c.db.Get(Bucket, batchIDKey(batchID))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, errkind.PersistenceError(err, "loading quantile snapshot for batch %d", batchID)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, errkind.Invariant("decoding persisted quantile snapshot for batch %d: %s", batchID, err)
	}
	return &snap, nil
}

func batchIDKey(batchID uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, batchID)
	return key
}

func bucketOf(fee, resolution uint64) int64 {
	if resolution == 0 {
		resolution = 1
	}
	return int64(fee / resolution)
}

func buildHistogram(fees []uint64, resolution uint64) map[int64]uint64 {
	h := make(map[int64]uint64)
	for _, fee := range fees {
		h[bucketOf(fee, resolution)]++
	}
	return h
}

func mergeInto(dst, src map[int64]uint64) {
	for k, v := range src {
		dst[k] += v
	}
}

func subtractFrom(dst, src map[int64]uint64) {
	for k, v := range src {
		if dst[k] <= v {
			delete(dst, k)
		} else {
			dst[k] -= v
		}
	}
}

// computeQuantile implements spec §4.4's quantile definition: the
// smallest bucket value v such that the cumulative frequency of elements
// <= v is >= ceil(q*N), with the bucket's lower edge standing in for its
// member values (left-continuous CDF over quantized buckets).
func computeQuantile(hist map[int64]uint64, resolution uint64, q float64) uint64 {
	if len(hist) == 0 {
		return 0
	}
	buckets := make([]int64, 0, len(hist))
	var total uint64
	for k, v := range hist {
		buckets = append(buckets, k)
		total += v
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	threshold := ceilQN(total, q)
	var cumulative uint64
	for _, b := range buckets {
		cumulative += hist[b]
		if cumulative >= threshold {
			if resolution == 0 {
				resolution = 1
			}
			return uint64(b) * resolution
		}
	}
	last := buckets[len(buckets)-1]
	if resolution == 0 {
		resolution = 1
	}
	return uint64(last) * resolution
}

func ceilQN(n uint64, q float64) uint64 {
	v := q * float64(n)
	iv := uint64(v)
	if float64(iv) < v {
		iv++
	}
	if iv == 0 {
		iv = 1
	}
	return iv
}

func digestFees(fees []uint64) uint64 {
	sorted := append([]uint64{}, fees...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var h uint64 = 14695981039346656037
	for _, f := range sorted {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], f)
		for _, b := range buf {
			h ^= uint64(b)
			h *= 1099511628211
		}
	}
	return h
}

func encodeSnapshot(s snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(raw []byte) (snapshot, error) {
	var s snapshot
	err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s)
	return s, err
}
