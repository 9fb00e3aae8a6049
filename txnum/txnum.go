// Package txnum implements the composite transaction-number order key used
// to sequence anchor records across blocks: (block_height << 24) | index.
package txnum

import "fmt"

// IndexBits is the number of bits reserved for the in-block index.
const IndexBits = 24

// MaxIndex is the largest index_within_block that fits in IndexBits.
const MaxIndex = (1 << IndexBits) - 1

// Construct builds a transaction number from a block height and an
// in-block index. It rejects an index that does not fit within IndexBits
// (spec §8 invariant 9: -1 and 0x1000000 must be rejected, not silently
// masked into a colliding transaction number).
func Construct(height uint32, index uint32) (uint64, error) {
	if !ValidateIndex(int64(index)) {
		return 0, fmt.Errorf("txnum: index %d exceeds max index_within_block %d", index, MaxIndex)
	}
	return (uint64(height) << IndexBits) | uint64(index), nil
}

// MustConstruct is Construct for callers that already know index is
// in-range (e.g. index 0, or a value validated earlier) and would rather
// panic on a programmer error than thread one more error return.
func MustConstruct(height uint32, index uint32) uint64 {
	txNum, err := Construct(height, index)
	if err != nil {
		panic(err)
	}
	return txNum
}

// BlockOf extracts the block height from a transaction number.
func BlockOf(txNum uint64) uint32 {
	return uint32(txNum >> IndexBits)
}

// IndexOf extracts the in-block index from a transaction number.
func IndexOf(txNum uint64) uint32 {
	return uint32(txNum & MaxIndex)
}

// ValidateIndex reports whether index is representable in IndexBits.
func ValidateIndex(index int64) bool {
	return index >= 0 && index <= MaxIndex
}

// BatchID returns the batch a block belongs to: floor(height / batchSize).
func BatchID(height uint32, batchSizeInBlocks uint32) uint64 {
	return uint64(height) / uint64(batchSizeInBlocks)
}

// IsBatchBoundary reports whether height is the last block of its batch,
// i.e. (height+1) mod batchSize == 0.
func IsBatchBoundary(height uint32, batchSizeInBlocks uint32) bool {
	return (uint64(height)+1)%uint64(batchSizeInBlocks) == 0
}

// BatchBoundaryCeiling rounds height up to the first block of the next
// batch boundary — the start of the batch strictly following height's own
// batch if height is not already a batch-starting block, otherwise height
// itself when it already starts a batch.
func BatchBoundaryCeiling(height uint32, batchSizeInBlocks uint32) uint32 {
	batch := BatchID(height, batchSizeInBlocks)
	batchStart := uint32(batch) * batchSizeInBlocks
	if height == batchStart {
		return height
	}
	return (uint32(batch) + 1) * batchSizeInBlocks
}
