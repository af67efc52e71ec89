package hdrhistogram

import "math/bits"

// geometry holds the immutable layout derived from a histogram's
// construction parameters (spec.md §3). It is pure: every method is a
// function of its fields and its argument, with no hidden state, so two
// histograms built with the same (lowest, highest, significantDigits)
// always produce identical countsIndex values for the same input.
type geometry struct {
	lowestTrackableValue        int64
	highestTrackableValue       int64
	significantFigures          int64
	unitMagnitude                int64
	subBucketCountMagnitude      int64
	subBucketHalfCountMagnitude  int64
	subBucketCount               int64
	subBucketHalfCount           int64
	subBucketMask                int64
	bucketIndexOffset            int64
	bucketCount                  int64
	countsArrayLength            int64
}

// newGeometry validates the construction bounds from spec.md §6 and derives
// the geometry fields from spec.md §3's formulas.
func newGeometry(lowest, highest int64, significantDigits int) (geometry, error) {
	if lowest < 1 {
		return geometry{}, wrapArgError("lowestTrackableValue must be >= 1, got %d", lowest)
	}
	if highest < 2*lowest {
		return geometry{}, wrapArgError("highestTrackableValue must be >= 2*lowestTrackableValue, got %d < 2*%d", highest, lowest)
	}
	if significantDigits < 0 || significantDigits > 5 {
		return geometry{}, wrapArgError("numberOfSignificantValueDigits must be in [0,5], got %d", significantDigits)
	}

	unitMagnitude := floorLog2(lowest)

	largestValueWithSingleUnitResolution := 2 * pow10(int64(significantDigits))
	subBucketCountMagnitude := ceilLog2(largestValueWithSingleUnitResolution)

	subBucketHalfCountMagnitude := subBucketCountMagnitude
	if subBucketHalfCountMagnitude < 2 {
		subBucketHalfCountMagnitude = 2
	}
	subBucketHalfCountMagnitude--

	subBucketCount := int64(1) << uint(subBucketHalfCountMagnitude+1)
	subBucketHalfCount := subBucketCount / 2
	subBucketMask := (subBucketCount - 1) << uint(unitMagnitude)

	bucketIndexOffset := 64 - unitMagnitude - (subBucketHalfCountMagnitude + 1)

	trackableValue := (subBucketCount - 1) << uint(unitMagnitude)
	bucketCount := int64(1)
	for trackableValue < highest {
		trackableValue <<= 1
		bucketCount++
	}

	countsArrayLength := (bucketCount + 1) * subBucketHalfCount

	return geometry{
		lowestTrackableValue:        lowest,
		highestTrackableValue:       highest,
		significantFigures:          int64(significantDigits),
		unitMagnitude:               unitMagnitude,
		subBucketCountMagnitude:     subBucketCountMagnitude,
		subBucketHalfCountMagnitude: subBucketHalfCountMagnitude,
		subBucketCount:              subBucketCount,
		subBucketHalfCount:          subBucketHalfCount,
		subBucketMask:               subBucketMask,
		bucketIndexOffset:           bucketIndexOffset,
		bucketCount:                 bucketCount,
		countsArrayLength:           countsArrayLength,
	}, nil
}

func floorLog2(x int64) int64 {
	return int64(bits.Len64(uint64(x))) - 1
}

func ceilLog2(x int64) int64 {
	if x <= 1 {
		return 0
	}
	return int64(bits.Len64(uint64(x - 1)))
}

func pow10(exp int64) int64 {
	n := int64(1)
	for ; exp > 0; exp-- {
		n *= 10
	}
	return n
}

// bucketIndex returns the coarse bucket that v falls into.
func (g geometry) bucketIndex(v int64) int64 {
	// v|subBucketMask is never zero, and its leading-zero count is at most
	// leadingZeros64(subBucketMask) == bucketIndexOffset, so the result is
	// >= 0 for every v >= 0; v == 0 lands in bucket 0 without clamping.
	return g.bucketIndexOffset - leadingZeros64(v|g.subBucketMask)
}

// subBucketIndex returns the fine index within bucketIdx that v falls into.
func (g geometry) subBucketIndex(v int64, bucketIdx int64) int64 {
	return v >> uint(bucketIdx+g.unitMagnitude)
}

// countsIndex maps a (bucketIdx, subBucketIdx) pair to a counts-array slot.
func (g geometry) countsIndex(bucketIdx, subBucketIdx int64) int64 {
	bucketBaseIndex := (bucketIdx + 1) << uint(g.subBucketHalfCountMagnitude)
	offsetInBucket := subBucketIdx - g.subBucketHalfCount
	return bucketBaseIndex + offsetInBucket
}

// countsIndexFor is the composition bucketIndex -> subBucketIndex ->
// countsIndex used on the record path; it returns ErrValueOutOfRange for a
// negative v or for a v whose index falls outside [0, countsArrayLength).
func (g geometry) countsIndexFor(v int64) (int64, error) {
	if v < 0 {
		return 0, wrapValueError(v)
	}
	bucketIdx := g.bucketIndex(v)
	subBucketIdx := g.subBucketIndex(v, bucketIdx)
	idx := g.countsIndex(bucketIdx, subBucketIdx)
	if idx < 0 || idx >= g.countsArrayLength {
		return 0, wrapValueError(v)
	}
	return idx, nil
}

// valueFromIndex is the inverse of countsIndex: it returns the lowest value
// that maps to counts-array slot idx (spec.md §3 "Inverse valueFromIndex").
func (g geometry) valueFromIndex(idx int64) int64 {
	bucketIdx := (idx >> uint(g.subBucketHalfCountMagnitude)) - 1
	subBucketIdx := (idx & (g.subBucketHalfCount - 1)) + g.subBucketHalfCount
	if bucketIdx < 0 {
		subBucketIdx -= g.subBucketHalfCount
		bucketIdx = 0
	}
	return g.valueFromIndices(bucketIdx, subBucketIdx)
}

func (g geometry) valueFromIndices(bucketIdx, subBucketIdx int64) int64 {
	return subBucketIdx << uint(bucketIdx+g.unitMagnitude)
}

// sizeOfEquivalentValueRange returns the width of the bin that v falls
// into (spec.md I2): the bound on relative error is 2*10^-significantFigures
// for any v >= lowestTrackableValue.
//
// bucketIndex and subBucketIndex are both derived from the same
// bucketIndexOffset/subBucketMask pair (see newGeometry), which keeps them
// self-consistent: for every v >= 0, subBucketIndex(v, bucketIndex(v)) falls
// in [0, subBucketCount), so the "subBucketIdx >= subBucketCount" branch
// below can never actually trigger through this path — see
// TestRealBucketSubBucketPairNeverHitsOverflowBranch and DESIGN.md's Open
// Questions for the proof. It is kept anyway, and covered directly by
// TestSizeForIndicesAppliesOverflowAdjustment, because sizeForIndices is a
// general-purpose formula over any (bucketIdx, subBucketIdx) pair, not only
// ones produced by bucketIndex/subBucketIndex together.
func (g geometry) sizeOfEquivalentValueRange(v int64) int64 {
	bucketIdx := g.bucketIndex(v)
	subBucketIdx := g.subBucketIndex(v, bucketIdx)
	return g.sizeForIndices(bucketIdx, subBucketIdx)
}

// sizeForIndices computes the bin width for an arbitrary (bucketIdx,
// subBucketIdx) pair, rolling over into the next bucket's unit width when
// subBucketIdx has reached subBucketCount.
func (g geometry) sizeForIndices(bucketIdx, subBucketIdx int64) int64 {
	adjustedBucket := bucketIdx
	if subBucketIdx >= g.subBucketCount {
		adjustedBucket++
	}
	return int64(1) << uint(g.unitMagnitude+adjustedBucket)
}

func (g geometry) lowestEquivalentValue(v int64) int64 {
	bucketIdx := g.bucketIndex(v)
	subBucketIdx := g.subBucketIndex(v, bucketIdx)
	return g.valueFromIndices(bucketIdx, subBucketIdx)
}

func (g geometry) nextNonEquivalentValue(v int64) int64 {
	return g.lowestEquivalentValue(v) + g.sizeOfEquivalentValueRange(v)
}

func (g geometry) highestEquivalentValue(v int64) int64 {
	return g.nextNonEquivalentValue(v) - 1
}

func (g geometry) medianEquivalentValue(v int64) int64 {
	return g.lowestEquivalentValue(v) + (g.sizeOfEquivalentValueRange(v) >> 1)
}
