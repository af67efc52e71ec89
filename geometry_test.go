package hdrhistogram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGeometryRejectsInvalidBounds(t *testing.T) {
	_, err := newGeometry(0, 100, 3)
	require.ErrorIs(t, err, ErrArgumentInvalid)

	_, err = newGeometry(10, 15, 3)
	require.ErrorIs(t, err, ErrArgumentInvalid)

	_, err = newGeometry(1, 100, 6)
	require.ErrorIs(t, err, ErrArgumentInvalid)

	_, err = newGeometry(1, 100, -1)
	require.ErrorIs(t, err, ErrArgumentInvalid)
}

func TestCountsIndexRoundTrip(t *testing.T) {
	g, err := newGeometry(1, 3600000000, 3)
	require.NoError(t, err)

	for _, v := range []int64{0, 1, 2, 100, 999, 1000, 12345, 1000000, 3600000000} {
		idx, err := g.countsIndexFor(v)
		require.NoError(t, err, "value %d", v)
		require.GreaterOrEqual(t, idx, int64(0))
		require.Less(t, idx, g.countsArrayLength)

		lo := g.valueFromIndex(idx)
		require.LessOrEqual(t, lo, v)
		require.Less(t, v, g.nextNonEquivalentValue(lo))
	}
}

func TestCountsIndexForRejectsOutOfRange(t *testing.T) {
	g, err := newGeometry(1, 1000, 3)
	require.NoError(t, err)

	_, err = g.countsIndexFor(-1)
	require.Error(t, err)

	_, err = g.countsIndexFor(100_000_000)
	require.Error(t, err)
}

// TestSizeForIndicesAppliesOverflowAdjustment drives the
// "subBucketIdx >= subBucketCount" branch inside sizeForIndices directly.
// Real (bucketIdx, subBucketIdx) pairs produced by bucketIndex/subBucketIndex
// never reach subBucketCount (see
// TestRealBucketSubBucketPairNeverHitsOverflowBranch and DESIGN.md), but
// sizeForIndices is a general formula over any pair, so it must still widen
// to the next bucket's unit size when handed one at or past the boundary.
func TestSizeForIndicesAppliesOverflowAdjustment(t *testing.T) {
	g, err := newGeometry(1, 3600000000, 3)
	require.NoError(t, err)

	atBoundary := g.sizeForIndices(2, g.subBucketCount)
	pastBoundary := g.sizeForIndices(2, g.subBucketCount+1)
	below := g.sizeForIndices(2, g.subBucketCount-1)

	wantRolledOver := int64(1) << uint(g.unitMagnitude+3)
	wantUnrolled := int64(1) << uint(g.unitMagnitude+2)

	require.Equal(t, wantRolledOver, atBoundary)
	require.Equal(t, wantRolledOver, pastBoundary)
	require.Equal(t, wantUnrolled, below)
}

// TestRealBucketSubBucketPairNeverHitsOverflowBranch sweeps every bucket
// boundary for several geometries and confirms bucketIndex/subBucketIndex
// never actually produce a subBucketIdx >= subBucketCount pair: bucketIndex
// is computed from leadingZeros64(v|subBucketMask), which forces the same
// bit-length floor that subBucketMask itself spans, so subBucketIndex(v,
// bucketIndex(v)) is provably confined to [0, subBucketCount) for every
// v >= 0. This is the first-principles justification (spec.md §9) for why
// sizeOfEquivalentValueRange's overflow branch is unreachable dead code in
// this implementation, kept only for symmetry with sizeForIndices' general
// formula.
func TestRealBucketSubBucketPairNeverHitsOverflowBranch(t *testing.T) {
	geometries := []struct {
		lowest, highest int64
		sigfigs         int
	}{
		{1, 3600000000, 3},
		{1, 1000, 0},
		{1, 1000, 5},
		{1000, 2000000000, 2},
	}

	for _, gc := range geometries {
		g, err := newGeometry(gc.lowest, gc.highest, gc.sigfigs)
		require.NoError(t, err)

		for bucketIdx := int64(0); bucketIdx <= g.bucketCount; bucketIdx++ {
			shift := uint(bucketIdx + g.unitMagnitude)
			// Sample every value around the bucket's span, including its
			// exact low/high boundaries, where an off-by-one would surface.
			base := int64(1) << shift
			for _, v := range []int64{
				0, 1,
				base - 1, base, base + 1,
				(base << 1) - 1,
			} {
				if v < 0 {
					continue
				}
				bi := g.bucketIndex(v)
				si := g.subBucketIndex(v, bi)
				require.Less(t, si, g.subBucketCount, "v=%d bucketIdx=%d subBucketIdx=%d", v, bi, si)
				require.GreaterOrEqual(t, si, int64(0), "v=%d bucketIdx=%d subBucketIdx=%d", v, bi, si)
			}
		}
	}
}

func TestEquivalentValueRangeMonotonicity(t *testing.T) {
	g, err := newGeometry(1, 3600000000, 3)
	require.NoError(t, err)

	for _, v := range []int64{1, 100, 10000, 1000000} {
		lo := g.lowestEquivalentValue(v)
		hi := g.highestEquivalentValue(v)
		require.LessOrEqual(t, lo, v)
		require.LessOrEqual(t, v, hi)
		require.Equal(t, g.nextNonEquivalentValue(v), hi+1)

		med := g.medianEquivalentValue(v)
		require.GreaterOrEqual(t, med, lo)
		require.LessOrEqual(t, med, hi)
	}
}
