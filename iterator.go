package hdrhistogram

import "math"

// Iterator visits a Histogram's recorded distribution and emits, per call
// to Next, the fields named in spec.md §4.9.
type Iterator struct {
	ValueIteratedTo           int64
	ValueIteratedFrom         int64
	CountAtValueIteratedTo    int64
	CountAddedInThisStep      int64
	TotalCountToThisValue     int64
	TotalValueToThisValue     int64
	Percentile                float64
	PercentileLevelIteratedTo float64

	h                      *Histogram
	bucketIdx, subBucketIdx int64
	countAtIdx              int64
	countToIdx              int64
	valueFromIdx            int64
	totalValueToIdx         int64
	prevValueIteratedTo     int64
}

func newBaseIterator(h *Histogram) Iterator {
	return Iterator{h: h, subBucketIdx: -1}
}

// advance walks to the next non-empty-or-not counts-array slot, returning
// false once every bucket has been visited or the running count has
// reached the histogram's total. This mirrors the teacher's flat
// bucket/sub-bucket walk (spec.md §3's counts-array layout).
func (it *Iterator) advance() bool {
	if it.countToIdx >= it.h.TotalCount() {
		return false
	}
	it.subBucketIdx++
	if it.subBucketIdx >= it.h.subBucketCount {
		it.subBucketIdx = it.h.subBucketHalfCount
		it.bucketIdx++
	}
	if it.bucketIdx >= it.h.bucketCount {
		return false
	}
	idx := it.h.countsIndex(it.bucketIdx, it.subBucketIdx)
	it.countAtIdx = it.h.rawCountAt(idx)
	it.countToIdx += it.countAtIdx
	it.valueFromIdx = it.h.valueFromIndices(it.bucketIdx, it.subBucketIdx)
	it.totalValueToIdx += it.countAtIdx * it.h.medianEquivalentValue(it.valueFromIdx)
	return true
}

func (it *Iterator) populateAt(value, countAtThisStep int64) {
	it.ValueIteratedFrom = it.prevValueIteratedTo
	it.ValueIteratedTo = it.h.highestEquivalentValue(value)
	it.prevValueIteratedTo = it.ValueIteratedTo
	it.CountAtValueIteratedTo = it.countAtIdx
	it.CountAddedInThisStep = countAtThisStep
	it.TotalCountToThisValue = it.countToIdx
	it.TotalValueToThisValue = it.totalValueToIdx
	total := it.h.TotalCount()
	if total > 0 {
		it.Percentile = 100 * float64(it.countToIdx) / float64(total)
	}
	it.PercentileLevelIteratedTo = it.Percentile
}

// AllValuesIterator visits every counts-array slot in index order,
// including empty ones.
type AllValuesIterator struct{ Iterator }

// AllValues returns an iterator over every bucket, empty or not.
func (h *Histogram) AllValues() *AllValuesIterator {
	return &AllValuesIterator{newBaseIterator(h)}
}

// Next advances the iterator. It returns false once every bucket up to
// BucketCount has been visited.
func (it *AllValuesIterator) Next() bool {
	it.subBucketIdx++
	if it.subBucketIdx >= it.h.subBucketCount {
		it.subBucketIdx = it.h.subBucketHalfCount
		it.bucketIdx++
	}
	if it.bucketIdx >= it.h.bucketCount {
		return false
	}
	idx := it.h.countsIndex(it.bucketIdx, it.subBucketIdx)
	it.countAtIdx = it.h.rawCountAt(idx)
	it.countToIdx += it.countAtIdx
	it.valueFromIdx = it.h.valueFromIndices(it.bucketIdx, it.subBucketIdx)
	it.totalValueToIdx += it.countAtIdx * it.h.medianEquivalentValue(it.valueFromIdx)
	it.populateAt(it.valueFromIdx, it.countAtIdx)
	return true
}

// RecordedValuesIterator visits only non-empty counts-array slots.
type RecordedValuesIterator struct{ Iterator }

// RecordedValues returns an iterator over every bucket with a non-zero
// count.
func (h *Histogram) RecordedValues() *RecordedValuesIterator {
	return &RecordedValuesIterator{newBaseIterator(h)}
}

// Next advances to the next non-zero bucket, returning false once
// exhausted.
func (it *RecordedValuesIterator) Next() bool {
	for it.advance() {
		if it.countAtIdx != 0 {
			it.populateAt(it.valueFromIdx, it.countAtIdx)
			return true
		}
	}
	return false
}

// LinearBucketIterator emits one entry at every multiple of a fixed step,
// covering the full recorded range (spec.md §4.9). A slot whose value
// falls past the current reporting threshold is held over (not consumed)
// until the threshold catches up to it, so every recorded count is
// attributed to exactly one reporting window.
type LinearBucketIterator struct {
	Iterator
	valueUnitsPerBucket     int64
	nextValueReportingLevel int64
	exhausted               bool
	done                    bool
}

// LinearBucket returns an iterator that reports cumulative counts at every
// multiple of valueUnitsPerBucket.
func (h *Histogram) LinearBucket(valueUnitsPerBucket int64) *LinearBucketIterator {
	return &LinearBucketIterator{
		Iterator:                newBaseIterator(h),
		valueUnitsPerBucket:     valueUnitsPerBucket,
		nextValueReportingLevel: valueUnitsPerBucket,
	}
}

// Next advances to the next linear step, returning false once every
// recorded value has been attributed to a reporting window.
func (it *LinearBucketIterator) Next() bool {
	if it.done {
		return false
	}
	if it.subBucketIdx == -1 {
		if !it.advance() {
			it.done = true
			return false
		}
	}

	countAddedThisStep := int64(0)
	for !it.exhausted && it.valueFromIdx < it.h.lowestEquivalentValue(it.nextValueReportingLevel) {
		countAddedThisStep += it.countAtIdx
		if !it.advance() {
			it.exhausted = true
			break
		}
	}
	if it.exhausted {
		it.done = true
	}

	it.populateAt(it.nextValueReportingLevel, countAddedThisStep)
	it.nextValueReportingLevel += it.valueUnitsPerBucket
	return true
}

// LogarithmicBucketIterator emits one entry per exponentially growing
// step: firstBucketWidth, firstBucketWidth*exponent,
// firstBucketWidth*exponent^2, ... (spec.md §4.9). Same held-over-slot
// semantics as LinearBucketIterator.
type LogarithmicBucketIterator struct {
	Iterator
	nextValueReportingLevel float64
	logExponent             float64
	exhausted               bool
	done                    bool
}

// LogarithmicBucket returns an iterator that reports cumulative counts at
// value = firstBucketWidth * logExponent^k for k = 0, 1, 2, ....
func (h *Histogram) LogarithmicBucket(firstBucketWidth float64, logExponent float64) *LogarithmicBucketIterator {
	return &LogarithmicBucketIterator{
		Iterator:                newBaseIterator(h),
		nextValueReportingLevel: firstBucketWidth,
		logExponent:             logExponent,
	}
}

// Next advances to the next logarithmic step, returning false once every
// recorded value has been attributed to a reporting window.
func (it *LogarithmicBucketIterator) Next() bool {
	if it.done {
		return false
	}
	if it.subBucketIdx == -1 {
		if !it.advance() {
			it.done = true
			return false
		}
	}

	countAddedThisStep := int64(0)
	for !it.exhausted && it.valueFromIdx < it.h.lowestEquivalentValue(int64(it.nextValueReportingLevel)) {
		countAddedThisStep += it.countAtIdx
		if !it.advance() {
			it.exhausted = true
			break
		}
	}
	if it.exhausted {
		it.done = true
	}

	it.populateAt(int64(it.nextValueReportingLevel), countAddedThisStep)
	it.nextValueReportingLevel *= it.logExponent
	return true
}

// PercentileIterator emits one entry per percentile tick, with ticks
// spaced so that ticksPerHalfDistance ticks cover each halving of the
// remaining distance to the 100th percentile (spec.md §4.9).
type PercentileIterator struct {
	Iterator
	seenLastValue          bool
	ticksPerHalfDistance   int32
	percentileToIterateTo  float64
}

// Percentile returns an iterator over percentile ticks, geometrically
// denser as it approaches the 100th percentile.
func (h *Histogram) Percentile(ticksPerHalfDistance int32) *PercentileIterator {
	return &PercentileIterator{
		Iterator:             newBaseIterator(h),
		ticksPerHalfDistance: ticksPerHalfDistance,
	}
}

// Next advances to the next percentile tick, returning false after the
// 100th percentile has been emitted.
func (it *PercentileIterator) Next() bool {
	total := it.h.TotalCount()
	if total == 0 {
		return false
	}
	if it.countToIdx >= total {
		if it.seenLastValue {
			return false
		}
		it.seenLastValue = true
		it.Percentile = 100
		it.PercentileLevelIteratedTo = 100
		it.ValueIteratedTo = it.h.GetMax()
		it.TotalCountToThisValue = it.countToIdx
		return true
	}

	if it.subBucketIdx == -1 && !it.advance() {
		return false
	}

	for {
		currentPercentile := 100 * float64(it.countToIdx) / float64(total)
		if it.countAtIdx != 0 && it.percentileToIterateTo <= currentPercentile {
			it.populateAt(it.valueFromIdx, it.countAtIdx)
			it.PercentileLevelIteratedTo = it.percentileToIterateTo
			it.Percentile = it.percentileToIterateTo

			// next percentile: p' = 100 - 100/2^ceil(log2(2*ticksPerHalfDistance/(100-p)))
			halfDistances := math.Ceil(math.Log2(2 * float64(it.ticksPerHalfDistance) / (100 - it.percentileToIterateTo)))
			if math.IsInf(halfDistances, 0) || math.IsNaN(halfDistances) {
				it.percentileToIterateTo = 100
			} else {
				it.percentileToIterateTo = 100 - 100/math.Pow(2, halfDistances)
			}
			return true
		}
		if !it.advance() {
			return false
		}
	}
}
