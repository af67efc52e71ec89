// Package hdrhistogram provides an implementation of Gil Tene's HDR
// Histogram data structure. The HDR Histogram allows for fast and accurate
// analysis of the extreme ranges of data with non-normal distributions,
// like latency, using fixed memory and a bounded relative error.
package hdrhistogram

import (
	"math"
	"math/bits"
)

// A Histogram is a lossy data structure used to record the distribution of
// non-normally distributed data (like latency) with a high degree of
// accuracy and a bounded degree of precision. It is not safe for concurrent
// use by multiple goroutines without external synchronization; see
// ConcurrentHistogram for a wait-free-on-the-record-path variant.
type Histogram struct {
	geometry
	counts countsStore

	startTimestamp int64
	endTimestamp   int64
	tag            string
	hasTag         bool
	instanceID     uint64
	hasInstanceID  bool
}

// Option configures an optional construction parameter recognized by New
// (spec.md §6).
type Option func(*Histogram)

// WithTag carries an arbitrary string through log-stream persistence. It
// never affects counting.
func WithTag(tag string) Option {
	return func(h *Histogram) {
		h.tag = tag
		h.hasTag = true
	}
}

// WithInstanceID carries an arbitrary identifier in metadata. It never
// affects counting.
func WithInstanceID(id uint64) Option {
	return func(h *Histogram) {
		h.instanceID = id
		h.hasInstanceID = true
	}
}

// WithCounterWidth selects the counts storage realization. The default,
// Width64, never overflows in practice; Width32 and Width16 trade memory
// for a bounded positive range, failing RecordValue* with
// ErrCounterOverflow past it. WidthAtomic is selected automatically by
// NewConcurrent and should not normally be passed here.
func WithCounterWidth(width counterWidth) Option {
	return func(h *Histogram) { h.counts = newCountsStore(width, h.countsArrayLength) }
}

// New returns a new Histogram capable of tracking values in
// [0, highestTrackableValue] with a relative error bounded by
// 2*10^-significantDigits for any recorded value >= lowestTrackableValue
// (spec.md §3, §6). It returns ErrArgumentInvalid if lowest < 1,
// highest < 2*lowest, or significantDigits is outside [0,5].
func New(lowestTrackableValue, highestTrackableValue int64, significantDigits int, opts ...Option) (*Histogram, error) {
	g, err := newGeometry(lowestTrackableValue, highestTrackableValue, significantDigits)
	if err != nil {
		return nil, err
	}

	h := &Histogram{geometry: g}
	for _, opt := range opts {
		opt(h)
	}
	if h.counts == nil {
		h.counts = newCountsStore(Width64, g.countsArrayLength)
	}
	return h, nil
}

// ByteSize returns an estimate of the amount of memory allocated to the
// histogram in bytes. N.B.: this does not account for slice header
// overhead, which is small, constant, and specific to the compiler
// version.
func (h *Histogram) ByteSize() int64 {
	width := int64(8)
	switch h.counts.width() {
	case Width32:
		width = 4
	case Width16:
		width = 2
	}
	return 8*8 + h.counts.length()*width
}

// LowestTrackableValue returns the configured lowest trackable value.
func (h *Histogram) LowestTrackableValue() int64 { return h.lowestTrackableValue }

// HighestTrackableValue returns the configured highest trackable value.
func (h *Histogram) HighestTrackableValue() int64 { return h.highestTrackableValue }

// SignificantFigures returns the configured number of significant decimal
// digits of precision.
func (h *Histogram) SignificantFigures() int64 { return h.significantFigures }

// CountsArrayLength returns the length of the underlying counts array.
func (h *Histogram) CountsArrayLength() int64 { return h.countsArrayLength }

// NormalizingIndexOffset is 0 for non-concurrent histograms; it exists so
// codec.go can share an encode path with ConcurrentHistogram snapshots.
func (h *Histogram) NormalizingIndexOffset() int32 { return 0 }

// Tag returns the optional tag and whether one was set.
func (h *Histogram) Tag() (string, bool) { return h.tag, h.hasTag }

// SetTag sets the optional tag carried through log-stream persistence.
func (h *Histogram) SetTag(tag string) { h.tag, h.hasTag = tag, true }

// InstanceID returns the optional instance identifier and whether one was
// set.
func (h *Histogram) InstanceID() (uint64, bool) { return h.instanceID, h.hasInstanceID }

// SetInstanceID sets the optional instance identifier.
func (h *Histogram) SetInstanceID(id uint64) { h.instanceID, h.hasInstanceID = id, true }

// StartTimestamp returns the recording interval's start, in the caller's
// own timestamp units (spec.md §1 "the core consumes a monotonic 64-bit
// timestamp ... it does not impose a time API").
func (h *Histogram) StartTimestamp() int64 { return h.startTimestamp }

// SetStartTimestamp stamps the recording interval's start.
func (h *Histogram) SetStartTimestamp(ts int64) { h.startTimestamp = ts }

// EndTimestamp returns the recording interval's end.
func (h *Histogram) EndTimestamp() int64 { return h.endTimestamp }

// SetEndTimestamp stamps the recording interval's end.
func (h *Histogram) SetEndTimestamp(ts int64) { h.endTimestamp = ts }

// TotalCount returns the number of values recorded.
func (h *Histogram) TotalCount() int64 { return h.counts.total() }

// LowestEquivalentValue returns the lowest value that counts in the same
// bucket as v.
func (h *Histogram) LowestEquivalentValue(v int64) int64 { return h.lowestEquivalentValue(v) }

// HighestEquivalentValue returns the highest value that counts in the same
// bucket as v.
func (h *Histogram) HighestEquivalentValue(v int64) int64 { return h.highestEquivalentValue(v) }

// NextNonEquivalentValue returns the lowest value that is not equivalent to
// v, i.e. the first value in the next bucket.
func (h *Histogram) NextNonEquivalentValue(v int64) int64 { return h.nextNonEquivalentValue(v) }

// MedianEquivalentValue returns the value in the middle of v's equivalent
// range, used as the representative value when coarsening a distribution
// (spec.md §4.3 "Add").
func (h *Histogram) MedianEquivalentValue(v int64) int64 { return h.medianEquivalentValue(v) }

// SizeOfEquivalentValueRange returns the width of the bin that v falls
// into.
func (h *Histogram) SizeOfEquivalentValueRange(v int64) int64 {
	return h.sizeOfEquivalentValueRange(v)
}

// RecordValue records a single occurrence of v. It returns
// ErrValueOutOfRange if v is negative or exceeds HighestTrackableValue, or
// ErrCounterOverflow if the target counter would exceed its width.
func (h *Histogram) RecordValue(v int64) error {
	return h.RecordValueWithCount(v, 1)
}

// RecordValueWithCount records n occurrences of v.
func (h *Histogram) RecordValueWithCount(v, n int64) error {
	if n < 0 {
		return wrapArgError("count must be >= 0, got %d", n)
	}
	idx, err := h.countsIndexFor(v)
	if err != nil {
		return err
	}
	return h.counts.add(idx, n)
}

// RecordValueWithExpectedInterval records v, then compensates for
// coordinated omission: for every missing = v - k*expectedInterval with
// missing >= expectedInterval and k >= 1, it records one additional unit
// at that missing value (spec.md §4.3).
func (h *Histogram) RecordValueWithExpectedInterval(v, expectedInterval int64) error {
	if err := h.RecordValue(v); err != nil {
		return err
	}
	if expectedInterval <= 0 || v <= expectedInterval {
		return nil
	}
	for missing := v - expectedInterval; missing >= expectedInterval; missing -= expectedInterval {
		if err := h.RecordValue(missing); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears all counts, the total count, and the start/end timestamps.
// Tag and instance ID are left untouched.
func (h *Histogram) Reset() {
	h.counts.clear()
	h.startTimestamp = 0
	h.endTimestamp = 0
}

// Copy returns a deep copy with identical geometry, counters, and
// metadata.
func (h *Histogram) Copy() *Histogram {
	cp := &Histogram{
		geometry:       h.geometry,
		counts:         newCountsStore(h.counts.width(), h.countsArrayLength),
		startTimestamp: h.startTimestamp,
		endTimestamp:   h.endTimestamp,
		tag:            h.tag,
		hasTag:         h.hasTag,
		instanceID:     h.instanceID,
		hasInstanceID:  h.hasInstanceID,
	}
	for i := int64(0); i < h.countsArrayLength; i++ {
		if c := h.counts.get(i); c != 0 {
			cp.counts.set(i, c)
		}
	}
	return cp
}

// CopyCorrectedForCoordinatedOmission returns a new histogram in which
// every recorded value v with count n becomes n records at v plus n
// records at each v - k*expectedInterval >= expectedInterval (spec.md
// §4.3).
func (h *Histogram) CopyCorrectedForCoordinatedOmission(expectedInterval int64) *Histogram {
	cp, _ := New(h.lowestTrackableValue, h.highestTrackableValue, int(h.significantFigures), WithCounterWidth(h.counts.width()))
	cp.tag, cp.hasTag = h.tag, h.hasTag
	cp.instanceID, cp.hasInstanceID = h.instanceID, h.hasInstanceID
	cp.startTimestamp = h.startTimestamp
	cp.endTimestamp = h.endTimestamp

	it := h.RecordedValues()
	for it.Next() {
		v := it.ValueIteratedTo
		n := it.CountAtValueIteratedTo
		if expectedInterval <= 0 || v <= expectedInterval {
			_ = cp.RecordValueWithCount(v, n)
			continue
		}
		for k := int64(0); k < n; k++ {
			_ = cp.RecordValueWithExpectedInterval(v, expectedInterval)
		}
	}
	return cp
}

// Add merges other's recorded values into h. If the geometries match
// exactly, counters are added one-for-one; otherwise each of other's
// non-zero counters is recorded at its median-equivalent value (spec.md
// §4.3). It returns ErrGeometryMismatch if other's highest trackable value
// exceeds h's.
func (h *Histogram) Add(other *Histogram) error {
	if other.highestTrackableValue > h.highestTrackableValue {
		return wrapGeometryError(other.highestTrackableValue, h.highestTrackableValue)
	}
	if h.sameGeometry(other) {
		for i := int64(0); i < h.countsArrayLength; i++ {
			if c := other.counts.get(i); c != 0 {
				if err := h.counts.add(i, c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	it := other.RecordedValues()
	for it.Next() {
		if err := h.RecordValueWithCount(other.medianEquivalentValue(it.ValueIteratedTo), it.CountAtValueIteratedTo); err != nil {
			return err
		}
	}
	return nil
}

// Subtract removes other's recorded values from h. It is the symmetric
// counterpart of Add; if any resulting counter would be negative the call
// fails with ErrUnderflow and h is left unchanged.
func (h *Histogram) Subtract(other *Histogram) error {
	if other.highestTrackableValue > h.highestTrackableValue {
		return wrapGeometryError(other.highestTrackableValue, h.highestTrackableValue)
	}

	if h.sameGeometry(other) {
		for i := int64(0); i < h.countsArrayLength; i++ {
			if h.counts.get(i)-other.counts.get(i) < 0 {
				return wrapUnderflowError(i)
			}
		}
		for i := int64(0); i < h.countsArrayLength; i++ {
			if c := other.counts.get(i); c != 0 {
				_ = h.counts.add(i, -c)
			}
		}
		return nil
	}

	pending := make(map[int64]int64)
	it := other.RecordedValues()
	for it.Next() {
		idx, err := h.countsIndexFor(it.ValueIteratedTo)
		if err != nil {
			return err
		}
		pending[idx] += it.CountAtValueIteratedTo
		if h.counts.get(idx)-pending[idx] < 0 {
			return wrapUnderflowError(idx)
		}
	}
	for idx, n := range pending {
		_ = h.counts.add(idx, -n)
	}
	return nil
}

func (h *Histogram) sameGeometry(other *Histogram) bool {
	return h.lowestTrackableValue == other.lowestTrackableValue &&
		h.highestTrackableValue == other.highestTrackableValue &&
		h.significantFigures == other.significantFigures
}

// Equals reports whether h and other record the same counts at the same
// values, regardless of timestamps, tag, or instance ID.
func (h *Histogram) Equals(other *Histogram) bool {
	if h.TotalCount() != other.TotalCount() {
		return false
	}
	a, b := h.RecordedValues(), other.RecordedValues()
	for {
		an, bn := a.Next(), b.Next()
		if an != bn {
			return false
		}
		if !an {
			return true
		}
		if a.ValueIteratedTo != b.ValueIteratedTo || a.CountAtValueIteratedTo != b.CountAtValueIteratedTo {
			return false
		}
	}
}

// GetCountAtValue returns the count recorded at the bucket containing v.
func (h *Histogram) GetCountAtValue(v int64) int64 {
	idx, err := h.countsIndexFor(v)
	if err != nil {
		return 0
	}
	return h.counts.get(idx)
}

// GetCountBetweenValues returns the sum of counts recorded in
// [lowestEquivalentValue(lo), highestEquivalentValue(hi)].
func (h *Histogram) GetCountBetweenValues(lo, hi int64) int64 {
	var sum int64
	top := h.highestEquivalentValue(hi)
	it := h.RecordedValues()
	for it.Next() {
		if it.ValueIteratedTo >= lo && it.ValueIteratedTo <= top {
			sum += it.CountAtValueIteratedTo
		}
	}
	return sum
}

// GetValueAtPercentile returns the highest equivalent value of the
// smallest-indexed bucket whose cumulative count reaches
// ceil(p/100 * totalCount) (spec.md §4.3's percentile algorithm).
func (h *Histogram) GetValueAtPercentile(p float64) int64 {
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	total := h.TotalCount()
	if total == 0 {
		return 0
	}
	countAtPercentile := int64(math.Ceil((p / 100) * float64(total)))
	if countAtPercentile < 1 {
		countAtPercentile = 1
	}

	var running int64
	it := h.AllValues()
	for it.Next() {
		running += it.CountAtValueIteratedTo
		if running >= countAtPercentile {
			return h.highestEquivalentValue(it.ValueIteratedTo)
		}
	}
	return h.GetMax()
}

// GetMean returns the approximate arithmetic mean of the recorded values.
func (h *Histogram) GetMean() float64 {
	total := h.TotalCount()
	if total == 0 {
		return 0
	}
	var sum int64
	it := h.RecordedValues()
	for it.Next() {
		sum += it.CountAtValueIteratedTo * h.medianEquivalentValue(it.ValueIteratedTo)
	}
	return float64(sum) / float64(total)
}

// GetStdDeviation returns the approximate standard deviation of the
// recorded values.
func (h *Histogram) GetStdDeviation() float64 {
	total := h.TotalCount()
	if total == 0 {
		return 0
	}
	mean := h.GetMean()
	var geometricDevTotal float64
	it := h.RecordedValues()
	for it.Next() {
		dev := float64(h.medianEquivalentValue(it.ValueIteratedTo)) - mean
		geometricDevTotal += dev * dev * float64(it.CountAtValueIteratedTo)
	}
	return math.Sqrt(geometricDevTotal / float64(total))
}

// GetMin returns the approximate minimum recorded value, or 0 if nothing
// has been recorded.
func (h *Histogram) GetMin() int64 {
	it := h.RecordedValues()
	if !it.Next() {
		return 0
	}
	return h.lowestEquivalentValue(it.ValueIteratedTo)
}

// GetMax returns the approximate maximum recorded value, or 0 if nothing
// has been recorded.
func (h *Histogram) GetMax() int64 {
	var max int64
	it := h.RecordedValues()
	for it.Next() {
		max = it.ValueIteratedTo
	}
	if max == 0 {
		return 0
	}
	return h.highestEquivalentValue(max)
}

// HasOverflowed re-sums every counter and reports true if the sum disagrees
// with the tracked total count (for fixed-width counter storage, this
// signals that an add silently saturated before returning ErrCounterOverflow
// could prevent it), or if re-summing the counters would itself wrap a
// 64-bit accumulator (spec.md §4.3's second disjunct). Counters are never
// negative, so the sum only grows; bits.Add64 reports the carry out of the
// accumulator on every step, which is exactly that wraparound.
func (h *Histogram) HasOverflowed() bool {
	var sum uint64
	var carry uint64
	for i := int64(0); i < h.countsArrayLength; i++ {
		var c uint64
		sum, c = bits.Add64(sum, uint64(h.counts.get(i)), 0)
		carry |= c
	}
	if carry != 0 {
		return true
	}
	return int64(sum) != h.TotalCount()
}

// rawCountAt returns the counter at the given counts-array index,
// bypassing value-to-index translation. Used by codec.go and iterator.go.
func (h *Histogram) rawCountAt(idx int64) int64 { return h.counts.get(idx) }

// rawAddCountAt adds to the counter at the given counts-array index
// directly, bypassing value-to-index translation. Used by the codec's
// decode path, which receives an already-aggregated stream of per-index
// counts rather than individual values.
func (h *Histogram) rawAddCountAt(idx, v int64) error { return h.counts.add(idx, v) }
