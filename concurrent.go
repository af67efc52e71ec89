package hdrhistogram

import (
	"sync/atomic"
	"time"
)

// normalizedCounts pairs a counts storage with the rotation applied to it
// (spec.md §4.5's "normalizing offset"), letting ConcurrentHistogram shift
// the recorded distribution without a memcpy.
type normalizedCounts struct {
	counts                  countsStore
	normalizingIndexOffset  int64
}

// normalize maps a logical counts-array index to its physical slot under a
// normalizing offset, via two conditional adjustments rather than a modulo
// (spec.md §4.5).
func normalize(i, offset, length int64) int64 {
	if offset == 0 {
		return i
	}
	physical := i - offset
	if physical < 0 {
		physical += length
	} else if physical >= length {
		physical -= length
	}
	return physical
}

// ConcurrentHistogram is a Histogram variant built on a writer-reader
// phaser (spec.md §4.5): RecordValue* is wait-free and allocation-free for
// any number of concurrent callers, while a single reader at a time can
// obtain an internally consistent view via Add, Subtract, Copy, Reset, or
// a Recorder's Sample.
type ConcurrentHistogram struct {
	geometry

	phaser *phaser

	active   atomic.Pointer[normalizedCounts]
	inactive atomic.Pointer[normalizedCounts]

	totalCount int64

	startTimestamp int64
	endTimestamp   int64
	tag            string
	hasTag         bool
	instanceID     uint64
	hasInstanceID  bool
}

// NewConcurrent returns a new ConcurrentHistogram with the same
// construction bounds as New (spec.md §6).
func NewConcurrent(lowestTrackableValue, highestTrackableValue int64, significantDigits int, opts ...Option) (*ConcurrentHistogram, error) {
	g, err := newGeometry(lowestTrackableValue, highestTrackableValue, significantDigits)
	if err != nil {
		return nil, err
	}

	// opts may set tag/instanceID on a throwaway Histogram; counter width
	// is always atomic for a concurrent instance regardless of opts.
	cfg := &Histogram{geometry: g}
	for _, opt := range opts {
		opt(cfg)
	}

	ch := &ConcurrentHistogram{
		geometry:      g,
		phaser:        newPhaser(),
		tag:           cfg.tag,
		hasTag:        cfg.hasTag,
		instanceID:    cfg.instanceID,
		hasInstanceID: cfg.hasInstanceID,
	}
	ch.active.Store(&normalizedCounts{counts: newCountsStore(WidthAtomic, g.countsArrayLength)})
	ch.inactive.Store(&normalizedCounts{counts: newCountsStore(WidthAtomic, g.countsArrayLength)})
	return ch, nil
}

// TotalCount returns the number of values recorded.
func (ch *ConcurrentHistogram) TotalCount() int64 { return atomic.LoadInt64(&ch.totalCount) }

// StartTimestamp returns the current interval's start timestamp.
func (ch *ConcurrentHistogram) StartTimestamp() int64 { return atomic.LoadInt64(&ch.startTimestamp) }

// EndTimestamp returns the current interval's end timestamp.
func (ch *ConcurrentHistogram) EndTimestamp() int64 { return atomic.LoadInt64(&ch.endTimestamp) }

// RecordValue records a single occurrence of v. It is wait-free: it never
// blocks on a concurrent reader and performs no allocation or system call
// (spec.md §5).
func (ch *ConcurrentHistogram) RecordValue(v int64) error {
	return ch.RecordValueWithCount(v, 1)
}

// RecordValueWithCount records n occurrences of v.
func (ch *ConcurrentHistogram) RecordValueWithCount(v, n int64) error {
	if n < 0 {
		return wrapArgError("count must be >= 0, got %d", n)
	}
	logicalIdx, err := ch.countsIndexFor(v)
	if err != nil {
		return err
	}

	token := ch.phaser.WriterEnter()
	active := ch.active.Load()
	physicalIdx := normalize(logicalIdx, active.normalizingIndexOffset, active.counts.length())
	_ = active.counts.add(physicalIdx, n)
	atomic.AddInt64(&ch.totalCount, n)
	ch.phaser.WriterExit(token)
	return nil
}

// RecordValueWithExpectedInterval records v, then compensates for
// coordinated omission exactly as Histogram.RecordValueWithExpectedInterval
// does (spec.md §4.3).
func (ch *ConcurrentHistogram) RecordValueWithExpectedInterval(v, expectedInterval int64) error {
	if err := ch.RecordValue(v); err != nil {
		return err
	}
	if expectedInterval <= 0 || v <= expectedInterval {
		return nil
	}
	for missing := v - expectedInterval; missing >= expectedInterval; missing -= expectedInterval {
		if err := ch.RecordValue(missing); err != nil {
			return err
		}
	}
	return nil
}

// snapshotInto is the reader-side routine shared by Add, Subtract, Copy,
// Reset, and ShiftValuesLeft/Right: it locks out other readers, flips the
// phase so every writer in flight at the call has exited, runs fn, then
// unlocks. Writers that start after the flip keep recording into the
// active array while fn runs.
// fn must not call back into any writer or reader method on ch.
func (ch *ConcurrentHistogram) snapshotInto(fn func(active, inactive *normalizedCounts)) {
	ch.phaser.ReaderLock()
	defer ch.phaser.ReaderUnlock()
	ch.phaser.FlipPhase(0)
	fn(ch.active.Load(), ch.inactive.Load())
}

// Copy returns a plain, non-concurrent deep copy of the currently recorded
// distribution.
func (ch *ConcurrentHistogram) Copy() *Histogram {
	cp := &Histogram{geometry: ch.geometry, counts: newCountsStore(Width64, ch.countsArrayLength)}
	cp.tag, cp.hasTag = ch.tag, ch.hasTag
	cp.instanceID, cp.hasInstanceID = ch.instanceID, ch.hasInstanceID
	cp.startTimestamp = atomic.LoadInt64(&ch.startTimestamp)
	cp.endTimestamp = atomic.LoadInt64(&ch.endTimestamp)

	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		for i := int64(0); i < ch.countsArrayLength; i++ {
			phys := normalize(i, active.normalizingIndexOffset, active.counts.length())
			if c := active.counts.get(phys); c != 0 {
				_ = cp.counts.add(i, c)
			}
		}
	})
	return cp
}

// Add merges a (non-concurrent) Histogram's recorded values into ch.
// Requires other.HighestTrackableValue() <= ch's.
func (ch *ConcurrentHistogram) Add(other *Histogram) error {
	if other.highestTrackableValue > ch.highestTrackableValue {
		return wrapGeometryError(other.highestTrackableValue, ch.highestTrackableValue)
	}
	var addErr error
	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		it := other.RecordedValues()
		for it.Next() {
			idx, err := ch.countsIndexFor(it.ValueIteratedTo)
			if err != nil {
				addErr = err
				return
			}
			phys := normalize(idx, active.normalizingIndexOffset, active.counts.length())
			if err := active.counts.add(phys, it.CountAtValueIteratedTo); err != nil {
				addErr = err
				return
			}
			atomic.AddInt64(&ch.totalCount, it.CountAtValueIteratedTo)
		}
	})
	return addErr
}

// Subtract removes a (non-concurrent) Histogram's recorded values from ch.
// Fails with ErrUnderflow, leaving ch unchanged, if any resulting counter
// would go negative.
func (ch *ConcurrentHistogram) Subtract(other *Histogram) error {
	if other.highestTrackableValue > ch.highestTrackableValue {
		return wrapGeometryError(other.highestTrackableValue, ch.highestTrackableValue)
	}
	var subErr error
	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		pending := make(map[int64]int64)
		it := other.RecordedValues()
		for it.Next() {
			idx, err := ch.countsIndexFor(it.ValueIteratedTo)
			if err != nil {
				subErr = err
				return
			}
			phys := normalize(idx, active.normalizingIndexOffset, active.counts.length())
			pending[phys] += it.CountAtValueIteratedTo
			if active.counts.get(phys)-pending[phys] < 0 {
				subErr = wrapUnderflowError(phys)
				return
			}
		}
		for phys, n := range pending {
			_ = active.counts.add(phys, -n)
			atomic.AddInt64(&ch.totalCount, -n)
		}
	})
	return subErr
}

// Reset clears every counter, the total count, and the start/end
// timestamps.
func (ch *ConcurrentHistogram) Reset() {
	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		active.counts.clear()
		inactive.counts.clear()
		atomic.StoreInt64(&ch.totalCount, 0)
		atomic.StoreInt64(&ch.startTimestamp, 0)
		atomic.StoreInt64(&ch.endTimestamp, 0)
	})
}

// ShiftValuesLeft shifts the recorded distribution left by numberOfBinaryOrdersOfMagnitude
// sub-bucket positions by adjusting the normalizing offset, running within
// a reader critical section so it is safe under concurrent recording
// (spec.md §4.5).
func (ch *ConcurrentHistogram) ShiftValuesLeft(numberOfBinaryOrdersOfMagnitude int64) {
	if numberOfBinaryOrdersOfMagnitude == 0 {
		return
	}
	shiftAmount := numberOfBinaryOrdersOfMagnitude * ch.subBucketHalfCount
	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		length := active.counts.length()
		active.normalizingIndexOffset = normalize(active.normalizingIndexOffset-shiftAmount, 0, length*2) % length
	})
}

// ShiftValuesRight shifts the recorded distribution right by
// numberOfBinaryOrdersOfMagnitude sub-bucket positions, symmetric to
// ShiftValuesLeft.
func (ch *ConcurrentHistogram) ShiftValuesRight(numberOfBinaryOrdersOfMagnitude int64) {
	if numberOfBinaryOrdersOfMagnitude == 0 {
		return
	}
	shiftAmount := numberOfBinaryOrdersOfMagnitude * ch.subBucketHalfCount
	ch.snapshotInto(func(active, inactive *normalizedCounts) {
		length := active.counts.length()
		active.normalizingIndexOffset = normalize(active.normalizingIndexOffset+shiftAmount, 0, length*2) % length
	})
}

// sampleInterval is the Recorder-facing swap primitive (spec.md §4.6):
// it zeroes the inactive array, swaps active<->inactive, flips the phase
// to quiesce the just-inactivated array, replaces it in the inactive slot
// with fresh storage so the drained array is handed over rather than
// kept, and re-stamps timestamps. It returns the drained storage so
// Recorder.Sample can install it into the interval histogram it returns.
func (ch *ConcurrentHistogram) sampleInterval(now int64) countsStore {
	ch.phaser.ReaderLock()
	defer ch.phaser.ReaderUnlock()

	oldActive := ch.active.Load()
	oldInactive := ch.inactive.Load()
	oldInactive.counts.clear()
	ch.active.Store(oldInactive)
	ch.inactive.Store(oldActive)

	ch.phaser.FlipPhase(0)

	drained := oldActive.counts
	ch.inactive.Store(&normalizedCounts{
		counts:                 newCountsStore(WidthAtomic, ch.countsArrayLength),
		normalizingIndexOffset: oldActive.normalizingIndexOffset,
	})

	atomic.StoreInt64(&ch.startTimestamp, atomic.LoadInt64(&ch.endTimestamp))
	atomic.StoreInt64(&ch.endTimestamp, now)

	return drained
}

// awaitQuiescence blocks, via the phaser's spin/yield loop, until every
// writer that began before it was called has exited. Exposed for callers
// that need a standalone quiescence barrier without a full snapshot.
func (ch *ConcurrentHistogram) awaitQuiescence(yieldSleep time.Duration) {
	ch.phaser.ReaderLock()
	defer ch.phaser.ReaderUnlock()
	ch.phaser.FlipPhase(yieldSleep)
}
