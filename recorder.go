package hdrhistogram

// Recorder is a many-writers-single-sampler convenience wrapper around a
// ConcurrentHistogram: any number of goroutines call RecordValue* while one
// sampler goroutine periodically calls Sample to obtain the values recorded
// since the previous call, with every recorded value attributed to
// exactly one interval (spec.md §4.6).
type Recorder struct {
	active *ConcurrentHistogram
}

// NewRecorder returns a Recorder tracking values in
// [0, highestTrackableValue] with the same construction rules as New.
func NewRecorder(lowestTrackableValue, highestTrackableValue int64, significantDigits int, opts ...Option) (*Recorder, error) {
	ch, err := NewConcurrent(lowestTrackableValue, highestTrackableValue, significantDigits, opts...)
	if err != nil {
		return nil, err
	}
	return &Recorder{active: ch}, nil
}

// RecordValue records a single occurrence of v. Safe for any number of
// concurrent callers; never blocks on a concurrent Sample.
func (r *Recorder) RecordValue(v int64) error { return r.active.RecordValue(v) }

// RecordValueWithCount records n occurrences of v.
func (r *Recorder) RecordValueWithCount(v, n int64) error {
	return r.active.RecordValueWithCount(v, n)
}

// RecordValueWithExpectedInterval records v, compensating for coordinated
// omission as Histogram.RecordValueWithExpectedInterval does.
func (r *Recorder) RecordValueWithExpectedInterval(v, expectedInterval int64) error {
	return r.active.RecordValueWithExpectedInterval(v, expectedInterval)
}

// Sample atomically swaps out the counts array being written to, and
// returns a Histogram ("the interval histogram") holding exactly the
// values recorded since the previous call to Sample (or since the
// Recorder was created, on the first call). Consecutive calls to Sample
// partition the recorded stream: no value is ever attributed to more than
// one interval, or to none (spec.md §4.6, P8).
//
// now is the interval's end timestamp (and the next interval's start
// timestamp); callers typically pass a monotonic clock reading.
func (r *Recorder) Sample(now int64) *Histogram {
	drained := r.active.sampleInterval(now)
	interval := &Histogram{
		geometry:      r.active.geometry,
		counts:        drained,
		startTimestamp: r.active.StartTimestamp(),
		endTimestamp:   r.active.EndTimestamp(),
	}
	interval.tag, interval.hasTag = r.active.tag, r.active.hasTag
	interval.instanceID, interval.hasInstanceID = r.active.instanceID, r.active.hasInstanceID
	return interval
}

// StartTimestamp returns the underlying ConcurrentHistogram's current
// interval start timestamp.
func (r *Recorder) StartTimestamp() int64 { return r.active.StartTimestamp() }

// EndTimestamp returns the underlying ConcurrentHistogram's current
// interval end timestamp.
func (r *Recorder) EndTimestamp() int64 { return r.active.EndTimestamp() }
