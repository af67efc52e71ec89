package hdrhistogram

import (
	"math"
	"sync/atomic"
)

// counterWidth selects the realization of the counts storage a Histogram
// is built on (spec.md §4.2: "one operation surface, four realizations").
type counterWidth int

const (
	// Width64 stores each counter in a signed 64-bit integer. Never
	// overflows in practice.
	Width64 counterWidth = iota
	// Width32 stores each counter in a signed 32-bit integer; add fails
	// with ErrCounterOverflow past math.MaxInt32.
	Width32
	// Width16 stores each counter in a signed 16-bit integer; add fails
	// with ErrCounterOverflow past math.MaxInt16.
	Width16
	// WidthAtomic stores each counter in a 64-bit integer updated with
	// atomic instructions, safe for concurrent add/increment from many
	// goroutines (spec.md §4.2, §5).
	WidthAtomic
)

// countsStore is the capability set every counter-width realization
// implements. Public Histogram operations are defined once in terms of
// this interface (spec.md §9's "Polymorphism over counter width").
type countsStore interface {
	get(i int64) int64
	set(i int64, v int64)
	add(i int64, delta int64) error
	increment(i int64) error
	clear()
	length() int64
	total() int64
	setTotal(v int64)
	addTotal(delta int64)
	width() counterWidth
}

func newCountsStore(width counterWidth, length int64) countsStore {
	switch width {
	case Width32:
		return &store32{counts: make([]int32, length)}
	case Width16:
		return &store16{counts: make([]int16, length)}
	case WidthAtomic:
		return &storeAtomic{counts: make([]int64, length)}
	default:
		return &store64{counts: make([]int64, length)}
	}
}

// store64 is the default, unbounded-in-practice counter storage.
type store64 struct {
	counts     []int64
	totalCount int64
}

func (s *store64) get(i int64) int64 { return s.counts[i] }
func (s *store64) set(i int64, v int64) {
	s.totalCount += v - s.counts[i]
	s.counts[i] = v
}
func (s *store64) add(i int64, delta int64) error {
	s.counts[i] += delta
	s.totalCount += delta
	return nil
}
func (s *store64) increment(i int64) error { return s.add(i, 1) }
func (s *store64) clear() {
	for i := range s.counts {
		s.counts[i] = 0
	}
	s.totalCount = 0
}
func (s *store64) length() int64        { return int64(len(s.counts)) }
func (s *store64) total() int64         { return s.totalCount }
func (s *store64) setTotal(v int64)     { s.totalCount = v }
func (s *store64) addTotal(delta int64) { s.totalCount += delta }
func (s *store64) width() counterWidth  { return Width64 }

// store32 is a fixed-width realization that fails add with
// ErrCounterOverflow when a counter would exceed math.MaxInt32.
type store32 struct {
	counts     []int32
	totalCount int64
}

func (s *store32) get(i int64) int64 { return int64(s.counts[i]) }
func (s *store32) set(i int64, v int64) {
	s.totalCount += v - int64(s.counts[i])
	s.counts[i] = int32(v)
}
func (s *store32) add(i int64, delta int64) error {
	cur := int64(s.counts[i])
	next := cur + delta
	if next > math.MaxInt32 || next < math.MinInt32 {
		return wrapOverflowError(i)
	}
	s.counts[i] = int32(next)
	s.totalCount += delta
	return nil
}
func (s *store32) increment(i int64) error { return s.add(i, 1) }
func (s *store32) clear() {
	for i := range s.counts {
		s.counts[i] = 0
	}
	s.totalCount = 0
}
func (s *store32) length() int64        { return int64(len(s.counts)) }
func (s *store32) total() int64         { return s.totalCount }
func (s *store32) setTotal(v int64)     { s.totalCount = v }
func (s *store32) addTotal(delta int64) { s.totalCount += delta }
func (s *store32) width() counterWidth  { return Width32 }

// store16 is a fixed-width realization that fails add with
// ErrCounterOverflow when a counter would exceed math.MaxInt16.
type store16 struct {
	counts     []int16
	totalCount int64
}

func (s *store16) get(i int64) int64 { return int64(s.counts[i]) }
func (s *store16) set(i int64, v int64) {
	s.totalCount += v - int64(s.counts[i])
	s.counts[i] = int16(v)
}
func (s *store16) add(i int64, delta int64) error {
	cur := int64(s.counts[i])
	next := cur + delta
	if next > math.MaxInt16 || next < math.MinInt16 {
		return wrapOverflowError(i)
	}
	s.counts[i] = int16(next)
	s.totalCount += delta
	return nil
}
func (s *store16) increment(i int64) error { return s.add(i, 1) }
func (s *store16) clear() {
	for i := range s.counts {
		s.counts[i] = 0
	}
	s.totalCount = 0
}
func (s *store16) length() int64        { return int64(len(s.counts)) }
func (s *store16) total() int64         { return s.totalCount }
func (s *store16) setTotal(v int64)     { s.totalCount = v }
func (s *store16) addTotal(delta int64) { s.totalCount += delta }
func (s *store16) width() counterWidth  { return Width16 }

// storeAtomic is lock-free on each counter and on the total: concurrent
// adds to distinct indices never contend, and the total is itself an
// atomic accumulator (spec.md §4.2, §5).
type storeAtomic struct {
	counts     []int64
	totalCount int64
}

func (s *storeAtomic) get(i int64) int64 {
	return atomic.LoadInt64(&s.counts[i])
}
func (s *storeAtomic) set(i int64, v int64) {
	old := atomic.SwapInt64(&s.counts[i], v)
	atomic.AddInt64(&s.totalCount, v-old)
}
func (s *storeAtomic) add(i int64, delta int64) error {
	atomic.AddInt64(&s.counts[i], delta)
	atomic.AddInt64(&s.totalCount, delta)
	return nil
}
func (s *storeAtomic) increment(i int64) error { return s.add(i, 1) }
func (s *storeAtomic) clear() {
	for i := range s.counts {
		atomic.StoreInt64(&s.counts[i], 0)
	}
	atomic.StoreInt64(&s.totalCount, 0)
}
func (s *storeAtomic) length() int64 { return int64(len(s.counts)) }
func (s *storeAtomic) total() int64  { return atomic.LoadInt64(&s.totalCount) }
func (s *storeAtomic) setTotal(v int64) {
	atomic.StoreInt64(&s.totalCount, v)
}
func (s *storeAtomic) addTotal(delta int64) {
	atomic.AddInt64(&s.totalCount, delta)
}
func (s *storeAtomic) width() counterWidth { return WidthAtomic }
