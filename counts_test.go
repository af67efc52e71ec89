package hdrhistogram

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountsStoreBasics(t *testing.T) {
	for _, width := range []counterWidth{Width64, Width32, Width16, WidthAtomic} {
		s := newCountsStore(width, 4)
		require.Equal(t, int64(4), s.length())
		require.Equal(t, width, s.width())

		require.NoError(t, s.add(0, 5))
		require.Equal(t, int64(5), s.get(0))
		require.Equal(t, int64(5), s.total())

		require.NoError(t, s.increment(0))
		require.Equal(t, int64(6), s.get(0))

		s.set(1, 10)
		require.Equal(t, int64(10), s.get(1))
		require.Equal(t, int64(16), s.total())

		s.clear()
		require.Equal(t, int64(0), s.get(0))
		require.Equal(t, int64(0), s.total())
	}
}

func TestCountsStoreOverflow(t *testing.T) {
	s16 := newCountsStore(Width16, 1)
	require.NoError(t, s16.add(0, 32767))
	require.Error(t, s16.add(0, 1))

	s32 := newCountsStore(Width32, 1)
	require.NoError(t, s32.add(0, 2147483647))
	require.Error(t, s32.add(0, 1))

	s64 := newCountsStore(Width64, 1)
	require.NoError(t, s64.add(0, 2147483647))
	require.NoError(t, s64.add(0, 2147483647))
}

func TestAtomicCountsStoreConcurrentAdd(t *testing.T) {
	s := newCountsStore(WidthAtomic, 1)
	var wg sync.WaitGroup
	const goroutines = 50
	const perGoroutine = 1000
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = s.increment(0)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(goroutines*perGoroutine), s.get(0))
	require.Equal(t, int64(goroutines*perGoroutine), s.total())
}
