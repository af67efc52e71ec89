package hdrhistogram

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConcurrentHistogramRecordValueIsWaitFree(t *testing.T) {
	ch, err := NewConcurrent(1, 1000000, 3)
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 100000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				require.NoError(t, ch.RecordValue(0))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(goroutines*perGoroutine), ch.TotalCount())
	require.Equal(t, int64(goroutines*perGoroutine), ch.Copy().GetCountAtValue(0))
}

func TestConcurrentHistogramCopyDuringRecording(t *testing.T) {
	ch, err := NewConcurrent(1, 1000000, 3)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = ch.RecordValue(42)
			}
		}
	}()

	for i := 0; i < 100; i++ {
		snap := ch.Copy()
		require.GreaterOrEqual(t, snap.TotalCount(), int64(0))
	}
	close(stop)
	wg.Wait()
}

func TestConcurrentHistogramAddAndSubtract(t *testing.T) {
	ch, err := NewConcurrent(1, 1000000, 3)
	require.NoError(t, err)

	plain, err := New(1, 1000000, 3)
	require.NoError(t, err)
	require.NoError(t, plain.RecordValue(100))
	require.NoError(t, plain.RecordValueWithCount(200, 3))

	require.NoError(t, ch.Add(plain))
	require.Equal(t, int64(4), ch.TotalCount())

	require.NoError(t, ch.Subtract(plain))
	require.Equal(t, int64(0), ch.TotalCount())
}

func TestConcurrentHistogramReset(t *testing.T) {
	ch, err := NewConcurrent(1, 1000000, 3)
	require.NoError(t, err)
	require.NoError(t, ch.RecordValue(10))
	ch.Reset()
	require.Equal(t, int64(0), ch.TotalCount())
}
