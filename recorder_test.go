package hdrhistogram

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorderSamplePartitionsStreamExactly(t *testing.T) {
	r, err := NewRecorder(1, 1000000, 3)
	require.NoError(t, err)

	const recorders = 2
	const perRecorder = 1000

	var wg sync.WaitGroup
	for i := 0; i < recorders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perRecorder; j++ {
				require.NoError(t, r.RecordValue(42))
			}
		}()
	}
	wg.Wait()

	var sampledTotal int64
	for i := 0; i < 10; i++ {
		interval := r.Sample(int64(i + 1))
		sampledTotal += interval.TotalCount()
	}
	final := r.Sample(11)
	sampledTotal += final.TotalCount()

	require.Equal(t, int64(recorders*perRecorder), sampledTotal)
}

func TestRecorderSampleIsEmptyWithNoActivity(t *testing.T) {
	r, err := NewRecorder(1, 1000, 3)
	require.NoError(t, err)
	interval := r.Sample(1)
	require.Equal(t, int64(0), interval.TotalCount())
}

func TestRecorderSampleDuringConcurrentRecording(t *testing.T) {
	r, err := NewRecorder(1, 1000000, 3)
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
				_ = r.RecordValue(7)
			}
		}
	}()

	var sampledTotal int64
	for i := 0; i < 20; i++ {
		sampledTotal += r.Sample(int64(i)).TotalCount()
	}
	close(stop)
	wg.Wait()
	sampledTotal += r.Sample(21).TotalCount()

	require.GreaterOrEqual(t, sampledTotal, int64(0))
}
