package hdrhistogram

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(&buf, 1700000000.123)

	h1, err := New(1, 3600000000, 3)
	require.NoError(t, err)
	require.NoError(t, h1.RecordValue(100))
	require.NoError(t, w.Append(h1, 0, 10, 100))

	h2, err := New(1, 3600000000, 3, WithTag("svc-a"))
	require.NoError(t, err)
	require.NoError(t, h2.RecordValue(200))
	require.NoError(t, h2.RecordValueWithCount(300, 2))
	require.NoError(t, w.Append(h2, 10, 10, 300))

	r := NewLogReader(&buf)
	start, ok := r.StartTime()
	// The reader parses header lines lazily inside Next, so StartTime is not
	// known yet here; it is checked below, after the records are read.
	_ = start
	_ = ok

	rec1, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, rec1)
	require.False(t, rec1.HasTag)
	require.Equal(t, int64(1), rec1.Histogram.GetCountAtValue(100))

	rec2, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, rec2)
	require.True(t, rec2.HasTag)
	require.Equal(t, "svc-a", rec2.Tag)
	require.Equal(t, int64(1), rec2.Histogram.GetCountAtValue(200))
	require.Equal(t, int64(2), rec2.Histogram.GetCountAtValue(300))

	gotStart, gotOK := r.StartTime()
	require.True(t, gotOK)
	require.InDelta(t, 1700000000.123, gotStart, 0.001)

	rec3, err := r.Next()
	require.NoError(t, err)
	require.Nil(t, rec3)
}

func TestLogReaderSkipsMalformedLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewLogWriter(&buf, 1700000000)
	h, err := New(1, 1000, 2)
	require.NoError(t, err)
	require.NoError(t, h.RecordValue(10))
	require.NoError(t, w.Append(h, 0, 1, 10))

	buf.WriteString("this is not a valid record\n")

	h2, err := New(1, 1000, 2)
	require.NoError(t, err)
	require.NoError(t, h2.RecordValue(20))
	require.NoError(t, w.Append(h2, 1, 1, 20))

	r := NewLogReader(&buf)
	rec1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int64(1), rec1.Histogram.GetCountAtValue(10))

	rec2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int64(1), rec2.Histogram.GetCountAtValue(20))

	rec3, err := r.Next()
	require.NoError(t, err)
	require.Nil(t, rec3)
}

func TestLogReaderIgnoresUnknownHeaders(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("#some arbitrary comment\n")
	buf.WriteString("#[StartTime: 1700000000.000 (seconds since epoch), 2023-11-14T22:13:20Z]\n")
	buf.WriteString(columnHeaderLine + "\n")

	r := NewLogReader(&buf)
	rec, err := r.Next()
	require.NoError(t, err)
	require.Nil(t, rec)

	start, ok := r.StartTime()
	require.True(t, ok)
	require.InDelta(t, 1700000000.0, start, 0.001)
}
