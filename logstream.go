package hdrhistogram

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// columnHeaderLine is the mandatory column header emitted once per log
// stream (spec.md §4.8). A Tag column, when present, always comes first.
const columnHeaderLine = `"StartTimestamp","Interval_Length","Interval_Max","Interval_Compressed_Histogram"`

// LogRecord is one decoded entry from a log stream: a compressed
// histogram plus the interval metadata recorded alongside it.
type LogRecord struct {
	Tag            string
	HasTag         bool
	StartTimestamp float64
	IntervalLength float64
	IntervalMax    float64
	Histogram      *Histogram
}

// LogWriter appends histograms to a text log stream (spec.md §4.8): a
// `#[StartTime: ...]` header followed by one base64-encoded,
// V2-compressed record per call to Append.
type LogWriter struct {
	w             io.Writer
	startTimeSecs float64
	wroteHeader   bool
}

// NewLogWriter returns a LogWriter that stamps the stream with startTime
// (seconds since the Unix epoch, fractional milliseconds allowed).
func NewLogWriter(w io.Writer, startTimeSecs float64) *LogWriter {
	return &LogWriter{w: w, startTimeSecs: startTimeSecs}
}

// WriteHeader writes the `#[StartTime: ...]` comment and the mandatory
// column header line, once per writer. Append calls it automatically
// before the first record; callers may also call it explicitly to emit the
// header before any record is appended.
func (lw *LogWriter) WriteHeader() error {
	if lw.wroteHeader {
		return nil
	}
	if _, err := fmt.Fprintf(lw.w, "#[StartTime: %.3f (seconds since epoch)]\n", lw.startTimeSecs); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(lw.w, columnHeaderLine); err != nil {
		return err
	}
	lw.wroteHeader = true
	return lw.flush()
}

// Append encodes h as a V2-compressed, base64 record and writes it as the
// next line of the stream.
//
// startTimestamp and intervalLength are seconds since the writer's
// StartTime; intervalMax is the histogram's maximum recorded value as a
// float. Records are appended and flushed immediately so a reader racing
// the writer never observes a partial line.
func (lw *LogWriter) Append(h *Histogram, startTimestamp, intervalLength, intervalMax float64) error {
	if err := lw.WriteHeader(); err != nil {
		return err
	}

	compressed, err := EncodeCompressed(h)
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(compressed)

	tag, hasTag := h.Tag()
	var line string
	if hasTag {
		line = fmt.Sprintf("Tag=%s,%s,%s,%s,%s", tag, formatFloat(startTimestamp), formatFloat(intervalLength), formatFloat(intervalMax), encoded)
	} else {
		line = fmt.Sprintf("%s,%s,%s,%s", formatFloat(startTimestamp), formatFloat(intervalLength), formatFloat(intervalMax), encoded)
	}
	if _, err := fmt.Fprintln(lw.w, line); err != nil {
		return err
	}
	return lw.flush()
}

func (lw *LogWriter) flush() error {
	if f, ok := lw.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// LogReader yields a lazy sequence of LogRecords from a text log stream
// (spec.md §4.8), reading it once from front to back; it has no way to
// rewind to the start of the stream. Header comments may appear in any order
// before the column line; unrecognized header lines are ignored. A
// malformed data line is logged and skipped rather than failing the
// entire stream, since one corrupt interval should not hide the rest.
type LogReader struct {
	sc            *bufio.Scanner
	startTimeSecs float64
	hasStartTime  bool
	baseTimeSecs  float64
	hasBaseTime   bool
}

// NewLogReader returns a LogReader over r.
func NewLogReader(r io.Reader) *LogReader {
	return &LogReader{sc: bufio.NewScanner(r)}
}

// StartTime returns the stream's declared start time, if a
// `#[StartTime: ...]` header was seen.
func (lr *LogReader) StartTime() (float64, bool) { return lr.startTimeSecs, lr.hasStartTime }

// BaseTime returns the stream's declared base time, if a
// `#[BaseTime: ...]` header was seen.
func (lr *LogReader) BaseTime() (float64, bool) { return lr.baseTimeSecs, lr.hasBaseTime }

// Next returns the next record in the stream, or nil, nil once the stream
// is exhausted. It returns a non-nil error only for an I/O failure on the
// underlying reader, never for a malformed line.
func (lr *LogReader) Next() (*LogRecord, error) {
	for lr.sc.Scan() {
		line := lr.sc.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			lr.parseHeaderLine(line)
			continue
		}
		if strings.HasPrefix(line, `"`) {
			continue // column header line
		}

		rec, err := parseRecordLine(line)
		if err != nil {
			logger.Warn().Err(err).Str("line", line).Msg("skipping malformed log-stream record")
			continue
		}
		return rec, nil
	}
	return nil, lr.sc.Err()
}

func (lr *LogReader) parseHeaderLine(line string) {
	switch {
	case strings.HasPrefix(line, "#[StartTime:"):
		if v, ok := parseTimeHeaderValue(line); ok {
			lr.startTimeSecs, lr.hasStartTime = v, true
		}
	case strings.HasPrefix(line, "#[BaseTime:"):
		if v, ok := parseTimeHeaderValue(line); ok {
			lr.baseTimeSecs, lr.hasBaseTime = v, true
		}
	}
}

// parseTimeHeaderValue extracts the leading decimal number out of a
// `#[StartTime: <seconds> (...), ...]`-shaped header comment.
func parseTimeHeaderValue(line string) (float64, bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[i+1:])
	end := 0
	for end < len(rest) && (rest[end] == '.' || rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseRecordLine(line string) (*LogRecord, error) {
	rec := &LogRecord{}

	if strings.HasPrefix(line, "Tag=") {
		rest := line[len("Tag="):]
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			return nil, wrapCodecError("malformed tagged log record: %q", line)
		}
		rec.Tag, rec.HasTag = rest[:i], true
		line = rest[i+1:]
	}

	fields := strings.SplitN(line, ",", 4)
	if len(fields) != 4 {
		return nil, wrapCodecError("expected 4 fields, got %d: %q", len(fields), line)
	}

	var err error
	if rec.StartTimestamp, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return nil, wrapCodecError("bad start timestamp %q: %v", fields[0], err)
	}
	if rec.IntervalLength, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return nil, wrapCodecError("bad interval length %q: %v", fields[1], err)
	}
	if rec.IntervalMax, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return nil, wrapCodecError("bad interval max %q: %v", fields[2], err)
	}

	compressed, err := base64.StdEncoding.DecodeString(fields[3])
	if err != nil {
		return nil, wrapCodecError("bad base64 payload: %v", err)
	}
	h, err := DecodeCompressed(compressed)
	if err != nil {
		return nil, err
	}
	if rec.HasTag {
		h.SetTag(rec.Tag)
	}
	rec.Histogram = h
	return rec, nil
}
