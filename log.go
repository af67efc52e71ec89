package hdrhistogram

import "github.com/rs/zerolog"

// logger is used only to report a malformed data line that LogReader skips
// while reading a log stream; unknown or unparsable header lines are
// ignored without logging. It is never consulted on the record hot path. It defaults to a no-op
// logger, matching the convention of a library that never writes to
// stderr unless a caller opts in.
var logger = zerolog.Nop()

// SetLogger replaces the package-level logger used for log-stream
// diagnostics.
func SetLogger(l zerolog.Logger) { logger = l }
