package decode

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

// Mode selects the decode policy for a session.
type Mode int

const (
	// Strict aborts the session on the first integrity violation; every
	// emitted record is byte-exact and verified.
	Strict Mode = iota
	// Tolerant resynchronizes past corrupted spans and recovers as many
	// valid records as possible.
	Tolerant
)

// String returns the mode name used in flags, logs and metrics.
func (m Mode) String() string {
	if m == Tolerant {
		return "tolerant"
	}
	return "strict"
}

// ParseMode parses a mode name as used by the CLI and config file.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "strict":
		return Strict, nil
	case "tolerant":
		return Tolerant, nil
	default:
		return Strict, fmt.Errorf("decode: unknown mode %q", s)
	}
}

// Status is the terminal status of a decode session.
type Status int

const (
	// StatusComplete means the whole file decoded cleanly (trailing
	// padding tolerated).
	StatusComplete Status = iota
	// StatusAborted means strict mode hit an integrity violation, or the
	// session was cancelled.
	StatusAborted
	// StatusPartialRecovery means tolerant mode reached EOF with some
	// bytes unrecoverable.
	StatusPartialRecovery
)

// String returns the snake_case status name used in summaries.
func (s Status) String() string {
	switch s {
	case StatusAborted:
		return "aborted"
	case StatusPartialRecovery:
		return "partial_recovery"
	default:
		return "complete"
	}
}

// Execution paths recorded in the session summary by the dispatcher.
const (
	ExecNative    = "native"
	ExecReference = "reference"
)

// Diagnostic describes one corrupted span encountered during decode.
type Diagnostic struct {
	Offset    int64       // where the failure was detected
	Length    int64       // bytes skipped over the corrupted span
	Reason    FailureKind // failure classification
	Recovered bool        // whether decoding resumed after the span
}

// Progress is a periodic snapshot passed to the progress callback.
type Progress struct {
	Records uint64 // records emitted so far
	Bytes   int64  // bytes consumed so far (decoded + skipped)
}

// Sink receives each verified record in offset order. Returning an error
// stops the session; the error is propagated to the caller.
type Sink func(rec *codec.Record) error

// ProgressFunc is invoked at a bounded cadence, not per record.
type ProgressFunc func(p Progress)

// Options tunes a decode session. The zero value plus a Mode is usable;
// unset fields take conservative defaults.
type Options struct {
	Mode Mode

	// BufferSize is the read buffer size. Chunked I/O is a throughput
	// optimization only; the cursor model stays byte-precise.
	BufferSize int

	// MaxScanWindow bounds a single resync scan in tolerant mode.
	MaxScanWindow int

	// MaxConsecutiveFailures bounds back-to-back failed resync candidates
	// before the session gives up on the remaining bytes.
	MaxConsecutiveFailures int

	// MaxRecords stops the session after emitting this many records.
	// Zero means unlimited.
	MaxRecords uint64

	Progress ProgressFunc
	Logger   logrus.FieldLogger
}

// Default tuning values. Scan window and max payload track the 1 MiB
// record bound of the Garmin RSD family.
const (
	DefaultBufferSize             = 1 << 20
	DefaultMaxScanWindow          = 1 << 20
	DefaultMaxConsecutiveFailures = 64

	progressRecordInterval = 256
	progressByteInterval   = 4 << 20
)

func (o *Options) withDefaults() Options {
	out := *o
	if out.BufferSize <= 0 {
		out.BufferSize = DefaultBufferSize
	}
	if out.MaxScanWindow <= 0 {
		out.MaxScanWindow = DefaultMaxScanWindow
	}
	if out.MaxConsecutiveFailures <= 0 {
		out.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}

// Summary is the final account of a decode session. Operators always get a
// precise record of what was unrecoverable (byte ranges and reasons)
// instead of an opaque failure.
type Summary struct {
	SessionID        string
	Kind             format.Kind
	Mode             Mode
	RecordsEmitted   uint64
	BytesDecoded     int64
	BytesSkipped     int64
	PaddingBytes     int64
	CorruptionEvents []Diagnostic
	ExecutionPath    string
	FallbackReason   string
	Status           Status
}

// Session owns the decode state for one file: a monotonically non-decreasing
// cursor, the active mode, and accumulated diagnostics and counters. It is
// created per file-open and must not be shared across goroutines; run
// independent sessions for independent files instead.
type Session struct {
	id    string
	spec  *format.Spec
	codec *codec.RecordCodec
	opts  Options
	log   logrus.FieldLogger

	src  io.ReaderAt
	size int64

	cursor       int64
	reader       *bufio.Reader
	readerOffset int64

	records int64
	decoded int64
	skipped int64
	padding int64
	diags   []Diagnostic

	lastProgressRecords uint64
	lastProgressBytes   int64

	finalized bool
}

// NewSession creates a decode session for one log file. It fails before any
// decoding starts if the kind has no entry in the table.
func NewSession(table *format.Table, kind format.Kind, src io.ReaderAt, size int64, opts Options) (*Session, error) {
	spec := table.Lookup(kind)
	if spec == nil {
		return nil, failure(FailureUnsupportedFormat, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind))
	}

	o := opts.withDefaults()
	s := &Session{
		id:    ksuid.New().String(),
		spec:  spec,
		codec: codec.NewRecordCodec(spec),
		opts:  o,
		src:   src,
		size:  size,
	}
	s.log = o.Logger.WithFields(logrus.Fields{
		"session": s.id,
		"format":  spec.Kind.String(),
		"mode":    o.Mode.String(),
	})
	s.seek(0)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Run decodes the source according to the session's mode, delivering
// verified records to sink in offset order. The summary is returned in
// every case, including abort and cancellation; partially-recovered data
// is never discarded.
func (s *Session) Run(ctx context.Context, sink Sink) (*Summary, error) {
	s.log.WithField("bytes", s.size).Info("decode session started")

	var err error
	if s.opts.Mode == Tolerant {
		err = s.runTolerant(ctx, sink)
	} else {
		err = s.runStrict(ctx, sink)
	}

	sum := s.finalize(err)
	s.log.WithFields(logrus.Fields{
		"status":  sum.Status.String(),
		"records": sum.RecordsEmitted,
		"decoded": sum.BytesDecoded,
		"skipped": sum.BytesSkipped,
	}).Info("decode session finished")
	return sum, err
}

// seek repositions the sequential reader. The buffered reader is recreated
// to clear stale buffered bytes.
func (s *Session) seek(offset int64) {
	section := io.NewSectionReader(s.src, offset, s.size-offset)
	s.reader = bufio.NewReaderSize(section, s.opts.BufferSize)
	s.readerOffset = offset
}

// readAt fills buf starting at the given offset through the buffered
// sequential reader, reseeking only when reads are not contiguous. It never
// moves the session cursor; callers advance the cursor explicitly once a
// whole record is accepted.
func (s *Session) readAt(offset int64, buf []byte) error {
	if s.readerOffset != offset {
		s.seek(offset)
	}
	n, err := io.ReadFull(s.reader, buf)
	if err != nil {
		return err
	}
	s.readerOffset += int64(n)
	return nil
}

// advance moves the cursor forward. The cursor never decreases.
func (s *Session) advance(n int64) {
	s.cursor += n
}

func (s *Session) remaining() int64 {
	return s.size - s.cursor
}

func (s *Session) emit(sink Sink, rec *codec.Record) error {
	if sink != nil {
		if err := sink(rec); err != nil {
			return err
		}
	}
	s.records++
	return nil
}

// maybeProgress invokes the progress callback if enough records or bytes
// have accumulated since the last report.
func (s *Session) maybeProgress() {
	if s.opts.Progress == nil {
		return
	}
	consumed := s.decoded + s.skipped
	if uint64(s.records)-s.lastProgressRecords < progressRecordInterval &&
		consumed-s.lastProgressBytes < progressByteInterval {
		return
	}
	s.lastProgressRecords = uint64(s.records)
	s.lastProgressBytes = consumed
	s.opts.Progress(Progress{Records: uint64(s.records), Bytes: consumed})
}

func (s *Session) recordDiagnostic(d Diagnostic) {
	s.diags = append(s.diags, d)
	s.log.WithFields(logrus.Fields{
		"offset":    d.Offset,
		"length":    d.Length,
		"reason":    d.Reason.String(),
		"recovered": d.Recovered,
	}).Debug("corrupted span")
}

// checkCancelled is called at record boundaries, before each header read.
func (s *Session) checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// zeroTail reports whether every byte from offset to EOF is zero, which is
// how trailing padding is distinguished from corruption.
func (s *Session) zeroTail(offset int64) (bool, error) {
	section := io.NewSectionReader(s.src, offset, s.size-offset)
	buf := make([]byte, 64<<10)
	for {
		n, err := section.Read(buf)
		for _, b := range buf[:n] {
			if b != 0 {
				return false, nil
			}
		}
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
	}
}

// finalize freezes the session into a summary. It runs exactly once; later
// calls return the cached terminal state via Run's return value.
func (s *Session) finalize(runErr error) *Summary {
	if s.finalized {
		panic("decode: session finalized twice")
	}
	s.finalized = true

	status := StatusComplete
	switch {
	case runErr != nil:
		status = StatusAborted
	case s.opts.Mode == Tolerant && s.skipped > 0:
		status = StatusPartialRecovery
	}

	sum := &Summary{
		SessionID:        s.id,
		Kind:             s.spec.Kind,
		Mode:             s.opts.Mode,
		RecordsEmitted:   uint64(s.records),
		BytesDecoded:     s.decoded,
		BytesSkipped:     s.skipped,
		PaddingBytes:     s.padding,
		CorruptionEvents: s.diags,
		ExecutionPath:    ExecReference,
		Status:           status,
	}

	ObserveSummary(sum)
	return sum
}
