// Package dispatch selects between the optimized native decoder and the
// reference decoder behind a single interface. The dispatcher is the only
// place that interprets native-path failures; decoder business logic never
// branches on native-vs-reference.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

// Decoder is the execution contract shared by the native and reference
// implementations: one decode session over one seekable byte source,
// records delivered to the sink in offset order, summary returned in every
// case.
type Decoder interface {
	Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
		opts decode.Options, sink decode.Sink) (*decode.Summary, error)
}

// ExecutionMode overrides the dispatcher's path selection.
type ExecutionMode int

const (
	// AllowNative tries the native path first and falls back on failure.
	AllowNative ExecutionMode = iota
	// ForceReference always runs the reference implementation.
	ForceReference
)

// ParseExecutionMode parses the CLI/config spelling of an execution mode.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch s {
	case "allow-native":
		return AllowNative, nil
	case "force-reference":
		return ForceReference, nil
	default:
		return AllowNative, fmt.Errorf("dispatch: unknown execution mode %q", s)
	}
}

// Reference is the reference implementation: a thin wrapper over a
// decode.Session.
type Reference struct {
	table *format.Table
}

// NewReference creates the reference decoder over the given format table.
func NewReference(table *format.Table) *Reference {
	return &Reference{table: table}
}

// Decode runs one reference decode session.
func (r *Reference) Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (*decode.Summary, error) {
	session, err := decode.NewSession(r.table, kind, src, size, opts)
	if err != nil {
		return nil, err
	}
	return session.Run(ctx, sink)
}

// ProbeFunc reports whether a native implementation is usable for the given
// kind; a non-nil error means unavailable and carries the reason.
type ProbeFunc func(kind format.Kind) error

var (
	probeMu      sync.Mutex
	probeResults = map[format.Kind]error{}
)

// cachedProbe runs the native self-test once per kind per process and
// caches the outcome, so repeated failed initializations are not retried.
// Safe under concurrent first access.
func cachedProbe(native Native) ProbeFunc {
	return func(kind format.Kind) error {
		probeMu.Lock()
		defer probeMu.Unlock()
		if err, done := probeResults[kind]; done {
			return err
		}
		err := native.Probe(kind)
		probeResults[kind] = err
		return err
	}
}

// resetProbeCache clears cached probe results. Test hook.
func resetProbeCache() {
	probeMu.Lock()
	defer probeMu.Unlock()
	probeResults = map[format.Kind]error{}
}

var fallbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sonarsniffer_dispatch_fallbacks_total",
		Help: "Total native-path fallbacks to the reference decoder",
	},
	[]string{"format", "reason"},
)

// Config tunes a Dispatcher. Zero value uses the default table, the
// built-in native implementations and AllowNative.
type Config struct {
	Table  *format.Table
	Mode   ExecutionMode
	Native Native     // nil uses the built-in native registry
	Probe  ProbeFunc  // nil uses the process-lifetime cached probe
	Logger logrus.FieldLogger
}

// Dispatcher attempts the optimized native implementation of the active
// decoder contract and transparently re-executes via the reference
// implementation on unavailability or any native-path failure. Which path
// ran, and why a fallback happened, is recorded in the session summary and
// never surfaced as an error.
type Dispatcher struct {
	table  *format.Table
	mode   ExecutionMode
	native Native
	probe  ProbeFunc
	ref    *Reference
	log    logrus.FieldLogger
}

// NewDispatcher creates a dispatcher from the given config.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Table == nil {
		cfg.Table = format.DefaultTable()
	}
	if cfg.Native == nil {
		cfg.Native = defaultNative(cfg.Table)
	}
	if cfg.Probe == nil {
		cfg.Probe = cachedProbe(cfg.Native)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		table:  cfg.Table,
		mode:   cfg.Mode,
		native: cfg.Native,
		probe:  cfg.Probe,
		ref:    NewReference(cfg.Table),
		log:    cfg.Logger,
	}
}

// Decode runs one session, native path first when allowed and available.
// Records from the native path are buffered and only delivered to sink once
// the native session has finished cleanly, so a mid-stream native failure
// never leaks partial output before the reference re-execution.
func (d *Dispatcher) Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (*decode.Summary, error) {

	if d.mode == ForceReference {
		return d.ref.Decode(ctx, kind, src, size, opts, sink)
	}

	if !d.native.Supports(kind, opts.Mode) {
		return d.fallback(ctx, kind, src, size, opts, sink,
			decode.FailureNativeUnavailable.String())
	}
	if err := d.probe(kind); err != nil {
		return d.fallback(ctx, kind, src, size, opts, sink,
			fmt.Sprintf("%s: %v", decode.FailureNativeUnavailable, err))
	}

	var buffered []*codec.Record
	sum, err := d.tryNative(ctx, kind, src, size, opts, func(rec *codec.Record) error {
		buffered = append(buffered, rec)
		return nil
	})
	if nerr, ok := err.(*nativeError); ok || sum == nil {
		reason := "native decoder returned no summary"
		if ok {
			reason = nerr.Error()
		}
		d.log.WithFields(logrus.Fields{
			"format": kind.String(),
			"reason": reason,
		}).Warn("native decode failed, re-executing via reference decoder")
		return d.fallback(ctx, kind, src, size, opts, sink, reason)
	}

	// Native outcome accepted: decode-level aborts (strict-mode integrity
	// violations, cancellation) are legitimate session results, not
	// native-path failures.
	for _, rec := range buffered {
		if serr := sink(rec); serr != nil {
			return sum, serr
		}
	}
	sum.ExecutionPath = decode.ExecNative
	return sum, err
}

// nativeError wraps failures internal to the native path, as opposed to
// legitimate decode outcomes.
type nativeError struct {
	err error
}

func (e *nativeError) Error() string { return e.err.Error() }
func (e *nativeError) Unwrap() error { return e.err }

// tryNative runs the native decoder with panic containment. A panic inside
// the native path becomes a nativeError, triggering fallback.
func (d *Dispatcher) tryNative(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (sum *decode.Summary, err error) {

	defer func() {
		if r := recover(); r != nil {
			sum, err = nil, &nativeError{fmt.Errorf("native decoder panic: %v", r)}
		}
	}()

	sum, err = d.native.Decode(ctx, kind, src, size, opts, sink)
	if err != nil {
		var derr *decode.DecodeError
		if errors.As(err, &derr) {
			return sum, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sum, err
		}
		return nil, &nativeError{err}
	}
	return sum, nil
}

func (d *Dispatcher) fallback(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink, reason string) (*decode.Summary, error) {

	fallbacksTotal.WithLabelValues(kind.String(), reason).Inc()
	sum, err := d.ref.Decode(ctx, kind, src, size, opts, sink)
	if sum != nil {
		sum.ExecutionPath = decode.ExecReference
		sum.FallbackReason = reason
	}
	return sum, err
}
