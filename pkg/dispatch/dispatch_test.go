package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

func rsdLog(t *testing.T, seed int64, n int) ([]byte, [][]byte) {
	t.Helper()
	spec := format.DefaultTable().Lookup(format.GarminRSD)
	require.NotNil(t, spec)
	c := codec.NewRecordCodec(spec)

	rng := rand.New(rand.NewSource(seed))
	var buf bytes.Buffer
	payloads := make([][]byte, n)
	for i := range payloads {
		p := make([]byte, 1+rng.Intn(200))
		rng.Read(p)
		payloads[i] = p

		b, err := c.Encode(uint16(rng.Intn(8)), uint16(i%2), p)
		require.NoError(t, err)
		buf.Write(b)
	}
	return buf.Bytes(), payloads
}

func collect(t *testing.T, d *Dispatcher, data []byte, opts decode.Options) ([]*codec.Record, *decode.Summary, error) {
	t.Helper()
	var recs []*codec.Record
	sum, err := d.Decode(context.Background(), format.GarminRSD,
		bytes.NewReader(data), int64(len(data)), opts, func(rec *codec.Record) error {
			recs = append(recs, rec)
			return nil
		})
	return recs, sum, err
}

func TestDispatcher_NativeMatchesReference(t *testing.T) {
	resetProbeCache()
	data, _ := rsdLog(t, 101, 60)

	nativeD := NewDispatcher(Config{Mode: AllowNative})
	refD := NewDispatcher(Config{Mode: ForceReference})

	nRecs, nSum, err := collect(t, nativeD, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)
	rRecs, rSum, err := collect(t, refD, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)

	assert.Equal(t, decode.ExecNative, nSum.ExecutionPath)
	assert.Equal(t, decode.ExecReference, rSum.ExecutionPath)
	assert.Empty(t, nSum.FallbackReason)

	// Same records, same field values, same accounting.
	require.Equal(t, len(rRecs), len(nRecs))
	for i := range rRecs {
		assert.Equal(t, rRecs[i].Offset, nRecs[i].Offset)
		assert.Equal(t, rRecs[i].Type, nRecs[i].Type)
		assert.Equal(t, rRecs[i].Channel, nRecs[i].Channel)
		assert.Equal(t, rRecs[i].CRC32, nRecs[i].CRC32)
		assert.Equal(t, rRecs[i].Payload, nRecs[i].Payload)
	}
	assert.Equal(t, rSum.RecordsEmitted, nSum.RecordsEmitted)
	assert.Equal(t, rSum.BytesDecoded, nSum.BytesDecoded)
	assert.Equal(t, rSum.Status, nSum.Status)
}

func TestDispatcher_ForceReference(t *testing.T) {
	resetProbeCache()
	data, payloads := rsdLog(t, 7, 10)

	d := NewDispatcher(Config{Mode: ForceReference})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)

	assert.Equal(t, decode.ExecReference, sum.ExecutionPath)
	assert.Empty(t, sum.FallbackReason)
	require.Len(t, recs, len(payloads))
}

func TestDispatcher_FallbackWhenProbeFails(t *testing.T) {
	resetProbeCache()
	data, payloads := rsdLog(t, 13, 8)

	d := NewDispatcher(Config{
		Mode: AllowNative,
		Probe: func(kind format.Kind) error {
			return errors.New("simd extensions missing")
		},
	})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)

	// Unavailability is never an error; the reference result carries the
	// fallback reason.
	assert.Equal(t, decode.ExecReference, sum.ExecutionPath)
	assert.Contains(t, sum.FallbackReason, decode.FailureNativeUnavailable.String())
	assert.Contains(t, sum.FallbackReason, "simd extensions missing")
	require.Len(t, recs, len(payloads))
	assert.Equal(t, decode.StatusComplete, sum.Status)
}

func TestDispatcher_TolerantModeUsesReference(t *testing.T) {
	resetProbeCache()
	data, payloads := rsdLog(t, 17, 6)

	d := NewDispatcher(Config{Mode: AllowNative})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Tolerant})
	require.NoError(t, err)

	assert.Equal(t, decode.ExecReference, sum.ExecutionPath)
	assert.Equal(t, decode.FailureNativeUnavailable.String(), sum.FallbackReason)
	assert.Len(t, recs, len(payloads))
}

// panickingNative claims support and then panics mid-decode, after delivering
// some records to its sink.
type panickingNative struct {
	after int
}

func (p *panickingNative) Supports(kind format.Kind, mode decode.Mode) bool { return true }
func (p *panickingNative) Probe(kind format.Kind) error                     { return nil }

func (p *panickingNative) Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (*decode.Summary, error) {

	spec := format.DefaultTable().Lookup(kind)
	session, err := decode.NewSession(format.DefaultTable(), spec.Kind, src, size, opts)
	if err != nil {
		return nil, err
	}
	var n int
	return session.Run(ctx, func(rec *codec.Record) error {
		n++
		if n > p.after {
			panic("native decoder hit a bad page")
		}
		return sink(rec)
	})
}

func TestDispatcher_PanicTriggersFallbackWithoutDoubleDelivery(t *testing.T) {
	resetProbeCache()
	data, payloads := rsdLog(t, 23, 12)

	d := NewDispatcher(Config{
		Mode:   AllowNative,
		Native: &panickingNative{after: 5},
	})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)

	assert.Equal(t, decode.ExecReference, sum.ExecutionPath)
	assert.Contains(t, sum.FallbackReason, "panic")
	// The caller's sink sees each record exactly once: the native attempt's
	// partial output was buffered and discarded.
	require.Len(t, recs, len(payloads))
	for i := range recs {
		assert.Equal(t, payloads[i], recs[i].Payload)
	}
}

// erroringNative fails with an infrastructure error, not a decode outcome.
type erroringNative struct{}

func (e *erroringNative) Supports(kind format.Kind, mode decode.Mode) bool { return true }
func (e *erroringNative) Probe(kind format.Kind) error                     { return nil }

func (e *erroringNative) Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (*decode.Summary, error) {
	return nil, fmt.Errorf("mmap failed: device busy")
}

func TestDispatcher_InternalNativeErrorTriggersFallback(t *testing.T) {
	resetProbeCache()
	data, payloads := rsdLog(t, 29, 5)

	d := NewDispatcher(Config{
		Mode:   AllowNative,
		Native: &erroringNative{},
	})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
	require.NoError(t, err)

	assert.Equal(t, decode.ExecReference, sum.ExecutionPath)
	assert.Contains(t, sum.FallbackReason, "mmap failed")
	assert.Len(t, recs, len(payloads))
}

func TestDispatcher_NativeStrictAbortIsNotAFallback(t *testing.T) {
	resetProbeCache()
	spec := format.DefaultTable().Lookup(format.GarminRSD)
	require.NotNil(t, spec)
	c := codec.NewRecordCodec(spec)

	good, err := c.Encode(1, 0, []byte("clean record"))
	require.NoError(t, err)
	bad, err := c.Encode(1, 1, []byte("damaged record"))
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0xFF

	data := append(append([]byte(nil), good...), bad...)

	d := NewDispatcher(Config{Mode: AllowNative})
	recs, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
	require.Error(t, err)

	var derr *decode.DecodeError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, decode.FailureChecksumMismatch, derr.Kind)
	assert.Equal(t, int64(len(good)), derr.Offset)

	// A strict-mode integrity abort is a legitimate session outcome: the
	// native result stands, records before the failure are delivered.
	assert.Equal(t, decode.ExecNative, sum.ExecutionPath)
	assert.Empty(t, sum.FallbackReason)
	assert.Equal(t, decode.StatusAborted, sum.Status)
	require.Len(t, recs, 1)
	assert.Equal(t, []byte("clean record"), recs[0].Payload)
}

func TestDispatcher_ProbeRunsOncePerKind(t *testing.T) {
	resetProbeCache()
	data, _ := rsdLog(t, 31, 3)

	var calls int
	native := defaultNative(format.DefaultTable())
	probe := cachedProbe(probeCounter{native, &calls})

	d := NewDispatcher(Config{Mode: AllowNative, Probe: probe})
	for i := 0; i < 3; i++ {
		_, sum, err := collect(t, d, data, decode.Options{Mode: decode.Strict})
		require.NoError(t, err)
		assert.Equal(t, decode.ExecNative, sum.ExecutionPath)
	}
	assert.Equal(t, 1, calls)
}

type probeCounter struct {
	Native
	calls *int
}

func (p probeCounter) Probe(kind format.Kind) error {
	*p.calls++
	return p.Native.Probe(kind)
}

func TestParseExecutionMode(t *testing.T) {
	m, err := ParseExecutionMode("allow-native")
	require.NoError(t, err)
	assert.Equal(t, AllowNative, m)

	m, err = ParseExecutionMode("force-reference")
	require.NoError(t, err)
	assert.Equal(t, ForceReference, m)

	_, err = ParseExecutionMode("native-only")
	assert.Error(t, err)
}
