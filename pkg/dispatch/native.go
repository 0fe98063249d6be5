package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/ksuid"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

// Native is the contract of an optimized native decoder implementation. It
// must be semantically identical to the reference decoder for every kind
// and mode it claims to support: same records, same field values, same
// summary accounting.
type Native interface {
	Supports(kind format.Kind, mode decode.Mode) bool
	// Probe verifies the implementation is usable for the kind. A non-nil
	// error means unavailable and carries the reason.
	Probe(kind format.Kind) error
	Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
		opts decode.Options, sink decode.Sink) (*decode.Summary, error)
}

// nativeSlurpLimit is the largest file the buffer decoder will load whole.
// Larger files fall back to the reference decoder's chunked path.
const nativeSlurpLimit = 512 << 20

// defaultNative returns the built-in native registry: an optimized
// strict-mode buffer decoder for Garmin RSD. Tolerant-mode acceleration is
// not implemented; the reference recovery decoder serves tolerant sessions.
func defaultNative(table *format.Table) Native {
	return &rsdNative{table: table}
}

// rsdNative decodes Garmin RSD strict sessions from a single in-memory
// buffer with zero-copy payload slices. It is maintained independently of
// the reference decoder and checked against it by differential tests.
type rsdNative struct {
	table *format.Table
}

func (n *rsdNative) Supports(kind format.Kind, mode decode.Mode) bool {
	return kind == format.GarminRSD && mode == decode.Strict
}

// Probe self-tests the buffer decoder against a tiny synthetic log. The
// dispatcher caches the result for the process lifetime.
func (n *rsdNative) Probe(kind format.Kind) error {
	if kind != format.GarminRSD {
		return fmt.Errorf("no native implementation for %s", kind)
	}
	spec := n.table.Lookup(kind)
	if spec == nil {
		return fmt.Errorf("format table has no spec for %s", kind)
	}

	c := codec.NewRecordCodec(spec)
	var vector []byte
	for i := 0; i < 2; i++ {
		b, err := c.Encode(uint16(i+1), uint16(i), []byte{0xDE, 0xAD, byte(i)})
		if err != nil {
			return fmt.Errorf("self-test encode: %w", err)
		}
		vector = append(vector, b...)
	}

	var count int
	_, err := n.decodeBuffer(context.Background(), spec, vector, decode.Options{}, false,
		func(rec *codec.Record) error {
			count++
			return nil
		})
	if err != nil {
		return fmt.Errorf("self-test decode: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("self-test decoded %d records, want 2", count)
	}
	return nil
}

// Decode loads the source into one buffer and decodes it in place.
func (n *rsdNative) Decode(ctx context.Context, kind format.Kind, src io.ReaderAt, size int64,
	opts decode.Options, sink decode.Sink) (*decode.Summary, error) {

	if !n.Supports(kind, opts.Mode) {
		return nil, fmt.Errorf("native path does not support %s in %s mode", kind, opts.Mode)
	}
	spec := n.table.Lookup(kind)
	if spec == nil {
		return nil, decode.ErrUnsupportedFormat
	}
	if size > nativeSlurpLimit {
		return nil, fmt.Errorf("source too large for native buffer decode: %d bytes", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, size), buf); err != nil {
		return nil, fmt.Errorf("native buffer load: %w", err)
	}

	return n.decodeBuffer(ctx, spec, buf, opts, true, sink)
}

// decodeBuffer is the optimized strict decode loop. Payload slices alias
// the shared buffer; sinks that retain payloads past the session must copy.
func (n *rsdNative) decodeBuffer(ctx context.Context, spec *format.Spec, buf []byte,
	opts decode.Options, observe bool, sink decode.Sink) (*decode.Summary, error) {

	c := codec.NewRecordCodec(spec)
	headerSize := spec.HeaderSize()
	size := int64(len(buf))

	sum := &decode.Summary{
		SessionID:     ksuid.New().String(),
		Kind:          spec.Kind,
		Mode:          decode.Strict,
		ExecutionPath: decode.ExecNative,
	}

	// Observed explicitly at each terminal return, never via defer: a
	// panicking native session must not be counted, its reference
	// re-execution will be. Probe self-tests are not observed at all.
	finish := func() {
		if observe {
			decode.ObserveSummary(sum)
		}
	}
	fail := func(kind decode.FailureKind, off int64, err error) (*decode.Summary, error) {
		sum.Status = decode.StatusAborted
		finish()
		return sum, &decode.DecodeError{Kind: kind, Offset: off, Err: err}
	}

	var cursor int64
	var lastProgress int64
	for cursor < size {
		select {
		case <-ctx.Done():
			sum.Status = decode.StatusAborted
			finish()
			return sum, ctx.Err()
		default:
		}
		if opts.MaxRecords > 0 && sum.RecordsEmitted >= opts.MaxRecords {
			break
		}

		rem := size - cursor
		if rem < int64(headerSize) {
			if !allZero(buf[cursor:]) {
				return fail(decode.FailureHeaderMalformed, cursor,
					errors.New("truncated header at end of file"))
			}
			sum.PaddingBytes += rem
			cursor = size
			break
		}

		hdr, err := c.DecodeHeader(buf[cursor:])
		if err != nil {
			if errors.Is(err, codec.ErrBadMarker) && allZero(buf[cursor:]) {
				sum.PaddingBytes += rem
				cursor = size
				break
			}
			return fail(decode.FailureHeaderMalformed, cursor, err)
		}

		recordSize := int64(headerSize) + int64(hdr.PayloadLen)
		if recordSize > rem {
			return fail(decode.FailurePayloadTruncated, cursor,
				fmt.Errorf("declared payload %d exceeds %d remaining bytes", hdr.PayloadLen, rem-int64(headerSize)))
		}

		payload := buf[cursor+int64(headerSize) : cursor+recordSize]
		if err := c.Validate(hdr, payload); err != nil {
			return fail(decode.FailureChecksumMismatch, cursor, err)
		}

		if sink != nil {
			if err := sink(&codec.Record{
				Offset:  cursor,
				Type:    hdr.Type,
				Channel: hdr.Channel,
				CRC32:   hdr.CRC32,
				Payload: payload,
			}); err != nil {
				sum.Status = decode.StatusAborted
				finish()
				return sum, err
			}
		}

		sum.RecordsEmitted++
		sum.BytesDecoded += recordSize
		cursor += recordSize

		if opts.Progress != nil && (sum.RecordsEmitted%256 == 0 || cursor-lastProgress >= 4<<20) {
			lastProgress = cursor
			opts.Progress(decode.Progress{Records: sum.RecordsEmitted, Bytes: cursor})
		}
	}

	sum.Status = decode.StatusComplete
	finish()
	return sum, nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
