package decode

import (
	"context"
	"errors"
	"fmt"

	"github.com/nautidog/sonarsniffer/pkg/codec"
)

// runStrict decodes sequential records from an assumed well-formed stream
// until EOF. Any malformed header, truncated payload or checksum mismatch
// aborts the whole session at the failing offset; no resynchronization is
// attempted, so partial or garbage data never leaks downstream.
func (s *Session) runStrict(ctx context.Context, sink Sink) error {
	for {
		if err := s.checkCancelled(ctx); err != nil {
			return err
		}
		if s.opts.MaxRecords > 0 && uint64(s.records) >= s.opts.MaxRecords {
			return nil
		}

		rec, derr := s.decodeOne()
		if derr != nil {
			return derr
		}
		if rec == nil {
			// EOF, trailing padding included.
			return nil
		}
		if err := s.emit(sink, rec); err != nil {
			return err
		}
		s.maybeProgress()
	}
}

// decodeOne attempts to decode exactly one record at the cursor. On success
// the cursor advances past the record and decoded bytes are accounted. A
// (nil, nil) return means clean EOF; an all-zero tail is tolerated as
// padding and reported in the summary, not treated as corruption.
func (s *Session) decodeOne() (*codec.Record, *DecodeError) {
	headerSize := int64(s.spec.HeaderSize())
	start := s.cursor

	rem := s.remaining()
	if rem == 0 {
		return nil, nil
	}

	if rem < headerSize {
		if ok, err := s.zeroTail(start); err == nil && ok {
			s.padding += rem
			s.advance(rem)
			return nil, nil
		}
		return nil, failure(FailureHeaderMalformed, start,
			fmt.Errorf("truncated header: %d bytes remain, header needs %d", rem, headerSize))
	}

	hdrBuf := make([]byte, headerSize)
	if err := s.readAt(start, hdrBuf); err != nil {
		return nil, failure(FailureHeaderMalformed, start, err)
	}

	hdr, err := s.codec.DecodeHeader(hdrBuf)
	if err != nil {
		if errors.Is(err, codec.ErrBadMarker) {
			if ok, zerr := s.zeroTail(start); zerr == nil && ok {
				s.padding += rem
				s.advance(rem)
				return nil, nil
			}
		}
		return nil, failure(FailureHeaderMalformed, start, err)
	}

	if int64(hdr.PayloadLen) > rem-headerSize {
		return nil, failure(FailurePayloadTruncated, start,
			fmt.Errorf("declared payload %d exceeds %d remaining bytes", hdr.PayloadLen, rem-headerSize))
	}

	payload := make([]byte, hdr.PayloadLen)
	if err := s.readAt(start+headerSize, payload); err != nil {
		return nil, failure(FailurePayloadTruncated, start, err)
	}

	if err := s.codec.Validate(hdr, payload); err != nil {
		return nil, failure(FailureChecksumMismatch, start, err)
	}

	s.advance(headerSize + int64(hdr.PayloadLen))
	s.decoded += headerSize + int64(hdr.PayloadLen)
	return &codec.Record{
		Offset:  start,
		Type:    hdr.Type,
		Channel: hdr.Channel,
		CRC32:   hdr.CRC32,
		Payload: payload,
	}, nil
}
