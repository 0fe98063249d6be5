package decode

import (
	"errors"
	"fmt"
)

// FailureKind classifies a decode failure. The same taxonomy is used for
// fatal errors in strict mode and for recoverable diagnostics in tolerant
// mode.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureHeaderMalformed
	FailurePayloadTruncated
	FailureChecksumMismatch
	FailureSyncNotFound
	FailureUnsupportedFormat
	FailureNativeUnavailable
)

// String returns the snake_case name used in summaries, logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case FailureHeaderMalformed:
		return "header_malformed"
	case FailurePayloadTruncated:
		return "payload_truncated"
	case FailureChecksumMismatch:
		return "checksum_mismatch"
	case FailureSyncNotFound:
		return "sync_not_found"
	case FailureUnsupportedFormat:
		return "unsupported_format"
	case FailureNativeUnavailable:
		return "native_decoder_unavailable"
	default:
		return "unknown"
	}
}

// ErrUnsupportedFormat is returned before decode begins when the session's
// format kind has no entry in the format table.
var ErrUnsupportedFormat = errors.New("decode: unsupported format")

// DecodeError is a decode failure pinned to a byte offset in the source.
type DecodeError struct {
	Kind   FailureKind
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("decode: %s at offset %d", e.Kind, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func failure(kind FailureKind, offset int64, err error) *DecodeError {
	return &DecodeError{Kind: kind, Offset: offset, Err: err}
}
