package decode

import (
	"context"
)

// runTolerant maximizes the number of valid records recovered from a stream
// that may be truncated, interleaved with garbage, or missing spans. Each
// iteration attempts the same header/payload/checksum sequence as strict
// mode; a failure triggers a bounded forward scan for the next sync marker
// instead of an abort. Emitted records pass the identical checksum test as
// strict mode — the two modes only differ in what happens after a failure.
func (s *Session) runTolerant(ctx context.Context, sink Sink) error {
	consecutive := 0

	for {
		if err := s.checkCancelled(ctx); err != nil {
			return err
		}
		if s.opts.MaxRecords > 0 && uint64(s.records) >= s.opts.MaxRecords {
			return nil
		}

		rec, derr := s.decodeOne()
		if derr == nil {
			if rec == nil {
				return nil
			}
			if err := s.emit(sink, rec); err != nil {
				return err
			}
			consecutive = 0
			s.maybeProgress()
			continue
		}

		consecutive++
		if consecutive > s.opts.MaxConsecutiveFailures {
			// Pathological span: stop thrashing and surrender the rest.
			s.skipTail(Diagnostic{
				Offset: s.cursor,
				Reason: FailureSyncNotFound,
			})
			return nil
		}

		// Scan past the failed record's own marker for the next candidate.
		failedAt := derr.Offset
		candidate, found, err := s.scanForMarker(failedAt + 1)
		if err != nil {
			return failure(derr.Kind, failedAt, err)
		}
		if !found {
			// EOF (or scan window exhausted at EOF) before realignment:
			// partial recovery, not an error.
			s.skipTail(Diagnostic{
				Offset: failedAt,
				Reason: derr.Kind,
			})
			return nil
		}

		s.recordDiagnostic(Diagnostic{
			Offset:    failedAt,
			Length:    candidate - failedAt,
			Reason:    derr.Kind,
			Recovered: true,
		})
		s.skipped += candidate - s.cursor
		s.cursor = candidate
	}
}

// skipTail surrenders everything from the diagnostic offset to EOF as a
// single unrecovered span.
func (s *Session) skipTail(d Diagnostic) {
	d.Length = s.size - d.Offset
	d.Recovered = false
	if d.Length > 0 {
		s.recordDiagnostic(d)
	}
	s.skipped += s.size - s.cursor
	s.cursor = s.size
}
