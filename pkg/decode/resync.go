package decode

import (
	"bytes"
	"io"

	"github.com/nautidog/sonarsniffer/pkg/format"
)

// resyncChunkSize is the read granularity of the marker scan. Chunks
// overlap by len(marker)-1 bytes so matches straddling a boundary are
// still found.
const resyncChunkSize = 64 << 10

// findMarker searches src for the earliest occurrence of marker at or after
// from, examining at most window bytes and never past size. It returns the
// match offset. The scan is finite per invocation and restartable from any
// offset, so callers can skip past a failed candidate and continue.
func findMarker(src io.ReaderAt, size int64, marker []byte, from, window int64) (int64, bool, error) {
	if from >= size || len(marker) == 0 {
		return 0, false, nil
	}

	end := from + window
	if window <= 0 || end > size {
		end = size
	}

	overlap := int64(len(marker) - 1)
	buf := make([]byte, resyncChunkSize+int(overlap))
	pos := from

	for pos < end {
		// Read beyond end by the overlap so a marker starting inside the
		// window but ending outside it is still matched.
		n, err := src.ReadAt(buf, pos)
		if err != nil && err != io.EOF {
			return 0, false, err
		}
		chunk := buf[:n]

		if i := bytes.Index(chunk, marker); i >= 0 {
			at := pos + int64(i)
			if at < end {
				return at, true, nil
			}
			return 0, false, nil
		}

		if err == io.EOF {
			return 0, false, nil
		}
		pos += int64(len(chunk)) - overlap
	}

	return 0, false, nil
}

// scanForMarker is the session-bound resync scan, bounded by the configured
// maximum scan window.
func (s *Session) scanForMarker(from int64) (int64, bool, error) {
	return findMarker(s.src, s.size, s.spec.Marker, from, int64(s.opts.MaxScanWindow))
}

// EstimateRecordCount estimates how many records a source holds by counting
// sync marker occurrences, without decoding or verifying anything. Useful
// for sizing progress reporting before a full decode.
func EstimateRecordCount(src io.ReaderAt, size int64, spec *format.Spec) (int64, error) {
	var count int64
	pos := int64(0)
	for {
		at, found, err := findMarker(src, size, spec.Marker, pos, 0)
		if err != nil {
			return count, err
		}
		if !found {
			return count, nil
		}
		count++
		pos = at + int64(len(spec.Marker))
	}
}
