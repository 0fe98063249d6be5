package decode

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

func rsdSpec(t *testing.T) *format.Spec {
	t.Helper()
	spec := format.DefaultTable().Lookup(format.GarminRSD)
	if spec == nil {
		t.Fatal("default table has no Garmin RSD spec")
	}
	return spec
}

// buildLog encodes the payloads into a contiguous log and returns the bytes
// plus each record's start offset.
func buildLog(t *testing.T, spec *format.Spec, payloads [][]byte) ([]byte, []int64) {
	t.Helper()
	c := codec.NewRecordCodec(spec)

	var buf bytes.Buffer
	offsets := make([]int64, 0, len(payloads))
	for i, p := range payloads {
		offsets = append(offsets, int64(buf.Len()))
		b, err := c.Encode(uint16(1), uint16(i%2), p)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		buf.Write(b)
	}
	return buf.Bytes(), offsets
}

// randomPayloads builds n deterministic pseudo-random payloads.
func randomPayloads(seed int64, n, maxLen int) [][]byte {
	rng := rand.New(rand.NewSource(seed))
	payloads := make([][]byte, n)
	for i := range payloads {
		p := make([]byte, 1+rng.Intn(maxLen))
		rng.Read(p)
		payloads[i] = p
	}
	return payloads
}

// runSession decodes data with the given options and collects the emitted
// records.
func runSession(t *testing.T, spec *format.Spec, data []byte, opts Options) ([]*codec.Record, *Summary, error) {
	t.Helper()
	session, err := NewSession(format.DefaultTable(), spec.Kind, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	var recs []*codec.Record
	sum, err := session.Run(context.Background(), func(rec *codec.Record) error {
		recs = append(recs, rec)
		return nil
	})
	if sum == nil {
		t.Fatal("Run returned nil summary")
	}
	return recs, sum, err
}
