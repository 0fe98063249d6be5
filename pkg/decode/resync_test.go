package decode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMarker(t *testing.T) {
	marker := []byte{0x86, 0xDA, 0xE9, 0xB7}

	testCases := []struct {
		name      string
		data      []byte
		from      int64
		window    int64
		wantAt    int64
		wantFound bool
	}{
		{
			name:      "marker at start",
			data:      append(append([]byte(nil), marker...), 1, 2, 3),
			from:      0,
			window:    0,
			wantAt:    0,
			wantFound: true,
		},
		{
			name:      "marker mid-stream",
			data:      append([]byte{1, 2, 3, 4, 5}, marker...),
			from:      0,
			window:    0,
			wantAt:    5,
			wantFound: true,
		},
		{
			name:      "earliest of several",
			data:      append(append(append([]byte{0}, marker...), 9, 9), marker...),
			from:      0,
			window:    0,
			wantAt:    1,
			wantFound: true,
		},
		{
			name:      "from skips first occurrence",
			data:      append(append(append([]byte(nil), marker...), 9, 9), marker...),
			from:      1,
			window:    0,
			wantAt:    6,
			wantFound: true,
		},
		{
			name:      "no marker",
			data:      bytes.Repeat([]byte{0x42}, 100),
			from:      0,
			window:    0,
			wantFound: false,
		},
		{
			name:      "outside window",
			data:      append(bytes.Repeat([]byte{0x42}, 50), marker...),
			from:      0,
			window:    10,
			wantFound: false,
		},
		{
			name:      "just inside window",
			data:      append(bytes.Repeat([]byte{0x42}, 50), marker...),
			from:      0,
			window:    51,
			wantAt:    50,
			wantFound: true,
		},
		{
			name:      "from past end",
			data:      append([]byte(nil), marker...),
			from:      100,
			window:    0,
			wantFound: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			at, found, err := findMarker(bytes.NewReader(tc.data), int64(len(tc.data)), marker, tc.from, tc.window)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, found)
			if tc.wantFound {
				assert.Equal(t, tc.wantAt, at)
			}
		})
	}
}

func TestFindMarker_StraddlesChunkBoundary(t *testing.T) {
	marker := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	// Place the marker so it spans the scan chunk boundary.
	data := make([]byte, resyncChunkSize+16)
	copy(data[resyncChunkSize-2:], marker)

	at, found, err := findMarker(bytes.NewReader(data), int64(len(data)), marker, 0, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(resyncChunkSize-2), at)
}

func TestEstimateRecordCount(t *testing.T) {
	spec := rsdSpec(t)

	data, _ := buildLog(t, spec, randomPayloads(21, 17, 64))
	count, err := EstimateRecordCount(bytes.NewReader(data), int64(len(data)), spec)
	require.NoError(t, err)
	// Random payloads may embed marker bytes, so the estimate is a lower
	// bound on accuracy but never undercounts real records.
	assert.GreaterOrEqual(t, count, int64(17))

	empty, err := EstimateRecordCount(bytes.NewReader(nil), 0, spec)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty)
}
