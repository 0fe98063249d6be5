package format

import (
	"bytes"
	"path/filepath"
	"strings"
)

// SniffLen is the number of leading bytes the sniffer needs to classify a
// file by content. Callers may pass fewer; classification then degrades to
// the extension hint.
const SniffLen = 8

// Sniff classifies a byte source from its leading header bytes, falling back
// to the filename extension hint when no marker matches. It is a pure
// function: unrecognized input yields Unknown, never an error, so the caller
// decides whether to reject or attempt a generic decode.
func (t *Table) Sniff(header []byte, hint string) Kind {
	for i := range t.specs {
		s := &t.specs[i]
		if len(header) >= len(s.Marker) && bytes.Equal(header[:len(s.Marker)], s.Marker) {
			return s.Kind
		}
	}

	if hint != "" {
		ext := strings.ToLower(filepath.Ext(hint))
		for i := range t.specs {
			s := &t.specs[i]
			for _, e := range s.Extensions {
				if ext == e {
					return s.Kind
				}
			}
		}
	}

	return Unknown
}
