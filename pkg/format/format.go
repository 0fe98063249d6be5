package format

import (
	"encoding/binary"
	"hash/crc32"
)

// Kind identifies a supported device log format.
type Kind int

const (
	Unknown Kind = iota
	GarminRSD
	NavicoSLG
	HumminbirdSON
	EdgeTechXTF
)

// String returns the display name of the format kind.
func (k Kind) String() string {
	switch k {
	case GarminRSD:
		return "RSD (Garmin)"
	case NavicoSLG:
		return "SLG (Navico)"
	case HumminbirdSON:
		return "SON (Humminbird)"
	case EdgeTechXTF:
		return "XTF (EdgeTech)"
	default:
		return "Unknown"
	}
}

// FixedHeaderSize is the size of the record header that follows the sync
// marker: RecordType(2) + ChannelID(2) + PayloadLen(4) + CRC32(4).
const FixedHeaderSize = 12

// Spec holds the immutable wire parameters of one device log format.
type Spec struct {
	Kind       Kind
	Name       string
	Marker     []byte   // sync marker bytes as they appear on the wire
	Extensions []string // lowercase filename extensions, including the dot
	CRC        *crc32.Table
	MaxPayload uint32 // upper bound on a record's declared payload length
}

// HeaderSize returns the total on-wire header size for this format,
// sync marker included.
func (s *Spec) HeaderSize() int {
	return len(s.Marker) + FixedHeaderSize
}

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)
	ieee       = crc32.MakeTable(crc32.IEEE)
)

func markerLE32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func markerLE16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// Table is an immutable lookup of format specs. It is built once at process
// start and passed explicitly to the sniffer and decoders; there is no
// ambient global configuration.
type Table struct {
	specs  []Spec
	byKind map[Kind]*Spec
}

// NewTable builds a lookup table from the given specs.
func NewTable(specs []Spec) *Table {
	t := &Table{
		specs:  specs,
		byKind: make(map[Kind]*Spec, len(specs)),
	}
	for i := range t.specs {
		t.byKind[t.specs[i].Kind] = &t.specs[i]
	}
	return t
}

// Lookup returns the spec for the given kind, or nil for Unknown or an
// unregistered kind.
func (t *Table) Lookup(kind Kind) *Spec {
	return t.byKind[kind]
}

// Kinds returns the registered kinds in table order.
func (t *Table) Kinds() []Kind {
	kinds := make([]Kind, 0, len(t.specs))
	for i := range t.specs {
		kinds = append(kinds, t.specs[i].Kind)
	}
	return kinds
}

var defaultTable = NewTable([]Spec{
	{
		Kind:       GarminRSD,
		Name:       "Garmin RSD",
		Marker:     markerLE32(0xB7E9DA86),
		Extensions: []string{".rsd"},
		CRC:        castagnoli,
		MaxPayload: 0x100000,
	},
	{
		Kind:       NavicoSLG,
		Name:       "Navico SLG",
		Marker:     markerLE32(0x7F3C2DB1),
		Extensions: []string{".slg", ".sl2", ".sl3"},
		CRC:        ieee,
		MaxPayload: 0x40000,
	},
	{
		Kind:       HumminbirdSON,
		Name:       "Humminbird SON",
		Marker:     markerLE32(0xC0DEAB21),
		Extensions: []string{".son"},
		CRC:        ieee,
		MaxPayload: 0x20000,
	},
	{
		Kind:       EdgeTechXTF,
		Name:       "EdgeTech XTF",
		Marker:     markerLE16(0xFACE),
		Extensions: []string{".xtf"},
		CRC:        castagnoli,
		MaxPayload: 0x80000,
	},
})

// DefaultTable returns the built-in format table.
func DefaultTable() *Table {
	return defaultTable
}
