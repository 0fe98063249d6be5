package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/nautidog/sonarsniffer/pkg/format"
)

// Codec errors. The decode layer maps these onto its failure taxonomy.
var (
	ErrShortHeader     = errors.New("codec: data too short for record header")
	ErrBadMarker       = errors.New("codec: sync marker mismatch")
	ErrPayloadTooLarge = errors.New("codec: declared payload length exceeds format maximum")
	ErrChecksum        = errors.New("codec: checksum mismatch")
)

// Record is one decoded survey record: the raw typed payload plus enough
// header context to locate it in the source file. Payload bytes are opaque
// to the decoder; channel-specific interpretation belongs to downstream
// consumers.
type Record struct {
	Offset  int64  // byte offset of the sync marker in the source
	Type    uint16 // record-type tag from the header
	Channel uint16 // channel-type tag from the header
	CRC32   uint32 // checksum as stored in the header
	Payload []byte // raw payload bytes
}

// Size returns the total on-wire size of the record for the given spec.
func (r *Record) Size(spec *format.Spec) int {
	return spec.HeaderSize() + len(r.Payload)
}

// Header is the fixed portion of a record header, the bytes between the
// sync marker and the payload.
type Header struct {
	Type       uint16
	Channel    uint16
	PayloadLen uint32
	CRC32      uint32
}

// RecordCodec encodes and decodes records for a single format spec.
// Instances are immutable and safe for concurrent use.
type RecordCodec struct {
	spec *format.Spec
}

// NewRecordCodec creates a codec bound to the given format spec.
func NewRecordCodec(spec *format.Spec) *RecordCodec {
	return &RecordCodec{spec: spec}
}

// Spec returns the format spec this codec is bound to.
func (c *RecordCodec) Spec() *format.Spec {
	return c.spec
}

// Encode serializes a record into its wire form, sync marker included.
// Format: [Marker][Type(2)][Channel(2)][PayloadLen(4)][CRC32(4)][Payload]
func (c *RecordCodec) Encode(recType, channel uint16, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(c.spec.MaxPayload) {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), c.spec.MaxPayload)
	}

	hdr := Header{
		Type:       recType,
		Channel:    channel,
		PayloadLen: uint32(len(payload)),
	}
	hdr.CRC32 = c.Checksum(&hdr, payload)

	m := len(c.spec.Marker)
	buf := make([]byte, c.spec.HeaderSize()+len(payload))
	copy(buf, c.spec.Marker)
	binary.LittleEndian.PutUint16(buf[m:], hdr.Type)
	binary.LittleEndian.PutUint16(buf[m+2:], hdr.Channel)
	binary.LittleEndian.PutUint32(buf[m+4:], hdr.PayloadLen)
	binary.LittleEndian.PutUint32(buf[m+8:], hdr.CRC32)
	copy(buf[m+12:], payload)

	return buf, nil
}

// DecodeHeader parses a record header from data, which must begin at the
// sync marker. The payload is not consumed here; callers read PayloadLen
// bytes after the header and validate with Validate.
func (c *RecordCodec) DecodeHeader(data []byte) (*Header, error) {
	if len(data) < c.spec.HeaderSize() {
		return nil, ErrShortHeader
	}

	m := len(c.spec.Marker)
	for i := 0; i < m; i++ {
		if data[i] != c.spec.Marker[i] {
			return nil, ErrBadMarker
		}
	}

	hdr := &Header{
		Type:       binary.LittleEndian.Uint16(data[m:]),
		Channel:    binary.LittleEndian.Uint16(data[m+2:]),
		PayloadLen: binary.LittleEndian.Uint32(data[m+4:]),
		CRC32:      binary.LittleEndian.Uint32(data[m+8:]),
	}

	if hdr.PayloadLen > c.spec.MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, hdr.PayloadLen, c.spec.MaxPayload)
	}

	return hdr, nil
}

// Checksum computes the record checksum over the header fields (excluding
// the checksum itself) and the payload, using the format's CRC polynomial.
func (c *RecordCodec) Checksum(hdr *Header, payload []byte) uint32 {
	var fixed [8]byte
	binary.LittleEndian.PutUint16(fixed[0:], hdr.Type)
	binary.LittleEndian.PutUint16(fixed[2:], hdr.Channel)
	binary.LittleEndian.PutUint32(fixed[4:], hdr.PayloadLen)

	crc := crc32.Update(0, c.spec.CRC, fixed[:])
	return crc32.Update(crc, c.spec.CRC, payload)
}

// Validate recomputes the checksum over header and payload and compares it
// to the header's stored checksum field.
func (c *RecordCodec) Validate(hdr *Header, payload []byte) error {
	if got := c.Checksum(hdr, payload); got != hdr.CRC32 {
		return fmt.Errorf("%w: computed %08x, header %08x", ErrChecksum, got, hdr.CRC32)
	}
	return nil
}
