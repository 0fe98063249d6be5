// Package codec implements the varstruct record layout shared by all
// supported sonar survey log formats.
//
// # Record Format
//
// Every record declares its own payload length in its header, so logs must
// be decoded sequentially. On the wire a record is:
//
//	[Marker][RecordType(2)][ChannelID(2)][PayloadLen(4)][CRC32(4)][Payload]
//
// Fields:
//   - Marker: the format's fixed sync marker (2 or 4 bytes), used to
//     realign the decode cursor after corruption
//   - RecordType: 16-bit record-type tag (little-endian)
//   - ChannelID: 16-bit channel-type tag (little-endian)
//   - PayloadLen: 32-bit payload length in bytes (little-endian), bounded
//     by the format's MaxPayload
//   - CRC32: 32-bit checksum over RecordType, ChannelID, PayloadLen and the
//     payload, using the format's CRC polynomial (little-endian)
//   - Payload: raw channel data, opaque to this package
//
// # Integrity
//
// The checksum covers every header field except the checksum itself, plus
// the full payload, so corruption anywhere in a record is detected. A
// record is only ever emitted by a decoder after Validate passes.
//
// # Thread Safety
//
// RecordCodec instances are immutable and safe for concurrent use. Writer
// serializes appends internally.
package codec
