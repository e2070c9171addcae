package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/scopelabs/daqpipe/internal/framer"
)

// SamplePacketSize is the byte-exact wire size of a serialized
// framer.SamplePacket: header(2) info(1) channel(1) trigger_time(4)
// logical_position(2) physical_position(2) raw_samples(64)
// parser_index(2) start_udp_packet_index(2) end_udp_packet_index(2)
// footer(2).
const SamplePacketSize = 2 + 1 + 1 + 4 + 2 + 2 + 64 + 2 + 2 + 2 + 2

// byteOrder is the producer's fixed native order for every serialized
// Event/SamplePacket/timing record. spec.md leaves this to the
// implementer when cross-architecture interoperability isn't required;
// little-endian is chosen here and held fixed across the whole wire
// package (see DESIGN.md).
var byteOrder = binary.LittleEndian

// MarshalSamplePacket writes p into buf, which must be at least
// SamplePacketSize bytes.
func MarshalSamplePacket(p framer.SamplePacket, buf []byte) error {
	if len(buf) < SamplePacketSize {
		return fmt.Errorf("buffer too small: %d < %d", len(buf), SamplePacketSize)
	}

	i := 0
	byteOrder.PutUint16(buf[i:], p.Header)
	i += 2
	buf[i] = p.Info
	i++
	buf[i] = p.Channel
	i++
	byteOrder.PutUint32(buf[i:], p.TriggerTime)
	i += 4
	byteOrder.PutUint16(buf[i:], p.LogicalPosition)
	i += 2
	byteOrder.PutUint16(buf[i:], p.PhysicalPosition)
	i += 2
	copy(buf[i:i+64], p.RawSamples[:])
	i += 64
	byteOrder.PutUint16(buf[i:], p.ParserIndex)
	i += 2
	byteOrder.PutUint16(buf[i:], p.StartUDPPacketIndex)
	i += 2
	byteOrder.PutUint16(buf[i:], p.EndUDPPacketIndex)
	i += 2
	byteOrder.PutUint16(buf[i:], p.Footer)

	return nil
}

// UnmarshalSamplePacket reads one SamplePacketSize-byte record from
// buf.
func UnmarshalSamplePacket(buf []byte) (framer.SamplePacket, error) {
	if len(buf) < SamplePacketSize {
		return framer.SamplePacket{}, fmt.Errorf("buffer too small: %d < %d", len(buf), SamplePacketSize)
	}

	var p framer.SamplePacket
	i := 0
	p.Header = byteOrder.Uint16(buf[i:])
	i += 2
	p.Info = buf[i]
	i++
	p.Channel = buf[i]
	i++
	p.TriggerTime = byteOrder.Uint32(buf[i:])
	i += 4
	p.LogicalPosition = byteOrder.Uint16(buf[i:])
	i += 2
	p.PhysicalPosition = byteOrder.Uint16(buf[i:])
	i += 2
	copy(p.RawSamples[:], buf[i:i+64])
	i += 64
	p.ParserIndex = byteOrder.Uint16(buf[i:])
	i += 2
	p.StartUDPPacketIndex = byteOrder.Uint16(buf[i:])
	i += 2
	p.EndUDPPacketIndex = byteOrder.Uint16(buf[i:])
	i += 2
	p.Footer = byteOrder.Uint16(buf[i:])

	return p, nil
}
