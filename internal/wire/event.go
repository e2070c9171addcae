package wire

import (
	"fmt"

	"github.com/scopelabs/daqpipe/internal/event"
	"github.com/scopelabs/daqpipe/internal/framer"
)

// eventHeaderSize is the fixed portion of a serialized Event, before
// its num_packets SamplePacket records and trailing footer: header(2)
// info(1) index(4) reference_time(4) time_threshold(4)
// clock_frequency(4) packet_size(2) channel_mask(8) num_windows(1)
// num_packets(2).
const eventHeaderSize = 2 + 1 + 4 + 4 + 4 + 4 + 2 + 8 + 1 + 2

// EventWireSize returns the exact serialized size of e: fixed header,
// plus one SamplePacketSize block per packet, plus the 2-byte footer.
func EventWireSize(e *event.Event) int {
	return eventHeaderSize + e.NumPackets()*SamplePacketSize + 2
}

// MarshalEvent writes e into buf, which must be at least
// EventWireSize(e) bytes. The layout is byte-exact with no padding
// (P8): deserialize(serialize(e)) reproduces e within num_packets
// packets.
func MarshalEvent(e *event.Event, buf []byte) error {
	size := EventWireSize(e)
	if len(buf) < size {
		return fmt.Errorf("buffer too small: %d < %d", len(buf), size)
	}

	i := 0
	byteOrder.PutUint16(buf[i:], e.Header)
	i += 2
	buf[i] = e.Info
	i++
	byteOrder.PutUint32(buf[i:], e.Index)
	i += 4
	byteOrder.PutUint32(buf[i:], e.ReferenceTime)
	i += 4
	byteOrder.PutUint32(buf[i:], e.TimeThreshold)
	i += 4
	byteOrder.PutUint32(buf[i:], e.ClockFrequency)
	i += 4
	byteOrder.PutUint16(buf[i:], e.PacketSize)
	i += 2
	byteOrder.PutUint64(buf[i:], e.ChannelMask)
	i += 8
	buf[i] = e.NumWindows
	i++
	byteOrder.PutUint16(buf[i:], uint16(e.NumPackets()))
	i += 2

	for _, p := range e.Packets {
		if err := MarshalSamplePacket(p, buf[i:]); err != nil {
			return err
		}
		i += SamplePacketSize
	}

	byteOrder.PutUint16(buf[i:], e.Footer)
	return nil
}

// UnmarshalEvent reads a serialized Event from buf.
func UnmarshalEvent(buf []byte) (*event.Event, error) {
	if len(buf) < eventHeaderSize+2 {
		return nil, fmt.Errorf("buffer too small for event header: %d < %d", len(buf), eventHeaderSize+2)
	}

	i := 0
	header := byteOrder.Uint16(buf[i:])
	i += 2
	info := buf[i]
	i++
	index := byteOrder.Uint32(buf[i:])
	i += 4
	referenceTime := byteOrder.Uint32(buf[i:])
	i += 4
	timeThreshold := byteOrder.Uint32(buf[i:])
	i += 4
	clockFrequency := byteOrder.Uint32(buf[i:])
	i += 4
	packetSize := byteOrder.Uint16(buf[i:])
	i += 2
	channelMask := byteOrder.Uint64(buf[i:])
	i += 8
	numWindows := buf[i]
	i++
	numPackets := byteOrder.Uint16(buf[i:])
	i += 2

	need := eventHeaderSize + int(numPackets)*SamplePacketSize + 2
	if len(buf) < need {
		return nil, fmt.Errorf("buffer too small for %d packets: %d < %d", numPackets, len(buf), need)
	}

	packets := make([]framer.SamplePacket, numPackets)
	for k := range packets {
		p, err := UnmarshalSamplePacket(buf[i:])
		if err != nil {
			return nil, err
		}
		packets[k] = p
		i += SamplePacketSize
	}

	footer := byteOrder.Uint16(buf[i:])

	return event.FromWire(header, info, index, referenceTime, timeThreshold, clockFrequency, packetSize, channelMask, numWindows, packets, footer), nil
}
