// Package wire implements the byte-exact serialization this pipeline
// exchanges with its external collaborators: the UDP datagram prelude
// the receiver strips off, the Event/SamplePacket layouts the
// orchestrator's exporter produces, and the timing-record layout. Marshal/Unmarshal
// follow tools/twamp/pkg/light's packet.go shape: a buffer-in Marshal
// that returns an error, a free function Unmarshal that validates size
// before reading.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PreludeSize is the fixed prelude length: 2 bytes of big-endian
// payload length, followed by 14 opaque bytes ignored by the core.
const PreludeSize = 16

// ErrMalformedDatagram is returned when a datagram is shorter than
// PreludeSize, or its declared payload length does not match the
// actual trailing byte count.
var ErrMalformedDatagram = errors.New("malformed datagram")

// SplitDatagram validates and splits a raw UDP datagram into its
// prelude and payload. A datagram is malformed if its total length is
// less than PreludeSize, or if the declared payload length (prelude
// bytes 0-1, big-endian) does not equal len(datagram) - PreludeSize.
func SplitDatagram(datagram []byte) (prelude, payload []byte, err error) {
	if len(datagram) < PreludeSize {
		return nil, nil, fmt.Errorf("datagram length %d < prelude size %d: %w", len(datagram), PreludeSize, ErrMalformedDatagram)
	}

	declared := binary.BigEndian.Uint16(datagram[0:2])
	actual := len(datagram) - PreludeSize
	if int(declared) != actual {
		return nil, nil, fmt.Errorf("declared payload length %d != actual %d: %w", declared, actual, ErrMalformedDatagram)
	}

	return datagram[:PreludeSize], datagram[PreludeSize:], nil
}
