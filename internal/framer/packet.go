// Package framer implements the stateful framer that resynchronizes on
// start/stop markers across UDP datagram boundaries and emits fixed
// layout sample packets. It carries leftover bytes and a monotonic
// parser index across calls; the carrying Framer is owned by a
// single thread and needs no locking.
package framer

// ErrorFlag bits occupy the low 4 bits of SamplePacket.Info. Bits 2-3 are
// reserved.
const (
	// FlagStopMarkerMissing is set when the stop marker was not found
	// at the expected position before resync locates it.
	FlagStopMarkerMissing uint8 = 1 << 0
	// FlagStartMarkerMissing is set when the stop marker was present
	// but the start marker was not.
	FlagStartMarkerMissing uint8 = 1 << 1
)

// bodySize is the fixed number of bytes between the start and stop
// markers: 1 channel byte, 4 trigger-time bytes, 2 position bytes, and
// 64 raw sample bytes.
const bodySize = 1 + 4 + 2 + 64

// SamplePacket is one fixed-layout frame extracted from the UDP payload
// stream.
type SamplePacket struct {
	Header              uint16
	Info                uint8
	Channel             uint8
	TriggerTime         uint32
	LogicalPosition     uint16
	PhysicalPosition    uint16
	RawSamples          [64]byte
	ParserIndex         uint16
	StartUDPPacketIndex uint16
	EndUDPPacketIndex   uint16
	Footer              uint16
}

// ErrorCode returns the low 4 framing-error bits of Info.
func (p SamplePacket) ErrorCode() uint8 { return p.Info & 0x0F }

// HasFlag reports whether the given FlagXxx bit is set in Info.
func (p SamplePacket) HasFlag(flag uint8) bool { return p.Info&flag != 0 }
