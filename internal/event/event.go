// Package event implements the time-correlation engine that coalesces
// SamplePackets into Events using a modular-arithmetic trigger-time
// comparator, and the bounded, ordered store those events live in.
package event

import (
	"math/bits"
	"time"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/daqerr"
	"github.com/scopelabs/daqpipe/internal/framer"
)

// Info bit layout, low 4 bits framing error code, bits 4-5 trigger type.
const triggerTypeShift = 4

// Event groups SamplePackets sharing a common trigger-time window. It
// embeds time_threshold/clock_frequency/num_windows/channel_mask so
// IsComplete is self-contained (the construction-time-resolved form;
// see DESIGN.md for the CURRENTLY BROKEN variant this replaces).
type Event struct {
	Header         uint16
	Info           uint8
	Index          uint32
	ReferenceTime  uint32
	TimeThreshold  uint32
	ClockFrequency uint32
	PacketSize     uint16
	ChannelMask    uint64
	NumWindows     uint8
	TriggerType    config.TriggerType
	Footer         uint16

	Packets           []framer.SamplePacket
	maxPackets        int
	creationTimestamp time.Time
}

// newEvent constructs an Event opened by the given first packet.
func newEvent(index uint32, p framer.SamplePacket, cfg config.AssemblerConfig, packetSize uint16, now time.Time) *Event {
	e := &Event{
		Header:         cfg.EventHeader,
		Info:           cfg.TriggerType.InfoBits(),
		Index:          index,
		ReferenceTime:  p.TriggerTime,
		TimeThreshold:  cfg.TimeThreshold,
		ClockFrequency: cfg.ClockFrequency,
		PacketSize:     packetSize,
		ChannelMask:    cfg.ChannelMask(),
		NumWindows:     cfg.Windows,
		TriggerType:    cfg.TriggerType,
		Footer:         cfg.EventTrailer,
		maxPackets:     cfg.MaxPacketsPerEvent(),

		creationTimestamp: now,
	}
	return e
}

// FromWire reconstructs an Event from deserialized wire fields (used by
// internal/wire's Event unmarshaler). maxPackets and creationTimestamp
// are not part of the wire format: maxPackets is recomputed from
// numWindows/channelMask per I7, and creationTimestamp is set to now,
// since the original process-local instant does not survive transport.
func FromWire(header uint16, info uint8, index, referenceTime, timeThreshold, clockFrequency uint32, packetSize uint16, channelMask uint64, numWindows uint8, packets []framer.SamplePacket, footer uint16) *Event {
	triggerType := config.TriggerUnknown
	switch (info >> triggerTypeShift) & 0x03 {
	case 0b01:
		triggerType = config.TriggerExternal
	case 0b10:
		triggerType = config.TriggerInternal
	case 0b11:
		triggerType = config.TriggerImmediate
	}

	return &Event{
		Header:            header,
		Info:              info,
		Index:             index,
		ReferenceTime:     referenceTime,
		TimeThreshold:     timeThreshold,
		ClockFrequency:    clockFrequency,
		PacketSize:        packetSize,
		ChannelMask:       channelMask,
		NumWindows:        numWindows,
		TriggerType:       triggerType,
		Footer:            footer,
		Packets:           packets,
		maxPackets:        int(numWindows)*bits.OnesCount64(channelMask) + 5,
		creationTimestamp: time.Now(),
	}
}

// ErrorCode returns the low 4 bits of Info.
func (e *Event) ErrorCode() uint8 { return e.Info & 0x0F }

// NumPackets returns the number of packets currently attached.
func (e *Event) NumPackets() int { return len(e.Packets) }

// CreationTimestamp returns the monotonic instant the event was opened.
func (e *Event) CreationTimestamp() time.Time { return e.creationTimestamp }

// AddPacket appends a SamplePacket to the event. It is fatal (I3) to
// exceed max_packets; the caller must treat the returned error as an
// Overflow condition.
func (e *Event) AddPacket(p framer.SamplePacket) error {
	if len(e.Packets) >= e.maxPackets {
		return daqerr.ErrPacketOverflow
	}
	e.Packets = append(e.Packets, p)
	e.Info = (e.Info & 0xF0) | ((e.Info | p.Info) & 0x0F)
	return nil
}

// IsComplete is the self-contained completion test (P9): once true,
// it remains true for the remaining life of the event.
func (e *Event) IsComplete() bool {
	if e.TriggerType == config.TriggerInternal {
		if e.ClockFrequency == 0 {
			return false
		}
		maxWait := time.Duration(float64(e.TimeThreshold) * 1e9 / float64(e.ClockFrequency))
		return time.Since(e.creationTimestamp) >= maxWait
	}
	return len(e.Packets) >= int(e.NumWindows)*bits.OnesCount64(e.ChannelMask)
}
