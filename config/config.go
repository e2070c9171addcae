// Package config holds the construction parameters for every core
// component of the pipeline: the packet framer, the event assembler, the
// ingress queue, and the UDP receiver. It mirrors the reference
// acquisition board's defaults. cmd/daqpipe overrides only the
// receiver's address and port, by flag or environment variable; every
// other field keeps its default there.
package config

import (
	"fmt"
	"math"
	"math/bits"
)

// TriggerType classifies how an event's packets were triggered on the
// board. It occupies bits 4-5 of Event.Info.
type TriggerType uint8

const (
	TriggerUnknown TriggerType = iota
	TriggerExternal
	TriggerInternal
	TriggerImmediate
)

// InfoBits returns the two-bit encoding used in Event.Info, shifted into
// position (bits 4-5).
func (t TriggerType) InfoBits() uint8 {
	switch t {
	case TriggerExternal:
		return 0b01 << 4
	case TriggerInternal:
		return 0b10 << 4
	case TriggerImmediate:
		return 0b11 << 4
	default:
		return 0b00 << 4
	}
}

func (t TriggerType) String() string {
	switch t {
	case TriggerExternal:
		return "external"
	case TriggerInternal:
		return "internal"
	case TriggerImmediate:
		return "immediate"
	default:
		return "unknown"
	}
}

// FramerConfig configures the PacketFramer. Defaults mirror the reference
// board's 74-byte framed packet.
type FramerConfig struct {
	PacketSize  int
	StartMarker []byte
	StopMarker  []byte

	ChanMask     uint8
	ChanShift    uint8
	AbsWindMask  uint8
	EvtWindMask  uint8
	EvtWindShift uint8
	TimingMask   uint16
	TimingShift  uint8

	CheckPacketIntegrity bool

	ConstructedHeader uint16
	ConstructedFooter uint16
}

// DefaultFramerConfig returns the reference board's packet geometry.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		PacketSize:           74,
		StartMarker:          []byte{0x0E},
		StopMarker:           []byte{0xFA, 0x5A},
		ChanMask:             0x3F,
		ChanShift:            0,
		AbsWindMask:          0x3F,
		EvtWindMask:          0x3F,
		EvtWindShift:         6,
		TimingMask:           0xFFF,
		TimingShift:          12,
		CheckPacketIntegrity: true,
		ConstructedHeader:    0xAAAA,
		ConstructedFooter:    0xFFFF,
	}
}

func (c FramerConfig) Validate() error {
	if c.PacketSize <= 0 {
		return fmt.Errorf("packet size must be positive")
	}
	if len(c.StartMarker) == 0 {
		return fmt.Errorf("start marker must not be empty")
	}
	if len(c.StopMarker) == 0 {
		return fmt.Errorf("stop marker must not be empty")
	}
	body := len(c.StartMarker) + len(c.StopMarker) + 1 + 4 + 2 + 64
	if body > c.PacketSize {
		return fmt.Errorf("packet size %d too small for markers and body (need at least %d)", c.PacketSize, body)
	}
	return nil
}

// AssemblerConfig configures the EventAssembler and the EventStore it
// feeds into.
type AssemblerConfig struct {
	MaxEvents      int
	MaxTriggerTime uint32
	TimeThreshold  uint32
	MaxLookback    int
	Channels       []int
	Windows        uint8
	EventHeader    uint16
	EventTrailer   uint16
	TriggerType    TriggerType
	ClockFrequency uint32 // Hz; used by the self-contained Internal-trigger wait computation
	MaxWait        uint32 // ticks; not read by Event.IsComplete, which never reports an Internal-trigger event complete when ClockFrequency is zero

	// PostEventSafetyBufferCounterMax overrides the default safety-zone
	// length (ceil(|channels| * windows * 0.10)). Zero means "use the
	// default".
	PostEventSafetyBufferCounterMax int
}

// DefaultAssemblerConfig returns NaluEventBuilderParams' defaults.
func DefaultAssemblerConfig() AssemblerConfig {
	channels := make([]int, 16)
	for i := range channels {
		channels[i] = i
	}
	return AssemblerConfig{
		MaxEvents:      1_000_000,
		MaxTriggerTime: 16_777_216,
		TimeThreshold:  5000,
		MaxLookback:    2,
		Channels:       channels,
		Windows:        4,
		EventHeader:    0xBBBB,
		EventTrailer:   0xEEEE,
		TriggerType:    TriggerExternal,
		ClockFrequency: 62_500_000,
	}
}

func (c AssemblerConfig) Validate() error {
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max events must be positive")
	}
	if c.MaxTriggerTime == 0 {
		return fmt.Errorf("max trigger time must be positive")
	}
	if c.MaxLookback <= 0 {
		return fmt.Errorf("max lookback must be positive")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if c.Windows == 0 {
		return fmt.Errorf("windows must be positive")
	}
	return nil
}

// ChannelMask derives the 64-bit channel bitmask from the configured
// channel list (bit c set for each configured channel c in [0,64)).
func (c AssemblerConfig) ChannelMask() uint64 {
	var mask uint64
	for _, ch := range c.Channels {
		if ch >= 0 && ch < 64 {
			mask |= 1 << uint(ch)
		}
	}
	return mask
}

// MaxPacketsPerEvent implements invariant I7: windows * popcount(channel
// mask) + 5.
func (c AssemblerConfig) MaxPacketsPerEvent() int {
	return int(c.Windows)*bits.OnesCount64(c.ChannelMask()) + 5
}

// SafetyBufferCounterMax returns the configured override, or the default
// of ceil(|channels| * windows * 0.10).
func (c AssemblerConfig) SafetyBufferCounterMax() int {
	if c.PostEventSafetyBufferCounterMax > 0 {
		return c.PostEventSafetyBufferCounterMax
	}
	n := float64(len(c.Channels)) * float64(c.Windows) * 0.10
	return int(math.Ceil(n))
}

// IngressConfig configures the IngressQueue.
type IngressConfig struct {
	Capacity int
}

func DefaultIngressConfig() IngressConfig {
	return IngressConfig{Capacity: 4096}
}

func (c IngressConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	return nil
}

// ReceiverConfig configures the UDP receiver thread.
type ReceiverConfig struct {
	Address        string
	Port           uint16
	MaxPacketSize  int
	ReadTimeoutSec int
}

func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Address:        "0.0.0.0",
		Port:           12345,
		MaxPacketSize:  1040,
		ReadTimeoutSec: 10,
	}
}

func (c ReceiverConfig) Validate() error {
	if c.MaxPacketSize <= 16 {
		return fmt.Errorf("max packet size must exceed the 16-byte prelude")
	}
	return nil
}

// OrchestratorConfig configures the pull-cycle orchestrator: how long
// it sleeps between cycles in background mode, and how many workers
// serialize completed events concurrently.
type OrchestratorConfig struct {
	SleepMicros    int64
	ExportPoolSize int
}

// DefaultOrchestratorConfig mirrors the reference board's default
// sleep interval (sleep_time_us in NaluEventCollectorParams).
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SleepMicros:    1000,
		ExportPoolSize: 8,
	}
}

func (c OrchestratorConfig) Validate() error {
	if c.SleepMicros < 0 {
		return fmt.Errorf("sleep micros must not be negative")
	}
	return nil
}
