package framer

import (
	"log/slog"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/scopelabs/daqpipe/internal/metrics"
)

// Framer is the stateful packet framer. It is owned by exactly one
// thread (the processing thread); its leftover state is not shared and
// needs no locking.
type Framer struct {
	log *slog.Logger
	cfg config.FramerConfig

	leftovers       []byte
	leftoversOrigin uint16
	parserIndex     uint16
}

// New constructs a Framer from its configuration.
func New(log *slog.Logger, cfg config.FramerConfig) *Framer {
	return &Framer{
		log:       log,
		cfg:       cfg,
		leftovers: make([]byte, 0, cfg.PacketSize),
	}
}

// Process frames every ingress packet in order, returning every emitted
// SamplePacket in stream order (P2: ParserIndex increments by exactly 1,
// modulo 2^16, across the whole call).
func (f *Framer) Process(packets []ingress.Packet) []SamplePacket {
	var out []SamplePacket
	for _, p := range packets {
		out = append(out, f.processOne(p.Index, p.Payload)...)
	}
	return out
}

// processOne frames a single ingress payload (call it B, with ingress
// index u).
func (f *Framer) processOne(u uint16, b []byte) []SamplePacket {
	var out []SamplePacket
	i := 0

	// Step 1: leftover completion.
	if len(f.leftovers) > 0 {
		if pkt, consumed, ok := f.completeLeftovers(u, b); ok {
			if pkt != nil {
				out = append(out, *pkt)
			}
			i = consumed
		} else {
			// Not enough bytes in this datagram to complete the
			// straddling packet; keep accumulating leftovers and wait
			// for the next call.
			f.leftovers = append(f.leftovers, b...)
			return out
		}
	}

	packetSize := f.cfg.PacketSize

	// Step 2: resynchronization. Always uses strict marker checks,
	// regardless of CheckPacketIntegrity, so a mid-stream start can be
	// located.
	errFlags := uint8(0)
	for i+packetSize <= len(b) {
		pkt, consumedFlags, emitted := f.tryStrictEmit(u, b, i, errFlags)
		if emitted {
			out = append(out, pkt)
			i += packetSize
			errFlags = 0
			break
		}
		errFlags = consumedFlags
		i++
	}

	// Step 3: bulk consumption, using the configured mode.
	if f.cfg.CheckPacketIntegrity {
		out = f.consumeStrict(out, u, b, &i, &errFlags)
	} else {
		out = f.consumeRelaxed(out, u, b, &i)
	}

	// Step 4: store leftovers.
	if i < len(b) {
		f.leftovers = append(f.leftovers[:0], b[i:]...)
		f.leftoversOrigin = u
	} else {
		f.leftovers = f.leftovers[:0]
	}

	return out
}

// completeLeftovers attempts to complete the packet started by a
// previous call's leftover bytes. It returns (packet-or-nil, bytes of b
// consumed, true) when there were enough bytes in b to attempt
// completion (whether or not markers validated), or (nil, 0, false) when
// b does not have enough bytes to even attempt completion.
func (f *Framer) completeLeftovers(u uint16, b []byte) (*SamplePacket, int, bool) {
	k := len(f.leftovers)
	packetSize := f.cfg.PacketSize
	needed := packetSize - k

	if len(b) < needed {
		return nil, 0, false
	}

	attempt := make([]byte, 0, packetSize)
	attempt = append(attempt, f.leftovers...)
	attempt = append(attempt, b[:needed]...)

	origin := f.leftoversOrigin
	f.leftovers = f.leftovers[:0]

	if !f.hasMarkerAt(attempt, 0, f.cfg.StartMarker) || !f.hasMarkerAt(attempt, packetSize-len(f.cfg.StopMarker), f.cfg.StopMarker) {
		f.log.Warn("leftover completion failed marker check, dropping packet",
			"origin_index", origin, "end_index", u)
		return nil, needed, true
	}

	pkt := f.decode(attempt, 0, 0)
	pkt.StartUDPPacketIndex = origin
	pkt.EndUDPPacketIndex = u
	return &pkt, needed, true
}

// tryStrictEmit attempts one strict-mode packet attempt at offset i. It
// returns the accumulated error flags when nothing was emitted (stop
// absent sets FlagStopMarkerMissing and the caller should advance by one
// byte; stop present but start absent still emits, per spec).
func (f *Framer) tryStrictEmit(u uint16, b []byte, i int, accumulated uint8) (SamplePacket, uint8, bool) {
	packetSize := f.cfg.PacketSize
	stopOffset := i + packetSize - len(f.cfg.StopMarker)

	if !f.hasMarkerAt(b, stopOffset, f.cfg.StopMarker) {
		return SamplePacket{}, accumulated | FlagStopMarkerMissing, false
	}

	if f.hasMarkerAt(b, i, f.cfg.StartMarker) {
		pkt := f.decode(b, i, 0)
		pkt.StartUDPPacketIndex = u
		pkt.EndUDPPacketIndex = u
		return pkt, 0, true
	}

	f.log.Warn("start marker not found at expected position", "ingress_index", u, "offset", i)
	pkt := f.decode(b, i, accumulated|FlagStartMarkerMissing)
	pkt.StartUDPPacketIndex = u
	pkt.EndUDPPacketIndex = u
	return pkt, accumulated | FlagStartMarkerMissing, true
}

// consumeStrict continues bulk consumption in strict mode from *i
// onward, mutating *i and *errFlags in place.
func (f *Framer) consumeStrict(out []SamplePacket, u uint16, b []byte, i *int, errFlags *uint8) []SamplePacket {
	packetSize := f.cfg.PacketSize
	for *i+packetSize <= len(b) {
		pkt, flags, emitted := f.tryStrictEmit(u, b, *i, *errFlags)
		if emitted {
			out = append(out, pkt)
			*i += packetSize
			*errFlags = 0
			continue
		}
		*errFlags = flags
		*i++
	}
	return out
}

// consumeRelaxed emits every packet_size-byte slice unconditionally.
func (f *Framer) consumeRelaxed(out []SamplePacket, u uint16, b []byte, i *int) []SamplePacket {
	packetSize := f.cfg.PacketSize
	for *i+packetSize <= len(b) {
		pkt := f.decode(b, *i, 0)
		pkt.StartUDPPacketIndex = u
		pkt.EndUDPPacketIndex = u
		out = append(out, pkt)
		*i += packetSize
	}
	return out
}

func (f *Framer) hasMarkerAt(b []byte, offset int, marker []byte) bool {
	if offset < 0 || offset+len(marker) > len(b) {
		return false
	}
	for j, m := range marker {
		if b[offset+j] != m {
			return false
		}
	}
	return true
}

// decode extracts channel, trigger time, window positions, and raw
// samples starting immediately after the start marker at offset i, and
// assigns the next parser index (post-incremented, modulo 2^16).
func (f *Framer) decode(b []byte, i int, info uint8) SamplePacket {
	base := i + len(f.cfg.StartMarker)
	cfg := f.cfg

	channel := b[base] & cfg.ChanMask

	hi := uint16(b[base+1])<<8 | uint16(b[base+2])
	lo := uint16(b[base+3])<<8 | uint16(b[base+4])
	triggerTime := (uint32(hi) << cfg.TimingShift) | (uint32(lo) & uint32(cfg.TimingMask))

	logicalPosition := (uint16(b[base+5]&cfg.AbsWindMask) << (8 - cfg.EvtWindShift)) |
		(uint16(b[base+6]>>cfg.EvtWindShift) & uint16(cfg.EvtWindMask))
	physicalPosition := uint16(b[base+6] & cfg.AbsWindMask)

	var raw [64]byte
	copy(raw[:], b[base+7:base+7+64])

	idx := f.parserIndex
	f.parserIndex++ // wraps naturally at 2^16

	// FlagStopMarkerMissing never reaches here on its own: decode only
	// runs once the stop marker at this offset has been confirmed
	// present, so an emitted packet's flags are either clean or carry
	// FlagStartMarkerMissing (possibly alongside a stale
	// FlagStopMarkerMissing from an earlier resync attempt).
	if info&FlagStartMarkerMissing != 0 {
		metrics.FramingOutcomes.WithLabelValues(metrics.OutcomeStartMissed).Inc()
	} else {
		metrics.FramingOutcomes.WithLabelValues(metrics.OutcomeClean).Inc()
	}

	return SamplePacket{
		Header:           cfg.ConstructedHeader,
		Info:             info,
		Channel:          channel,
		TriggerTime:      triggerTime,
		LogicalPosition:  logicalPosition,
		PhysicalPosition: physicalPosition,
		RawSamples:       raw,
		ParserIndex:      idx,
		Footer:           cfg.ConstructedFooter,
	}
}
