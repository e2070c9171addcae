package framer_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/framer"
	"github.com/scopelabs/daqpipe/internal/ingress"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildBody produces the 71-byte body (channel, trigger time, positions,
// 64 raw samples) for a given channel/trigger-time/logical/physical
// combination, matching the bit layout decode expects.
func buildBody(channel uint8, triggerTime uint32, logicalPos, physicalPos uint8) []byte {
	body := make([]byte, 71)
	body[0] = channel
	hi := uint16(triggerTime >> 12)
	lo := uint16(triggerTime & 0xFFF)
	body[1] = byte(hi >> 8)
	body[2] = byte(hi)
	body[3] = byte(lo >> 8)
	body[4] = byte(lo)
	body[5] = (logicalPos >> 2) & 0x3F
	body[6] = (physicalPos & 0x3F) | ((logicalPos & 0x3F) << 6 & 0xC0)
	for i := 0; i < 64; i++ {
		body[7+i] = byte(i)
	}
	return body
}

func buildPacket(cfg config.FramerConfig, channel uint8, triggerTime uint32, logicalPos, physicalPos uint8) []byte {
	var b []byte
	b = append(b, cfg.StartMarker...)
	b = append(b, buildBody(channel, triggerTime, logicalPos, physicalPos)...)
	b = append(b, cfg.StopMarker...)
	return b
}

func TestFramer_SingleCleanPacket(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	raw := buildPacket(cfg, 3, 123456, 2, 1)
	out := f.Process([]ingress.Packet{{Index: 0, Payload: raw}})

	require.Len(t, out, 1)
	pkt := out[0]
	require.Equal(t, uint8(3), pkt.Channel)
	require.EqualValues(t, 123456, pkt.TriggerTime)
	require.EqualValues(t, 0, pkt.ParserIndex)
	require.Equal(t, uint8(0), pkt.ErrorCode())
	require.EqualValues(t, 0, pkt.StartUDPPacketIndex)
	require.EqualValues(t, 0, pkt.EndUDPPacketIndex)
	require.Equal(t, cfg.ConstructedHeader, pkt.Header)
	require.Equal(t, cfg.ConstructedFooter, pkt.Footer)
}

func TestFramer_MultiplePacketsInOneDatagram(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	var raw []byte
	raw = append(raw, buildPacket(cfg, 1, 10, 0, 0)...)
	raw = append(raw, buildPacket(cfg, 2, 20, 0, 0)...)
	raw = append(raw, buildPacket(cfg, 3, 30, 0, 0)...)

	out := f.Process([]ingress.Packet{{Index: 5, Payload: raw}})
	require.Len(t, out, 3)
	for i, pkt := range out {
		require.EqualValues(t, i, pkt.ParserIndex)
		require.EqualValues(t, 5, pkt.StartUDPPacketIndex)
		require.EqualValues(t, 5, pkt.EndUDPPacketIndex)
	}
	require.Equal(t, uint8(1), out[0].Channel)
	require.Equal(t, uint8(2), out[1].Channel)
	require.Equal(t, uint8(3), out[2].Channel)
}

func TestFramer_StraddlesDatagramBoundary(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	full := buildPacket(cfg, 7, 999, 1, 1)
	split := len(full) / 2

	first := full[:split]
	second := full[split:]

	out1 := f.Process([]ingress.Packet{{Index: 0, Payload: first}})
	require.Empty(t, out1)

	out2 := f.Process([]ingress.Packet{{Index: 1, Payload: second}})
	require.Len(t, out2, 1)
	pkt := out2[0]
	require.Equal(t, uint8(7), pkt.Channel)
	require.EqualValues(t, 999, pkt.TriggerTime)
	require.EqualValues(t, 0, pkt.StartUDPPacketIndex)
	require.EqualValues(t, 1, pkt.EndUDPPacketIndex)
}

func TestFramer_ParserIndexContinuityAcrossCalls(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	raw1 := buildPacket(cfg, 1, 1, 0, 0)
	raw2 := buildPacket(cfg, 2, 2, 0, 0)

	out1 := f.Process([]ingress.Packet{{Index: 0, Payload: raw1}})
	out2 := f.Process([]ingress.Packet{{Index: 1, Payload: raw2}})

	require.Len(t, out1, 1)
	require.Len(t, out2, 1)
	require.EqualValues(t, 0, out1[0].ParserIndex)
	require.EqualValues(t, 1, out2[0].ParserIndex)
}

func TestFramer_ResyncAfterGarbagePrefix(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	garbage := []byte{0x01, 0x02, 0x03}
	raw := append(garbage, buildPacket(cfg, 4, 44, 0, 0)...)

	out := f.Process([]ingress.Packet{{Index: 0, Payload: raw}})
	require.Len(t, out, 1)
	require.Equal(t, uint8(4), out[0].Channel)
}

func TestFramer_RelaxedModeConsumesUnconditionally(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	cfg.CheckPacketIntegrity = false
	f := framer.New(discardLogger(), cfg)

	var raw []byte
	raw = append(raw, buildPacket(cfg, 1, 10, 0, 0)...)
	raw = append(raw, buildPacket(cfg, 2, 20, 0, 0)...)

	out := f.Process([]ingress.Packet{{Index: 0, Payload: raw}})
	require.Len(t, out, 2)
	for _, pkt := range out {
		require.Equal(t, uint8(0), pkt.Info)
	}
}

func TestFramer_StartMarkerMissingFlagsAndEmitsAnyway(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	raw := buildPacket(cfg, 5, 55, 0, 0)
	raw[0] = 0xFF // corrupt the start marker, stop marker stays intact

	out := f.Process([]ingress.Packet{{Index: 0, Payload: raw}})
	require.Len(t, out, 1)
	require.True(t, out[0].HasFlag(framer.FlagStartMarkerMissing))
}

func TestFramer_TrailingLeftoverCarriesOver(t *testing.T) {
	cfg := config.DefaultFramerConfig()
	f := framer.New(discardLogger(), cfg)

	full := buildPacket(cfg, 9, 900, 0, 0)
	partial := full[:len(full)-3]

	out := f.Process([]ingress.Packet{{Index: 0, Payload: partial}})
	require.Empty(t, out)

	rest := full[len(full)-3:]
	out2 := f.Process([]ingress.Packet{{Index: 1, Payload: rest}})
	require.Len(t, out2, 1)
	require.Equal(t, uint8(9), out2[0].Channel)
}
