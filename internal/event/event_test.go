package event_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/scopelabs/daqpipe/config"
	"github.com/scopelabs/daqpipe/internal/event"
	"github.com/scopelabs/daqpipe/internal/framer"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scenarioAssembler(t *testing.T, windows uint8, channels []int) (*event.Assembler, *event.Store) {
	t.Helper()
	cfg := config.DefaultAssemblerConfig()
	cfg.Windows = windows
	cfg.Channels = channels
	cfg.MaxTriggerTime = 16_777_216
	cfg.TimeThreshold = 5000
	cfg.TriggerType = config.TriggerExternal

	store := event.NewStore(discardLogger(), cfg.MaxEvents)
	asm := event.New(discardLogger(), cfg, 74, store)
	return asm, store
}

func samplePacket(channel uint8, triggerTime uint32) framer.SamplePacket {
	return framer.SamplePacket{Channel: channel, TriggerTime: triggerTime}
}

func TestAssembler_S3_CloseTriggersCoalesce(t *testing.T) {
	asm, store := scenarioAssembler(t, 1, []int{0, 1})
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(1, 1500), ctx))

	require.Equal(t, 1, store.Len())
	e, err := store.Latest()
	require.NoError(t, err)
	require.Equal(t, 2, e.NumPackets())
	require.True(t, e.IsComplete())
}

func TestAssembler_S4_FarTriggersSplit(t *testing.T) {
	asm, store := scenarioAssembler(t, 1, []int{0, 1})
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(1, 10000), ctx))

	require.Equal(t, 2, store.Len())
	e0, _ := store.At(0)
	e1, _ := store.At(1)
	require.Equal(t, 1, e0.NumPackets())
	require.Equal(t, 1, e1.NumPackets())
}

func TestAssembler_S5_WrapAroundCoalesces(t *testing.T) {
	asm, store := scenarioAssembler(t, 1, []int{0, 1})
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 16_777_200), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(1, 100), ctx))

	require.Equal(t, 1, store.Len())
	e, err := store.Latest()
	require.NoError(t, err)
	require.Equal(t, 2, e.NumPackets())
}

func TestAssembler_P4_EventCohesion(t *testing.T) {
	asm, store := scenarioAssembler(t, 4, []int{0, 1, 2, 3})
	ctx := &event.Context{}

	times := []uint32{1000, 1200, 900, 1100, 50000}
	for i, tt := range times {
		require.NoError(t, asm.IngestPacket(samplePacket(uint8(i%4), tt), ctx))
	}

	for i := 0; i < store.Len(); i++ {
		e, err := store.At(i)
		require.NoError(t, err)
		for _, p := range e.Packets {
			diff := p.TriggerTime - e.ReferenceTime
			if p.TriggerTime < e.ReferenceTime {
				diff = e.ReferenceTime - p.TriggerTime
			}
			require.LessOrEqual(t, diff, e.TimeThreshold)
		}
	}
}

func TestAssembler_SafetyZoneLookback(t *testing.T) {
	asm, store := scenarioAssembler(t, 4, []int{0, 1, 2, 3})
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(1, 20000), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(2, 1050), ctx))

	require.Equal(t, 2, store.Len())
	e0, _ := store.At(0)
	require.Equal(t, 2, e0.NumPackets())
}

func TestStore_P5_OrderingAndOverflow(t *testing.T) {
	store := event.NewStore(discardLogger(), 2)
	cfg := config.DefaultAssemblerConfig()
	cfg.MaxEvents = 2

	asm := event.New(discardLogger(), cfg, 74, store)
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	require.NoError(t, asm.IngestPacket(samplePacket(0, 100000), ctx))

	var overflowed bool
	store.SetOverflowCallback(func() { overflowed = true })

	err := asm.IngestPacket(samplePacket(0, 5_000_000), ctx)
	require.Error(t, err)
	require.True(t, overflowed)
	require.Equal(t, 2, store.Len())

	e0, _ := store.At(0)
	e1, _ := store.At(1)
	require.Less(t, e0.Index, e1.Index)
	require.False(t, e1.CreationTimestamp().Before(e0.CreationTimestamp()))
}

func TestStore_LatestAndAtOutOfRange(t *testing.T) {
	store := event.NewStore(discardLogger(), 4)
	_, err := store.Latest()
	require.Error(t, err)
	_, err = store.At(0)
	require.Error(t, err)
}

func TestStore_EventsAfterTimestamp(t *testing.T) {
	store := event.NewStore(discardLogger(), 10)
	cfg := config.DefaultAssemblerConfig()
	cfg.TimeThreshold = 1
	asm := event.New(discardLogger(), cfg, 74, store)
	ctx := &event.Context{}

	for i := 0; i < 5; i++ {
		require.NoError(t, asm.IngestPacket(samplePacket(0, uint32(i*100000)), ctx))
		time.Sleep(time.Millisecond)
	}

	all := store.EventsFromIndex(0)
	require.Len(t, all, 5)

	seedTs := all[2].CreationTimestamp()
	after, idx := store.EventsAfterTimestamp(seedTs, 0)
	require.GreaterOrEqual(t, len(after), 3)
	require.Equal(t, 2, idx)
}

func TestStore_RemoveBeforeIndex(t *testing.T) {
	store := event.NewStore(discardLogger(), 10)
	cfg := config.DefaultAssemblerConfig()
	cfg.TimeThreshold = 1
	asm := event.New(discardLogger(), cfg, 74, store)
	ctx := &event.Context{}

	for i := 0; i < 4; i++ {
		require.NoError(t, asm.IngestPacket(samplePacket(0, uint32(i*1000000)), ctx))
	}

	dropped := store.RemoveBeforeIndex(2)
	require.Equal(t, 2, dropped)
	require.Equal(t, 2, store.Len())
}

func TestEvent_PacketOverflowIsFatal(t *testing.T) {
	cfg := config.DefaultAssemblerConfig()
	cfg.Windows = 1
	cfg.Channels = []int{0}
	store := event.NewStore(discardLogger(), 10)
	asm := event.New(discardLogger(), cfg, 74, store)
	ctx := &event.Context{}

	maxPackets := cfg.MaxPacketsPerEvent()
	for i := 0; i < maxPackets; i++ {
		require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	}
	err := asm.IngestPacket(samplePacket(0, 1000), ctx)
	require.Error(t, err)
}

func TestEvent_CompletionMonotonicity_P9(t *testing.T) {
	cfg := config.DefaultAssemblerConfig()
	cfg.Windows = 1
	cfg.Channels = []int{0, 1}
	store := event.NewStore(discardLogger(), 10)
	asm := event.New(discardLogger(), cfg, 74, store)
	ctx := &event.Context{}

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	e, _ := store.Latest()
	require.False(t, e.IsComplete())

	require.NoError(t, asm.IngestPacket(samplePacket(1, 1000), ctx))
	require.True(t, e.IsComplete())

	require.NoError(t, asm.IngestPacket(samplePacket(0, 1000), ctx))
	require.True(t, e.IsComplete())
}
