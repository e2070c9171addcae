package config_test

import (
	"testing"

	"github.com/scopelabs/daqpipe/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultFramerConfig_Validates(t *testing.T) {
	require.NoError(t, config.DefaultFramerConfig().Validate())
}

func TestFramerConfig_RejectsUndersizedPacket(t *testing.T) {
	c := config.DefaultFramerConfig()
	c.PacketSize = 1
	require.Error(t, c.Validate())
}

func TestDefaultAssemblerConfig_Validates(t *testing.T) {
	require.NoError(t, config.DefaultAssemblerConfig().Validate())
}

func TestAssemblerConfig_ChannelMask(t *testing.T) {
	c := config.DefaultAssemblerConfig()
	c.Channels = []int{0, 1, 3, 63}
	mask := c.ChannelMask()
	require.Equal(t, uint64(1<<0|1<<1|1<<3|1<<63), mask)
}

func TestAssemblerConfig_MaxPacketsPerEvent(t *testing.T) {
	c := config.DefaultAssemblerConfig()
	c.Channels = []int{0, 1}
	c.Windows = 4
	require.Equal(t, 4*2+5, c.MaxPacketsPerEvent())
}

func TestAssemblerConfig_SafetyBufferCounterMaxDefaultsToTenPercent(t *testing.T) {
	c := config.DefaultAssemblerConfig()
	c.Channels = make([]int, 32)
	for i := range c.Channels {
		c.Channels[i] = i
	}
	c.Windows = 4
	require.Equal(t, 13, c.SafetyBufferCounterMax())
}

func TestAssemblerConfig_SafetyBufferCounterMaxOverride(t *testing.T) {
	c := config.DefaultAssemblerConfig()
	c.PostEventSafetyBufferCounterMax = 7
	require.Equal(t, 7, c.SafetyBufferCounterMax())
}

func TestTriggerType_InfoBitsRoundTrip(t *testing.T) {
	require.Equal(t, uint8(0b01<<4), config.TriggerExternal.InfoBits())
	require.Equal(t, uint8(0b10<<4), config.TriggerInternal.InfoBits())
	require.Equal(t, uint8(0b11<<4), config.TriggerImmediate.InfoBits())
	require.Equal(t, uint8(0), config.TriggerUnknown.InfoBits())
}

func TestReceiverConfig_RejectsUndersizedMaxPacketSize(t *testing.T) {
	c := config.DefaultReceiverConfig()
	c.MaxPacketSize = 16
	require.Error(t, c.Validate())
}

func TestOrchestratorConfig_RejectsNegativeSleep(t *testing.T) {
	c := config.DefaultOrchestratorConfig()
	c.SleepMicros = -1
	require.Error(t, c.Validate())
}
