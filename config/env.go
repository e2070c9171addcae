package config

import (
	"os"
	"strconv"
)

// ApplyReceiverEnvOverrides overrides receiver fields from environment
// variables when set, following the same "default, then override from
// env if present" pattern used across the rest of this codebase's
// configuration loading.
func ApplyReceiverEnvOverrides(c *ReceiverConfig) {
	if addr := os.Getenv("DAQPIPE_UDP_ADDRESS"); addr != "" {
		c.Address = addr
	}
	if port := os.Getenv("DAQPIPE_UDP_PORT"); port != "" {
		if v, err := strconv.ParseUint(port, 10, 16); err == nil {
			c.Port = uint16(v)
		}
	}
}
