package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2, cfg.FramesInFlight)
	require.Equal(t, driver.Samples4, cfg.Samples)
	require.Equal(t, swapchain.PreferredImageCount, cfg.SwapchainOptions().ImageCount)
	require.Equal(t, target.DefaultClearColor, cfg.TargetOptions().ClearColor)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{"no frames in flight", func(c *Config) { c.FramesInFlight = 0 }},
		{"zero fence timeout", func(c *Config) { c.FenceTimeout = 0 }},
		{"negative acquire timeout", func(c *Config) { c.AcquireTimeout = -time.Second }},
		{"zero samples", func(c *Config) { c.Samples = 0 }},
		{"three samples", func(c *Config) { c.Samples = 3 }},
		{"no images", func(c *Config) { c.ImageCount = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.FramesInFlight = 1
	cfg.Samples = driver.Samples1
	require.NoError(t, cfg.Validate())
}
