package frame

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
)

// Config tunes the frame loop. Start from DefaultConfig.
type Config struct {
	// FramesInFlight is the number of frame slots, the most frames the CPU
	// may run ahead of the GPU.
	FramesInFlight int
	// FenceTimeout bounds the wait for a frame slot to retire. Running
	// into it is fatal.
	FenceTimeout time.Duration
	// AcquireTimeout bounds the wait for a presentable image. Running into
	// it skips the tick.
	AcquireTimeout time.Duration
	// Samples is the requested MSAA sample count.
	Samples driver.SampleCount
	// ImageCount is the preferred number of swapchain images.
	ImageCount int
	ClearColor [4]float32
	Logger     *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight: 2,
		FenceTimeout:   4 * time.Second,
		AcquireTimeout: 4 * time.Second,
		Samples:        driver.Samples4,
		ImageCount:     swapchain.PreferredImageCount,
		ClearColor:     target.DefaultClearColor,
	}
}

func (c Config) Validate() error {
	if c.FramesInFlight < 1 {
		return errors.Newf("frames in flight must be at least 1, got %d", c.FramesInFlight)
	}
	if c.FenceTimeout <= 0 {
		return errors.Newf("fence timeout must be positive, got %s", c.FenceTimeout)
	}
	if c.AcquireTimeout <= 0 {
		return errors.Newf("acquire timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.Samples < driver.Samples1 || c.Samples&(c.Samples-1) != 0 {
		return errors.Newf("sample count must be a power of two, got %d", c.Samples)
	}
	if c.ImageCount < 1 {
		return errors.Newf("image count must be at least 1, got %d", c.ImageCount)
	}
	return nil
}

// SwapchainOptions returns the swapchain options matching c.
func (c Config) SwapchainOptions() swapchain.Options {
	return swapchain.Options{ImageCount: c.ImageCount, Logger: c.Logger}
}

// TargetOptions returns the render target options matching c.
func (c Config) TargetOptions() target.Options {
	return target.Options{Samples: c.Samples, ClearColor: c.ClearColor, Logger: c.Logger}
}
