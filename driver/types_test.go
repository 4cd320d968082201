package driver

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestExtent(t *testing.T) {
	require.True(t, Extent{}.Empty())
	require.True(t, Extent{Width: 800}.Empty())
	require.True(t, UndefinedExtent.Empty())
	require.False(t, Extent{Width: 1, Height: 1}.Empty())
	require.Equal(t, "800x600", Extent{Width: 800, Height: 600}.String())
}

func TestMemoryProperty(t *testing.T) {
	shared := MemoryHostVisible | MemoryHostCoherent
	require.True(t, shared.Has(MemoryHostVisible))
	require.True(t, shared.Has(0))
	require.False(t, shared.Has(MemoryHostVisible|MemoryDeviceLocal))
	require.Equal(t, "HostVisible|HostCoherent", shared.String())
	require.Equal(t, "None", MemoryProperty(0).String())
}

func TestFormat(t *testing.T) {
	require.Equal(t, "D32_SFLOAT_S8_UINT", FormatD32FloatS8UInt.String())
	require.Equal(t, "Format(99)", Format(99).String())
	require.True(t, FormatD24UNormS8UInt.IsDepth())
	require.True(t, FormatD24UNormS8UInt.HasStencil())
	require.True(t, FormatD32Float.IsDepth())
	require.False(t, FormatD32Float.HasStencil())
	require.False(t, FormatB8G8R8A8SRGB.IsDepth())
}

func TestImageLayoutString(t *testing.T) {
	require.Equal(t, "PresentSrc", LayoutPresentSrc.String())
	require.Equal(t, "ImageLayout(42)", ImageLayout(42).String())
}

func TestIsSwapchainStale(t *testing.T) {
	require.True(t, IsSwapchainStale(errors.Wrap(ErrOutOfDate, "acquire")))
	require.True(t, IsSwapchainStale(errors.Wrap(ErrSuboptimal, "present")))
	require.False(t, IsSwapchainStale(errors.Wrap(ErrTimeout, "acquire")))
	require.False(t, IsSwapchainStale(nil))
}
