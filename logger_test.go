package framepacer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	defer SetLogger(nil)

	require.False(t, Logger().Enabled(context.Background(), slog.LevelError), "silent by default")

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))
	SetLogger(custom)
	require.Same(t, custom, Logger())
	require.Same(t, custom, LoggerOr(nil))

	own := slog.New(slog.NewTextHandler(&buf, nil))
	require.Same(t, own, LoggerOr(own))

	Logger().Info("swapchain created", "images", 3)
	require.Contains(t, buf.String(), "images=3")

	SetLogger(nil)
	require.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}
