package command

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/internal/fakedriver"
)

func newTestPool(t *testing.T) (*fakedriver.Device, *Pool) {
	t.Helper()
	dev := fakedriver.New()
	pool, err := NewPool(dev, dev.GraphicsQueue())
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return dev, pool
}

func TestRecorderLifecycle(t *testing.T) {
	dev, pool := newTestPool(t)

	rec, err := pool.Allocate()
	require.NoError(t, err)
	require.Equal(t, StateReady, rec.State())

	for frame := 0; frame < 3; frame++ {
		require.NoError(t, rec.Begin())
		require.Equal(t, StateRecording, rec.State())
		require.NoError(t, rec.End())
		require.Equal(t, StateEnded, rec.State())

		fence, err := dev.CreateFence(false)
		require.NoError(t, err)
		require.NoError(t, rec.Submit(dev.GraphicsQueue(), Sync{}, fence))
		require.Equal(t, StateSubmitted, rec.State())

		require.NoError(t, fence.Wait(0))
		fence.Destroy()
		require.NoError(t, rec.Reset())
		require.Equal(t, StateReady, rec.State())
	}

	rec.Free()
	require.Equal(t, StateNotAllocated, rec.State())
	rec.Free()
	require.Zero(t, dev.Live("CommandBuffer"))
	require.Empty(t, dev.Misuse())
}

func TestRecorderRejectsOutOfOrderCalls(t *testing.T) {
	dev, pool := newTestPool(t)

	rec, err := pool.Allocate()
	require.NoError(t, err)
	defer rec.Free()

	require.True(t, errors.Is(rec.End(), ErrInvalidState))
	require.True(t, errors.Is(rec.Submit(dev.GraphicsQueue(), Sync{}, nil), ErrInvalidState))

	require.NoError(t, rec.Begin())
	require.True(t, errors.Is(rec.Begin(), ErrInvalidState))
	require.True(t, errors.Is(rec.Submit(dev.GraphicsQueue(), Sync{}, nil), ErrInvalidState))
	require.Equal(t, StateRecording, rec.State())

	require.NoError(t, rec.End())
	require.True(t, errors.Is(rec.End(), ErrInvalidState))
	require.True(t, errors.Is(rec.Begin(), ErrInvalidState))

	// Nothing reached the driver out of order.
	require.Empty(t, dev.Misuse())
	require.Zero(t, dev.Count("Submit"))
}

func TestRecorderResetFromAnyAllocatedState(t *testing.T) {
	_, pool := newTestPool(t)

	rec, err := pool.Allocate()
	require.NoError(t, err)

	require.NoError(t, rec.Begin())
	require.NoError(t, rec.Reset())
	require.Equal(t, StateReady, rec.State())

	require.NoError(t, rec.Begin())
	require.NoError(t, rec.End())
	require.NoError(t, rec.Reset())
	require.Equal(t, StateReady, rec.State())

	rec.Free()
	require.True(t, errors.Is(rec.Reset(), ErrInvalidState))
	require.True(t, errors.Is(rec.Begin(), ErrInvalidState))
}

func TestRecorderSubmitFailureKeepsState(t *testing.T) {
	dev, pool := newTestPool(t)

	rec, err := pool.Allocate()
	require.NoError(t, err)
	defer rec.Free()

	require.NoError(t, rec.Begin())
	require.NoError(t, rec.End())

	dev.FailNext("Submit", driver.ErrDeviceLost)
	err = rec.Submit(dev.GraphicsQueue(), Sync{}, nil)
	require.True(t, errors.Is(err, driver.ErrDeviceLost))
	require.Equal(t, StateEnded, rec.State())
}

func TestRecorderSubmitSync(t *testing.T) {
	dev, pool := newTestPool(t)

	rec, err := pool.Allocate()
	require.NoError(t, err)
	defer rec.Free()

	signal, err := dev.CreateSemaphore()
	require.NoError(t, err)
	defer signal.Destroy()

	require.NoError(t, rec.Begin())
	require.NoError(t, rec.End())
	require.NoError(t, rec.Submit(dev.GraphicsQueue(), Sync{Signal: []driver.Semaphore{signal}}, nil))

	// A second submission may wait on what the first signaled.
	next, err := pool.Allocate()
	require.NoError(t, err)
	defer next.Free()
	require.NoError(t, next.Begin())
	require.NoError(t, next.End())
	require.NoError(t, next.Submit(dev.GraphicsQueue(), Sync{Wait: []driver.Semaphore{signal}}, nil))

	require.Empty(t, dev.Misuse())
	require.Len(t, dev.GraphicsQueue().(*fakedriver.Queue).Submitted(), 2)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Recording", StateRecording.String())
	require.Equal(t, "State(9)", State(9).String())
}
