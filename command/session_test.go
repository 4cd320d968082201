package command

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/internal/fakedriver"
)

func TestSessionFinish(t *testing.T) {
	dev, pool := newTestPool(t)

	session, err := pool.Begin()
	require.NoError(t, err)
	defer session.Release()

	cb := session.Buffer().(*fakedriver.CommandBuffer)
	cb.DrawIndexed(3)
	require.Equal(t, []string{"DrawIndexed"}, cb.Commands())

	require.NoError(t, session.Finish())
	require.Equal(t, 1, dev.Count("Submit"))
	require.Equal(t, 1, dev.Count("Queue.WaitIdle"))
	require.Zero(t, dev.Live("CommandBuffer"))

	require.True(t, errors.Is(session.Finish(), ErrInvalidState))
	require.Equal(t, 1, dev.Count("Submit"))
}

func TestSessionReleaseWithoutFinish(t *testing.T) {
	dev, pool := newTestPool(t)

	session, err := pool.Begin()
	require.NoError(t, err)
	cb := session.Buffer().(*fakedriver.CommandBuffer)
	session.Release()
	session.Release()

	require.False(t, cb.Ended(), "released without ending")

	require.Zero(t, dev.Count("Submit"))
	require.Zero(t, dev.Live("CommandBuffer"))
	require.Empty(t, dev.Misuse())
}

func TestPoolRun(t *testing.T) {
	dev, pool := newTestPool(t)

	var recorded driver.CommandBuffer
	err := pool.Run(func(cmd driver.CommandBuffer) error {
		recorded = cmd
		cmd.DrawIndexed(6)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []*fakedriver.CommandBuffer{recorded.(*fakedriver.CommandBuffer)}, dev.GraphicsQueue().(*fakedriver.Queue).Submitted())
	require.Zero(t, dev.Live("CommandBuffer"))
}

func TestPoolRunRecordFailure(t *testing.T) {
	dev, pool := newTestPool(t)

	boom := errors.New("boom")
	err := pool.Run(func(cmd driver.CommandBuffer) error {
		return boom
	})
	require.True(t, errors.Is(err, boom))
	require.Zero(t, dev.Count("Submit"))
	require.Zero(t, dev.Live("CommandBuffer"))
}

func TestPoolRunSubmitFailure(t *testing.T) {
	dev, pool := newTestPool(t)

	dev.FailNext("Submit", driver.ErrDeviceLost)
	err := pool.Run(func(cmd driver.CommandBuffer) error { return nil })
	require.True(t, errors.Is(err, driver.ErrDeviceLost))
	require.Zero(t, dev.Live("CommandBuffer"))
	require.Empty(t, dev.Misuse())
}

func TestPoolAllocateFailure(t *testing.T) {
	dev, pool := newTestPool(t)

	dev.FailNext("AllocateCommandBuffer", errors.New("out of pool memory"))
	_, err := pool.Begin()
	require.Error(t, err)
	require.Zero(t, dev.Live("CommandBuffer"))
}
