package resource

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/internal/fakedriver"
)

type point struct {
	X, Y float32
}

func newPool(t *testing.T, dev *fakedriver.Device) *command.Pool {
	t.Helper()
	pool, err := command.NewPool(dev, dev.GraphicsQueue())
	require.NoError(t, err)
	t.Cleanup(pool.Destroy)
	return pool
}

func TestFindMemoryType(t *testing.T) {
	types := fakedriver.New().MemoryTypes()

	for _, tc := range []struct {
		name     string
		typeBits uint32
		want     driver.MemoryProperty
		index    int
	}{
		{"device local", 0b111, DeviceLocal, 0},
		{"host shared", 0b111, HostShared, 1},
		{"host cached", 0b111, HostShared | driver.MemoryHostCached, 2},
		{"masked", 0b100, HostShared, 2},
		{"no properties", 0b010, 0, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			index, err := FindMemoryType(types, tc.typeBits, tc.want)
			require.NoError(t, err)
			require.Equal(t, tc.index, index)
		})
	}

	_, err := FindMemoryType(types, 0b111, driver.MemoryLazilyAllocated)
	require.True(t, errors.Is(err, driver.ErrNoMemoryType))

	_, err = FindMemoryType(types, 0b001, HostShared)
	require.True(t, errors.Is(err, driver.ErrNoMemoryType))
}

func TestStagingBufferRoundTrip(t *testing.T) {
	dev := fakedriver.New()

	buf, err := NewStagingBuffer[uint32](dev, 4)
	require.NoError(t, err)
	require.Equal(t, 4, buf.Len())
	require.Equal(t, 16, buf.Size())
	require.Equal(t, 1, buf.Handle().(*fakedriver.Buffer).Memory().Type())

	require.NoError(t, buf.Write(1, 2, 3, 4))
	got, err := buf.Read()
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3, 4}, got)

	buf.Destroy()
	buf.Destroy()
	require.Zero(t, dev.Live("Buffer"))
	require.Zero(t, dev.Live("Memory"))
	require.Empty(t, dev.Misuse())
}

func TestBufferWriteLength(t *testing.T) {
	dev := fakedriver.New()
	buf, err := NewUniformBuffer[point](dev)
	require.NoError(t, err)
	defer buf.Destroy()

	require.Error(t, buf.Write())
	require.Error(t, buf.Write(point{}, point{}))
	require.NoError(t, buf.Write(point{X: 1, Y: 2}))
}

func TestBufferRejectsUnsizedElements(t *testing.T) {
	dev := fakedriver.New()

	_, err := NewStagingBuffer[string](dev, 1)
	require.Error(t, err)

	_, err = NewStagingBuffer[uint32](dev, 0)
	require.Error(t, err)

	require.Zero(t, dev.Live("Buffer"))
}

func TestBufferWithoutMemoryType(t *testing.T) {
	dev := fakedriver.New()
	dev.SetMemoryTypes([]driver.MemoryType{{Properties: driver.MemoryDeviceLocal}}, 0b1)

	_, err := NewUniformBuffer[point](dev)
	require.True(t, errors.Is(err, driver.ErrNoMemoryType))
	require.Zero(t, dev.Live("Buffer"))
	require.Zero(t, dev.Live("Memory"))
}

func TestVertexBufferUpload(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	points := []point{{0, 1}, {2, 3}, {4, 5}}
	buf, err := NewVertexBuffer(dev, pool, points)
	require.NoError(t, err)
	defer buf.Destroy()

	handle := buf.Handle().(*fakedriver.Buffer)
	require.Equal(t, 0, handle.Memory().Type())
	require.NotZero(t, handle.Usage()&driver.BufferUsageVertex)

	uploaded := make([]point, len(points))
	require.NoError(t, binary.Read(bytes.NewReader(handle.Memory().Bytes()), binary.NativeEndian, uploaded))
	require.Equal(t, points, uploaded)

	// The staging buffer and the one-shot command buffer are gone.
	require.Equal(t, 1, dev.Live("Buffer"))
	require.Equal(t, 1, dev.Live("Memory"))
	require.Zero(t, dev.Live("CommandBuffer"))
	require.Equal(t, 1, dev.Count("Submit"))
	require.Equal(t, 1, dev.Count("Queue.WaitIdle"))

	_, err = buf.Read()
	require.Error(t, err)
	require.Error(t, buf.Write(points...))
}

func TestDeviceBufferUploadFailure(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	dev.FailNext("Submit", errors.New("queue lost"))
	_, err := NewIndexBuffer(dev, pool, []uint32{0, 1, 2})
	require.Error(t, err)
	require.Zero(t, dev.Live("Buffer"))
	require.Zero(t, dev.Live("Memory"))
	require.Zero(t, dev.Live("CommandBuffer"))
}

func TestCopyBufferSizeMismatch(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	a, err := NewStagingBuffer[uint32](dev, 2)
	require.NoError(t, err)
	defer a.Destroy()
	b, err := NewStagingBuffer[uint32](dev, 3)
	require.NoError(t, err)
	defer b.Destroy()

	require.Error(t, CopyBuffer(pool, a, b))
	require.Zero(t, dev.Count("Submit"))
}

func TestDeviceBufferReadBack(t *testing.T) {
	dev := fakedriver.New()
	pool := newPool(t, dev)

	indices := []uint32{0, 1, 2, 2, 3, 0}
	device, err := NewIndexBuffer(dev, pool, indices)
	require.NoError(t, err)
	defer device.Destroy()

	readBack, err := NewStagingBuffer[uint32](dev, len(indices))
	require.NoError(t, err)
	defer readBack.Destroy()

	require.NoError(t, CopyBuffer(pool, device, readBack))
	got, err := readBack.Read()
	require.NoError(t, err)
	require.Equal(t, indices, got)
}
