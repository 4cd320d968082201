package resource

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
)

// Buffer is a driver buffer and its memory holding exactly Len elements of
// T. Its size never changes; a different size needs a new Buffer.
//
// T must have a fixed binary size (see encoding/binary). Elements are laid
// out packed, in native byte order.
type Buffer[T any] struct {
	_ noCopy

	dev      driver.Device
	buffer   driver.Buffer
	memory   driver.Memory
	count    int
	size     int
	locality driver.MemoryProperty
}

// ElementSize returns the packed size of one T, or an error when T has no
// fixed size.
func ElementSize[T any]() (int, error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return 0, errors.Newf("%T has no fixed binary size", zero)
	}
	return size, nil
}

func newBuffer[T any](dev driver.Device, count int, usage driver.BufferUsage, locality driver.MemoryProperty) (*Buffer[T], error) {
	if count <= 0 {
		return nil, errors.Newf("buffer of %d elements", count)
	}
	elem, err := ElementSize[T]()
	if err != nil {
		return nil, err
	}
	size := elem * count

	buffer, err := dev.CreateBuffer(driver.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", size)
	}

	memory, err := allocate(dev, buffer.Requirements(), locality, buffer.Bind)
	if err != nil {
		buffer.Destroy()
		return nil, errors.Wrapf(err, "back buffer of %d bytes", size)
	}

	return &Buffer[T]{
		dev:      dev,
		buffer:   buffer,
		memory:   memory,
		count:    count,
		size:     size,
		locality: locality,
	}, nil
}

// NewStagingBuffer creates a host-visible transfer source for count
// elements.
func NewStagingBuffer[T any](dev driver.Device, count int) (*Buffer[T], error) {
	return newBuffer[T](dev, count, driver.BufferUsageTransferSrc|driver.BufferUsageTransferDst, HostShared)
}

// NewUniformBuffer creates a host-visible, coherent buffer holding one T.
func NewUniformBuffer[T any](dev driver.Device) (*Buffer[T], error) {
	return newBuffer[T](dev, 1, driver.BufferUsageUniform, HostShared)
}

// NewDeviceBuffer creates a device-local buffer with the given usage and
// fills it with data through a staging buffer and a one-shot transfer.
func NewDeviceBuffer[T any](dev driver.Device, pool *command.Pool, usage driver.BufferUsage, data []T) (*Buffer[T], error) {
	staging, err := NewStagingBuffer[T](dev, len(data))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.Write(data...); err != nil {
		return nil, err
	}

	buffer, err := newBuffer[T](dev, len(data), usage|driver.BufferUsageTransferDst|driver.BufferUsageTransferSrc, DeviceLocal)
	if err != nil {
		return nil, err
	}

	if err := CopyBuffer(pool, staging, buffer); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// NewVertexBuffer uploads vertices into a device-local vertex buffer.
func NewVertexBuffer[T any](dev driver.Device, pool *command.Pool, vertices []T) (*Buffer[T], error) {
	return NewDeviceBuffer(dev, pool, driver.BufferUsageVertex, vertices)
}

// NewIndexBuffer uploads indices into a device-local index buffer.
func NewIndexBuffer(dev driver.Device, pool *command.Pool, indices []uint32) (*Buffer[uint32], error) {
	return NewDeviceBuffer(dev, pool, driver.BufferUsageIndex, indices)
}

// CopyBuffer copies src into dst with a blocking one-shot submission.
// Both buffers must hold the same number of elements.
func CopyBuffer[T any](pool *command.Pool, src, dst *Buffer[T]) error {
	if src.size != dst.size {
		return errors.Newf("copy between buffers of %d and %d bytes", src.size, dst.size)
	}
	return pool.Run(func(cmd driver.CommandBuffer) error {
		return cmd.CopyBuffer(src.buffer, dst.buffer, src.size)
	})
}

// Write replaces the whole contents of a host-visible buffer. len(data)
// must equal Len.
func (b *Buffer[T]) Write(data ...T) error {
	if len(data) != b.count {
		return errors.Newf("write of %d elements into buffer of %d", len(data), b.count)
	}
	if !b.locality.Has(driver.MemoryHostVisible) {
		return errors.New("write into device-local buffer")
	}

	buf := bytes.NewBuffer(make([]byte, 0, b.size))
	if err := binary.Write(buf, binary.NativeEndian, data); err != nil {
		return errors.Wrap(err, "encode buffer contents")
	}

	mapped, err := b.memory.Map(0, b.size)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer b.memory.Unmap()

	copy(mapped, buf.Bytes())
	return nil
}

// Read returns the contents of a host-visible buffer.
func (b *Buffer[T]) Read() ([]T, error) {
	if !b.locality.Has(driver.MemoryHostVisible) {
		return nil, errors.New("read from device-local buffer")
	}

	mapped, err := b.memory.Map(0, b.size)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	defer b.memory.Unmap()

	out := make([]T, b.count)
	if err := binary.Read(bytes.NewReader(mapped), binary.NativeEndian, out); err != nil {
		return nil, errors.Wrap(err, "decode buffer contents")
	}
	return out, nil
}

func (b *Buffer[T]) Handle() driver.Buffer { return b.buffer }

// Len returns the number of elements.
func (b *Buffer[T]) Len() int { return b.count }

// Size returns the size in bytes.
func (b *Buffer[T]) Size() int { return b.size }

// Destroy releases the buffer and its memory. It is safe to call twice.
func (b *Buffer[T]) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
		b.buffer = nil
	}
	if b.memory != nil {
		b.memory.Free()
		b.memory = nil
	}
}
