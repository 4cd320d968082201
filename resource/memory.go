// Package resource owns GPU memory-backed objects.
//
// Every Buffer and Image holds its own device allocation; there is no
// sub-allocation or pooling. Objects are handed out by pointer and must not
// be copied: the driver handles they wrap cannot be duplicated.
package resource

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

const (
	// HostShared is the locality of staging and uniform memory.
	HostShared = driver.MemoryHostVisible | driver.MemoryHostCoherent
	// DeviceLocal is the locality of vertex, index and image memory.
	DeviceLocal = driver.MemoryDeviceLocal
)

// FindMemoryType returns the index of the first memory type allowed by
// typeBits whose properties include every flag in want.
func FindMemoryType(types []driver.MemoryType, typeBits uint32, want driver.MemoryProperty) (int, error) {
	for i, memoryType := range types {
		typeBit := uint32(1) << i
		if typeBits&typeBit != 0 && memoryType.Properties.Has(want) {
			return i, nil
		}
	}
	return -1, errors.Wrapf(driver.ErrNoMemoryType, "type bits %#b with properties %s", typeBits, want)
}

// allocate allocates and binds memory for an object with the given
// requirements.
func allocate(dev driver.Device, reqs driver.MemoryRequirements, want driver.MemoryProperty, bind func(driver.Memory) error) (driver.Memory, error) {
	index, err := FindMemoryType(dev.MemoryTypes(), reqs.TypeBits, want)
	if err != nil {
		return nil, err
	}

	memory, err := dev.AllocateMemory(reqs.Size, index)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes from memory type %d", reqs.Size, index)
	}

	if err := bind(memory); err != nil {
		memory.Free()
		return nil, errors.Wrap(err, "bind memory")
	}
	return memory, nil
}

// noCopy flags copies of resource values with go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
