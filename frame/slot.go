package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
)

// Slot is one set of per-frame synchronization objects and the command
// buffer recorded into while the slot is current.
type Slot struct {
	index          int
	fence          driver.Fence
	imageAvailable driver.Semaphore
	renderFinished driver.Semaphore
	recorder       *command.Recorder
}

func newSlot(dev driver.Device, pool *command.Pool, index int) (*Slot, error) {
	s := &Slot{index: index}

	var err error
	// Signaled so that the first wait on the slot returns at once.
	s.fence, err = dev.CreateFence(true)
	if err != nil {
		return nil, errors.Wrapf(err, "create fence of frame slot %d", index)
	}

	if err := s.createSemaphores(dev); err != nil {
		s.destroy()
		return nil, err
	}

	s.recorder, err = pool.Allocate()
	if err != nil {
		s.destroy()
		return nil, errors.Wrapf(err, "allocate command buffer of frame slot %d", index)
	}
	return s, nil
}

func (s *Slot) createSemaphores(dev driver.Device) error {
	imageAvailable, err := dev.CreateSemaphore()
	if err != nil {
		return errors.Wrapf(err, "create image available semaphore of frame slot %d", s.index)
	}
	renderFinished, err := dev.CreateSemaphore()
	if err != nil {
		imageAvailable.Destroy()
		return errors.Wrapf(err, "create render finished semaphore of frame slot %d", s.index)
	}
	s.imageAvailable, s.renderFinished = imageAvailable, renderFinished
	return nil
}

func (s *Slot) destroySemaphores() {
	if s.imageAvailable != nil {
		s.imageAvailable.Destroy()
		s.imageAvailable = nil
	}
	if s.renderFinished != nil {
		s.renderFinished.Destroy()
		s.renderFinished = nil
	}
}

// renewSemaphores replaces both semaphores. An acquisition that was
// abandoned may leave imageAvailable signaled with nothing waiting on it;
// the device must be idle.
func (s *Slot) renewSemaphores(dev driver.Device) error {
	s.destroySemaphores()
	return s.createSemaphores(dev)
}

func (s *Slot) destroy() {
	if s.recorder != nil {
		s.recorder.Free()
		s.recorder = nil
	}
	s.destroySemaphores()
	if s.fence != nil {
		s.fence.Destroy()
		s.fence = nil
	}
}

func (s *Slot) Index() int { return s.index }

// Fence is signaled when the last submission of the slot has retired.
func (s *Slot) Fence() driver.Fence { return s.fence }

func (s *Slot) ImageAvailable() driver.Semaphore { return s.imageAvailable }

func (s *Slot) RenderFinished() driver.Semaphore { return s.renderFinished }

func (s *Slot) Recorder() *command.Recorder { return s.recorder }
