package command

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

// Pool allocates recorders on the graphics queue family and submits
// one-shot sessions to queue.
type Pool struct {
	pool  driver.CommandPool
	queue driver.Queue
}

// NewPool creates a command pool whose one-shot sessions are submitted to
// queue.
func NewPool(dev driver.Device, queue driver.Queue) (*Pool, error) {
	pool, err := dev.CreateCommandPool()
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &Pool{pool: pool, queue: queue}, nil
}

// Allocate returns a Ready recorder.
func (p *Pool) Allocate() (*Recorder, error) {
	buffer, err := p.pool.Allocate()
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	return &Recorder{buffer: buffer, state: StateReady}, nil
}

// Run records a one-shot session with record and blocks until it has
// executed. It must not be used in the per-frame loop.
func (p *Pool) Run(record func(cmd driver.CommandBuffer) error) error {
	session, err := p.Begin()
	if err != nil {
		return err
	}
	defer session.Release()

	if err := record(session.Buffer()); err != nil {
		return err
	}
	return session.Finish()
}

func (p *Pool) Destroy() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}
