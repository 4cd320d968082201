// Package command manages command buffer lifetimes.
//
// A Recorder wraps one command buffer and enforces its state machine:
//
//	NotAllocated -> Ready -> Recording -> Ended -> Submitted
//	                  ^                                 |
//	                  +------------- Reset -------------+
//
// A Session is the one-shot path for setup work: it begins on creation and
// Finish ends, submits and blocks until the submission retires.
package command

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

// ErrInvalidState is returned when a Recorder is driven out of order. It
// indicates a programming error, not a runtime condition.
var ErrInvalidState = errors.New("invalid command recorder state")

type State int

const (
	StateNotAllocated State = iota
	StateReady
	StateRecording
	StateEnded
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateNotAllocated:
		return "NotAllocated"
	case StateReady:
		return "Ready"
	case StateRecording:
		return "Recording"
	case StateEnded:
		return "Ended"
	case StateSubmitted:
		return "Submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Sync lists the semaphores a submission waits on and signals.
type Sync struct {
	Wait   []driver.Semaphore
	Signal []driver.Semaphore
}

type Recorder struct {
	buffer driver.CommandBuffer
	state  State
}

func (r *Recorder) expect(op string, want State) error {
	if r.state != want {
		return errors.Wrapf(ErrInvalidState, "%s in state %s, want %s", op, r.state, want)
	}
	return nil
}

// State returns the current state.
func (r *Recorder) State() State { return r.state }

// Buffer returns the underlying command buffer, for recording commands
// while the recorder is Recording.
func (r *Recorder) Buffer() driver.CommandBuffer { return r.buffer }

// Begin starts recording. The recorder must be Ready.
func (r *Recorder) Begin() error {
	return r.begin(false)
}

func (r *Recorder) begin(oneTime bool) error {
	if err := r.expect("begin", StateReady); err != nil {
		return err
	}
	if err := r.buffer.Begin(oneTime); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	r.state = StateRecording
	return nil
}

// End stops recording. The recorder must be Recording.
func (r *Recorder) End() error {
	if err := r.expect("end", StateRecording); err != nil {
		return err
	}
	if err := r.buffer.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	r.state = StateEnded
	return nil
}

// Submit queues the recorded commands. The recorder must be Ended. fence,
// which may be nil, is signaled once the commands have executed.
func (r *Recorder) Submit(queue driver.Queue, sync Sync, fence driver.Fence) error {
	if err := r.expect("submit", StateEnded); err != nil {
		return err
	}
	err := queue.Submit(driver.SubmitInfo{
		WaitSemaphores:   sync.Wait,
		CommandBuffers:   []driver.CommandBuffer{r.buffer},
		SignalSemaphores: sync.Signal,
	}, fence)
	if err != nil {
		return errors.Wrap(err, "submit command buffer")
	}
	r.state = StateSubmitted
	return nil
}

// Reset returns an allocated recorder to Ready, discarding what it
// recorded. The caller must know that any submission of it has retired.
func (r *Recorder) Reset() error {
	if r.state == StateNotAllocated {
		return errors.Wrap(ErrInvalidState, "reset of a freed recorder")
	}
	if err := r.buffer.Reset(); err != nil {
		return errors.Wrap(err, "reset command buffer")
	}
	r.state = StateReady
	return nil
}

// Free releases the command buffer back to its pool.
func (r *Recorder) Free() {
	if r.state == StateNotAllocated {
		return
	}
	r.buffer.Free()
	r.buffer = nil
	r.state = StateNotAllocated
}
