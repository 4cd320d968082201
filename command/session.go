package command

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacer/driver"
)

// Session is a one-shot recording. Callers defer Release right after
// Begin so that the command buffer is freed on every path:
//
//	session, err := pool.Begin()
//	if err != nil {
//		return err
//	}
//	defer session.Release()
//	... record into session.Buffer() ...
//	return session.Finish()
type Session struct {
	pool     *Pool
	recorder *Recorder
}

// Begin allocates a command buffer and starts a one-time-submit recording.
func (p *Pool) Begin() (*Session, error) {
	recorder, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	if err := recorder.begin(true); err != nil {
		recorder.Free()
		return nil, err
	}
	return &Session{pool: p, recorder: recorder}, nil
}

// Buffer returns the command buffer being recorded.
func (s *Session) Buffer() driver.CommandBuffer {
	return s.recorder.Buffer()
}

// Finish ends the recording, submits it and blocks until the queue is
// idle, then frees the command buffer. Finishing twice is an error.
func (s *Session) Finish() error {
	if s.recorder.State() != StateRecording {
		return errors.Wrapf(ErrInvalidState, "finish of session in state %s", s.recorder.State())
	}
	defer s.recorder.Free()

	if err := s.recorder.End(); err != nil {
		return err
	}
	if err := s.recorder.Submit(s.pool.queue, Sync{}, nil); err != nil {
		return err
	}
	if err := s.pool.queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for one-shot submission")
	}
	return nil
}

// Release frees the command buffer of a session that was not finished,
// without ending or submitting it. It does nothing after Finish.
func (s *Session) Release() {
	s.recorder.Free()
}
