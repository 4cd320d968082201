// Package frame drives the per-tick render loop.
//
// An Orchestrator cycles through a fixed number of frame slots. Each tick
// waits for the current slot's previous submission to retire, acquires a
// swapchain image, lets the Drawer write its per-slot data and record its
// draw commands inside the render pass, submits, presents, and moves on to
// the next slot. A Drawer's Prepare is only ever called once the slot's
// fence has been waited on, so per-slot buffers written there are never
// still in use by the GPU.
//
// Ticks and resizes are serialized by one mutex. Window-system events may
// be posted from any goroutine and are applied at the start of the next
// tick.
package frame

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/loov/hrtime"

	"github.com/vkngwrapper/framepacer"
	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
)

var (
	// ErrFenceTimeout means a frame slot did not retire within the fence
	// timeout. The GPU is hung or the driver has failed; it is fatal.
	ErrFenceTimeout = errors.New("frame slot fence timed out")
	// ErrClosed is returned by Tick once the orchestrator was closed.
	ErrClosed = errors.New("frame orchestrator closed")
	// ErrDrawFailed marks a Drawer failure. The slot is left unsubmitted
	// and the next tick rebuilds the swapchain before drawing again.
	ErrDrawFailed = errors.New("frame slot draw failed")
)

// Drawer supplies the content of each frame.
type Drawer interface {
	// Prepare writes the per-frame data of slot. It is called after the
	// slot's previous submission has retired and before recording.
	Prepare(slot int, extent driver.Extent) error
	// Record records draw commands inside the render pass.
	Record(cmd driver.CommandBuffer, slot int) error
}

// Stats counts what the frame loop has done since it was created.
type Stats struct {
	Session   uuid.UUID
	Ticks     int
	Presented int
	// Suspended counts ticks skipped because the window had zero area.
	Suspended int
	// Skipped counts ticks abandoned at image acquisition.
	Skipped int
	Resizes int
	// LastFrame is the CPU time of the last presented tick, from the fence
	// wait to presentation.
	LastFrame time.Duration
	// Slot is the frame slot the next tick will use.
	Slot int
}

type Orchestrator struct {
	mu sync.Mutex

	dev     driver.Device
	sc      *swapchain.Swapchain
	targets *target.Set
	drawer  Drawer
	cfg     Config
	logger  *slog.Logger

	slots       []*Slot
	current     int
	window      driver.Extent
	needsResize bool
	closed      bool
	stats       Stats

	events queue
}

// New creates cfg.FramesInFlight frame slots, with command buffers from
// pool, that render drawer into targets and present through sc. The
// orchestrator does not take ownership of its arguments.
func New(dev driver.Device, sc *swapchain.Swapchain, targets *target.Set, pool *command.Pool, drawer Drawer, cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid frame config")
	}

	session := uuid.New()
	o := &Orchestrator{
		dev:     dev,
		sc:      sc,
		targets: targets,
		drawer:  drawer,
		cfg:     cfg,
		logger:  framepacer.LoggerOr(cfg.Logger).With("component", "frame", "session", session.String()),
		window:  sc.Window(),
		stats:   Stats{Session: session},
	}

	for i := 0; i < cfg.FramesInFlight; i++ {
		slot, err := newSlot(dev, pool, i)
		if err != nil {
			o.destroySlots()
			return nil, err
		}
		o.slots = append(o.slots, slot)
	}

	o.logger.Info("frame loop ready", "slots", len(o.slots), "extent", o.window)
	return o, nil
}

// Post queues e for the next tick. It is safe to call from any goroutine
// and never waits for a tick in progress.
func (o *Orchestrator) Post(e Event) {
	o.events.post(e)
}

// Resize recreates the swapchain and everything attached to it for a
// window of width by height pixels, waiting for any tick in progress. A
// zero-area window suspends rendering until the next positive resize.
func (o *Orchestrator) Resize(width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.resize(driver.Extent{Width: width, Height: height})
}

func (o *Orchestrator) resize(window driver.Extent) error {
	o.needsResize = false
	o.window = window
	if err := o.sc.Resize(window); err != nil {
		return errors.Wrapf(err, "resize to %s", window)
	}
	// The swapchain resize left the device idle.
	for _, slot := range o.slots {
		if err := slot.renewSemaphores(o.dev); err != nil {
			return err
		}
	}
	o.stats.Resizes++
	o.logger.Info("resized", "window", window, "extent", o.sc.Extent(), "suspended", o.sc.Suspended())
	return nil
}

// dispatch applies queued events. Consecutive resizes collapse into the
// last one.
func (o *Orchestrator) dispatch() error {
	var resize *ResizeEvent
	for _, e := range o.events.drain() {
		switch e := e.(type) {
		case ResizeEvent:
			resize = &e
		case CloseEvent:
			return o.close()
		default:
			if h, ok := o.drawer.(EventHandler); ok {
				h.HandleEvent(e)
			}
		}
	}
	if resize != nil {
		return o.resize(resize.Extent())
	}
	return nil
}

// Tick renders and presents one frame. Conditions that only cost this
// frame, such as a suspended window or a failed acquisition, return nil.
// A Drawer failure is returned marked ErrDrawFailed and the loop may keep
// ticking. Any other error means the frame loop cannot continue: ErrClosed
// after a close, ErrFenceTimeout for a hung slot, or a failure to submit
// or rebuild.
func (o *Orchestrator) Tick() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if err := o.dispatch(); err != nil {
		return err
	}
	if o.closed {
		return ErrClosed
	}
	o.stats.Ticks++

	if o.needsResize {
		if err := o.resize(o.window); err != nil {
			return err
		}
	}

	if o.sc.Suspended() {
		if err := o.resume(); err != nil {
			return err
		}
	}
	if o.sc.Suspended() {
		o.stats.Suspended++
		return nil
	}

	start := hrtime.Now()
	slot := o.slots[o.current]

	if err := slot.fence.Wait(o.cfg.FenceTimeout); err != nil {
		if errors.Is(err, driver.ErrTimeout) {
			return errors.Mark(errors.Wrapf(err, "wait for frame slot %d after %s", slot.index, o.cfg.FenceTimeout), ErrFenceTimeout)
		}
		return errors.Wrapf(err, "wait for frame slot %d", slot.index)
	}

	imageIndex, err := o.sc.Acquire(o.cfg.AcquireTimeout, slot.imageAvailable, nil)
	if err != nil {
		if errors.Is(err, driver.ErrDeviceLost) {
			return err
		}
		if driver.IsSwapchainStale(err) {
			o.needsResize = true
		}
		o.stats.Skipped++
		o.logger.Warn("frame skipped", "slot", slot.index, "error", err)
		return nil
	}

	if err := slot.recorder.Reset(); err != nil {
		return errors.Wrapf(err, "reset command buffer of frame slot %d", slot.index)
	}
	if err := o.draw(slot, imageIndex); err != nil {
		// imageAvailable was signaled by the acquisition and nothing will
		// wait on it; the rebuild renews it.
		o.needsResize = true
		return errors.Mark(err, ErrDrawFailed)
	}

	// The fence stays signaled until the submission that re-arms it.
	if err := slot.fence.Reset(); err != nil {
		return errors.Wrapf(err, "reset fence of frame slot %d", slot.index)
	}
	err = slot.recorder.Submit(o.dev.GraphicsQueue(), command.Sync{
		Wait:   []driver.Semaphore{slot.imageAvailable},
		Signal: []driver.Semaphore{slot.renderFinished},
	}, slot.fence)
	if err != nil {
		return errors.Wrapf(err, "submit frame slot %d", slot.index)
	}

	if err := o.sc.Present(imageIndex, slot.renderFinished); err != nil {
		if !driver.IsSwapchainStale(err) {
			return err
		}
		o.needsResize = true
		o.logger.Debug("swapchain stale after present", "error", err)
	}

	o.current = (o.current + 1) % len(o.slots)
	o.stats.Presented++
	o.stats.LastFrame = hrtime.Since(start)
	return nil
}

// resume recreates a suspended swapchain once the surface has a positive
// extent again. A minimized window can come back without a resize event.
func (o *Orchestrator) resume() error {
	ok, err := o.sc.Presentable(o.window)
	if err != nil || !ok {
		return err
	}
	o.logger.Debug("surface presentable again", "window", o.window)
	return o.resize(o.window)
}

func (o *Orchestrator) draw(slot *Slot, imageIndex int) error {
	if err := o.drawer.Prepare(slot.index, o.sc.Extent()); err != nil {
		return errors.Wrapf(err, "prepare frame slot %d", slot.index)
	}
	rec := slot.recorder
	if err := rec.Begin(); err != nil {
		return errors.Wrapf(err, "begin frame slot %d", slot.index)
	}
	if err := o.targets.BeginPass(imageIndex, rec); err != nil {
		return errors.Wrapf(err, "frame slot %d", slot.index)
	}
	if err := o.drawer.Record(rec.Buffer(), slot.index); err != nil {
		return errors.Wrapf(err, "record frame slot %d", slot.index)
	}
	o.targets.EndPass(rec)
	if err := rec.End(); err != nil {
		return errors.Wrapf(err, "end frame slot %d", slot.index)
	}
	return nil
}

// Close stops the frame loop and waits for the device to go idle. Later
// ticks return ErrClosed. Closing twice does nothing.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.close()
}

func (o *Orchestrator) close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	o.logger.Info("frame loop closed", "ticks", o.stats.Ticks, "presented", o.stats.Presented)
	return errors.Wrap(o.dev.WaitIdle(), "wait for device idle on close")
}

// Closed reports whether Close was called or a CloseEvent was handled.
func (o *Orchestrator) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Slot returns frame slot i.
func (o *Orchestrator) Slot(i int) *Slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slots[i]
}

// Current is the index of the frame slot the next tick will use.
func (o *Orchestrator) Current() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	stats := o.stats
	stats.Slot = o.current
	return stats
}

func (o *Orchestrator) destroySlots() {
	for _, slot := range o.slots {
		slot.destroy()
	}
	o.slots = nil
}

// Destroy closes the orchestrator if needed and releases its frame slots.
func (o *Orchestrator) Destroy() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.close()
	o.destroySlots()
	return err
}
