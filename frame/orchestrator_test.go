package frame

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/framepacer/command"
	"github.com/vkngwrapper/framepacer/driver"
	"github.com/vkngwrapper/framepacer/internal/fakedriver"
	"github.com/vkngwrapper/framepacer/swapchain"
	"github.com/vkngwrapper/framepacer/target"
)

// stubDrawer records what the orchestrator asks of it and checks that a
// slot is never prepared while its previous submission is in flight.
type stubDrawer struct {
	o          *Orchestrator
	prepared   []int
	extents    []driver.Extent
	events     []Event
	violations []string
	prepareErr error
	recordErr  error
}

func (d *stubDrawer) Prepare(slot int, extent driver.Extent) error {
	d.prepared = append(d.prepared, slot)
	d.extents = append(d.extents, extent)
	if fence := d.o.slots[slot].fence.(*fakedriver.Fence); fence.Pending() {
		d.violations = append(d.violations, fmt.Sprintf("slot %d prepared while its fence is pending", slot))
	}
	return d.prepareErr
}

func (d *stubDrawer) Record(cmd driver.CommandBuffer, slot int) error {
	if d.recordErr != nil {
		return d.recordErr
	}
	cmd.DrawIndexed(3)
	return nil
}

func (d *stubDrawer) HandleEvent(e Event) {
	d.events = append(d.events, e)
}

type fixture struct {
	dev     *fakedriver.Device
	surface *fakedriver.Surface
	sc      *swapchain.Swapchain
	targets *target.Set
	pool    *command.Pool
	drawer  *stubDrawer
	o       *Orchestrator
}

func newFixture(t *testing.T, configure ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{dev: fakedriver.New(), drawer: &stubDrawer{}}
	f.surface = f.dev.NewSurface(driver.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 8,
		CurrentExtent: driver.Extent{Width: 800, Height: 600},
	})

	cfg := DefaultConfig()
	for _, c := range configure {
		c(&cfg)
	}

	var err error
	f.sc, err = swapchain.New(f.dev, f.surface, driver.Extent{Width: 800, Height: 600}, cfg.SwapchainOptions())
	require.NoError(t, err)
	f.targets, err = target.New(f.dev, f.sc, cfg.TargetOptions())
	require.NoError(t, err)
	f.pool, err = command.NewPool(f.dev, f.dev.GraphicsQueue())
	require.NoError(t, err)
	f.o, err = New(f.dev, f.sc, f.targets, f.pool, f.drawer, cfg)
	require.NoError(t, err)
	f.drawer.o = f.o

	t.Cleanup(func() {
		require.NoError(t, f.o.Destroy())
		f.targets.Destroy()
		f.sc.Destroy()
		f.pool.Destroy()
		require.Empty(t, f.dev.LiveObjects())
		require.Empty(t, f.dev.Misuse())
		require.Empty(t, f.drawer.violations)
	})
	return f
}

func (f *fixture) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.o.Tick())
	}
}

func (f *fixture) fence(slot int) *fakedriver.Fence {
	return f.o.slots[slot].fence.(*fakedriver.Fence)
}

func TestTicksCycleSlots(t *testing.T) {
	f := newFixture(t)

	f.tick(t, 6)

	require.Equal(t, []int{0, 1, 0, 1, 0, 1}, f.drawer.prepared)
	require.Equal(t, 6, f.dev.Count("Submit"))
	require.Equal(t, 6, f.dev.Count("Present"))

	stats := f.o.Stats()
	require.Equal(t, 6, stats.Ticks)
	require.Equal(t, 6, stats.Presented)
	require.Zero(t, stats.Skipped)
	require.Zero(t, stats.Slot)
	require.NotEqual(t, uuid.Nil, stats.Session)

	for _, cb := range f.dev.GraphicsQueue().(*fakedriver.Queue).Submitted() {
		require.Equal(t, []string{"BeginRenderPass", "DrawIndexed", "EndRenderPass"}, cb.Commands())
	}
	for _, extent := range f.drawer.extents {
		require.Equal(t, driver.Extent{Width: 800, Height: 600}, extent)
	}
}

func TestTickOrder(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 2)

	f.dev.ResetCalls()
	f.tick(t, 1)

	relevant := map[string]bool{
		"Fence.Wait":          true,
		"AcquireNextImage":    true,
		"Fence.Reset":         true,
		"CommandBuffer.Reset": true,
		"Submit":              true,
		"Present":             true,
	}
	var ops []string
	var fenceIDs []int
	for _, call := range f.dev.Calls() {
		if !relevant[call.Op] {
			continue
		}
		ops = append(ops, call.Op)
		if call.Op == "Fence.Wait" || call.Op == "Fence.Reset" {
			fenceIDs = append(fenceIDs, call.Object)
		}
	}
	require.Equal(t, []string{"Fence.Wait", "AcquireNextImage", "CommandBuffer.Reset", "Fence.Reset", "Submit", "Present"}, ops)
	require.Equal(t, []int{f.fence(0).ID(), f.fence(0).ID()}, fenceIDs)
}

func TestFirstTickDoesNotBlock(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.FramesInFlight = 3 })

	for slot := 0; slot < 3; slot++ {
		require.True(t, f.fence(slot).Signaled(), "slot %d starts signaled", slot)
	}
	f.tick(t, 3)
	require.Equal(t, []int{0, 1, 2}, f.drawer.prepared)
}

func TestSlotNeverPreparedWhileInFlight(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.FramesInFlight = 3 })

	for i := 0; i < 20; i++ {
		switch i % 7 {
		case 3:
			f.dev.QueueAcquireResults(driver.ErrNotReady)
		case 5:
			f.o.Post(ResizeEvent{Width: 800, Height: 600})
		}
		require.NoError(t, f.o.Tick())
	}
	require.Empty(t, f.drawer.violations)
}

func TestAcquireFailureSkipsTick(t *testing.T) {
	f := newFixture(t)

	f.dev.QueueAcquireResults(driver.ErrTimeout)
	require.NoError(t, f.o.Tick())

	stats := f.o.Stats()
	require.Equal(t, 1, stats.Skipped)
	require.Zero(t, stats.Presented)
	require.Zero(t, stats.Slot)
	require.Zero(t, f.dev.Count("Fence.Reset"), "a skipped tick leaves the fence signaled")
	require.Zero(t, f.dev.Count("Submit"))
	require.Empty(t, f.drawer.prepared)
	require.True(t, f.fence(0).Signaled())

	f.tick(t, 1)
	require.Equal(t, []int{0}, f.drawer.prepared)
	require.Zero(t, f.o.Stats().Resizes)
}

func TestOutOfDateAcquireResizes(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 1)

	f.surface.SetExtent(1024, 768)
	require.NoError(t, f.o.Tick())
	require.Equal(t, 1, f.o.Stats().Skipped)
	require.Equal(t, 1, f.dev.Count("CreateSwapchain"))

	require.NoError(t, f.o.Tick())
	stats := f.o.Stats()
	require.Equal(t, 1, stats.Resizes)
	require.Equal(t, 2, stats.Presented)
	require.Equal(t, 2, f.dev.Count("CreateSwapchain"))
	require.Equal(t, driver.Extent{Width: 1024, Height: 768}, f.sc.Extent())
	require.Equal(t, driver.Extent{Width: 1024, Height: 768}, f.targets.Extent())
	require.Equal(t, driver.Extent{Width: 1024, Height: 768}, f.drawer.extents[len(f.drawer.extents)-1])
}

func TestSuboptimalAcquireRenewsSemaphores(t *testing.T) {
	f := newFixture(t)
	before := f.o.slots[0].imageAvailable

	// A suboptimal acquisition signals imageAvailable even though the
	// tick is abandoned.
	f.dev.QueueAcquireResults(driver.ErrSuboptimal)
	require.NoError(t, f.o.Tick())
	require.Equal(t, 1, f.o.Stats().Skipped)

	f.tick(t, 4)
	require.Equal(t, 1, f.o.Stats().Resizes)
	require.NotSame(t, before, f.o.slots[0].imageAvailable)
	require.Equal(t, 2*len(f.o.slots), f.dev.Live("Semaphore"))
}

func TestStalePresentResizes(t *testing.T) {
	f := newFixture(t)

	f.dev.QueuePresentResults(driver.ErrOutOfDate)
	require.NoError(t, f.o.Tick())
	require.Equal(t, 1, f.o.Stats().Slot, "the frame was submitted, so the slot advances")

	require.NoError(t, f.o.Tick())
	require.Equal(t, 1, f.o.Stats().Resizes)
}

func TestFatalErrors(t *testing.T) {
	t.Run("acquire device lost", func(t *testing.T) {
		f := newFixture(t)
		f.dev.QueueAcquireResults(driver.ErrDeviceLost)
		require.True(t, errors.Is(f.o.Tick(), driver.ErrDeviceLost))
	})

	t.Run("present device lost", func(t *testing.T) {
		f := newFixture(t)
		f.dev.QueuePresentResults(driver.ErrDeviceLost)
		require.True(t, errors.Is(f.o.Tick(), driver.ErrDeviceLost))
	})

	t.Run("submit", func(t *testing.T) {
		f := newFixture(t)
		f.dev.FailNext("Submit", driver.ErrDeviceLost)
		require.True(t, errors.Is(f.o.Tick(), driver.ErrDeviceLost))
	})
}

func TestDrawFailureRecovers(t *testing.T) {
	for _, tc := range []struct {
		name string
		fail func(d *stubDrawer, err error)
	}{
		{"prepare", func(d *stubDrawer, err error) { d.prepareErr = err }},
		{"record", func(d *stubDrawer, err error) { d.recordErr = err }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.FenceTimeout = 50 * time.Millisecond })
			f.tick(t, 2)

			cause := errors.New("uniforms")
			tc.fail(f.drawer, cause)
			f.dev.ResetCalls()
			err := f.o.Tick()
			require.ErrorIs(t, err, cause)
			require.True(t, errors.Is(err, ErrDrawFailed))
			require.False(t, errors.Is(err, ErrFenceTimeout))
			require.Zero(t, f.dev.Count("Fence.Reset"), "the fence is only reset right before submission")
			require.Zero(t, f.dev.Count("Submit"))
			require.True(t, f.fence(0).Signaled())
			require.Zero(t, f.o.Current())

			tc.fail(f.drawer, nil)
			f.tick(t, 3)
			stats := f.o.Stats()
			require.Equal(t, 5, stats.Presented)
			require.Equal(t, 1, stats.Resizes, "the unconsumed semaphore is renewed")
			require.Equal(t, 1, f.o.Current())
		})
	}
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 2)

	require.True(t, f.fence(0).Pending())
	f.fence(0).Hang()

	err := f.o.Tick()
	require.True(t, errors.Is(err, ErrFenceTimeout))
	require.True(t, errors.Is(err, driver.ErrTimeout))
	require.Equal(t, 2, f.dev.Count("Fence.Reset"), "the hung fence is not reset")
}

func TestPostedResizesCollapse(t *testing.T) {
	f := newFixture(t)

	f.o.Post(ResizeEvent{Width: 100, Height: 100})
	f.o.Post(ResizeEvent{Width: 200, Height: 200})
	f.o.Post(ResizeEvent{Width: 800, Height: 600})
	f.tick(t, 1)

	require.Equal(t, 1, f.o.Stats().Resizes)
	require.Equal(t, 2, f.dev.Count("CreateSwapchain"))
}

func TestZeroAreaSuspendsTicks(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 1)

	f.o.Post(ResizeEvent{})
	f.tick(t, 3)

	stats := f.o.Stats()
	require.Equal(t, 3, stats.Suspended)
	require.Equal(t, 1, stats.Presented)
	require.Equal(t, 1, f.dev.Count("Submit"))
	require.Zero(t, f.targets.FramebufferCount())

	f.o.Post(ResizeEvent{Width: 800, Height: 600})
	f.tick(t, 1)
	require.Equal(t, 2, f.o.Stats().Presented)
	require.Equal(t, 3, f.targets.FramebufferCount())
}

func TestSurfaceResumesWithoutEvent(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 1)

	// The surface shrinks to nothing while the window keeps its size, and
	// no resize event is posted in either direction.
	f.surface.SetExtent(0, 0)
	f.tick(t, 2)
	require.True(t, f.sc.Suspended())
	require.Equal(t, 1, f.o.Stats().Suspended)

	f.dev.ResetCalls()
	f.tick(t, 3)
	require.Equal(t, 4, f.o.Stats().Suspended)
	require.Equal(t, 3, f.dev.Count("Surface.Capabilities"), "one query per suspended tick")
	require.Zero(t, f.dev.Count("Fence.Wait"))
	require.Zero(t, f.dev.Count("AcquireNextImage"))
	require.Zero(t, f.dev.Count("Present"))

	f.surface.SetExtent(800, 600)
	f.tick(t, 1)
	require.False(t, f.sc.Suspended())
	stats := f.o.Stats()
	require.Equal(t, 2, stats.Presented)
	require.Equal(t, 4, stats.Suspended)
	require.Equal(t, 2, stats.Resizes)
	require.Equal(t, 3, f.targets.FramebufferCount())

	f.tick(t, 5)
	require.Equal(t, 7, f.o.Stats().Presented)
}

func TestConcurrentResizeAndTick(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.FramesInFlight = 3 })

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := f.o.Tick(); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := f.o.Resize(800, 600); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			f.o.Post(ResizeEvent{Width: 800, Height: 600})
			f.o.Post(PointerEvent{X: i})
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	// Events posted after the last tick are still queued.
	f.tick(t, 1)
	require.Len(t, f.drawer.events, 10)
	require.Empty(t, f.dev.Misuse())
	require.Empty(t, f.drawer.violations)
}

func TestCloseEvent(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 2)

	f.o.Post(CloseEvent{})
	require.True(t, errors.Is(f.o.Tick(), ErrClosed))
	require.True(t, f.o.Closed())
	require.Equal(t, 1, f.dev.Count("WaitIdle"))
	for slot := range f.o.slots {
		require.False(t, f.fence(slot).Pending())
	}

	require.True(t, errors.Is(f.o.Tick(), ErrClosed))
	require.True(t, errors.Is(f.o.Resize(800, 600), ErrClosed))
	require.NoError(t, f.o.Close())
	require.Equal(t, 1, f.dev.Count("WaitIdle"))
	require.Equal(t, 2, f.o.Stats().Presented)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 1)

	require.NoError(t, f.o.Close())
	require.True(t, f.o.Closed())
	require.False(t, f.fence(0).Pending())
	require.True(t, errors.Is(f.o.Tick(), ErrClosed))
}

func TestEventsAfterCloseAreIgnored(t *testing.T) {
	f := newFixture(t)

	f.o.Post(CloseEvent{})
	f.o.Post(ResizeEvent{Width: 1, Height: 1})
	require.True(t, errors.Is(f.o.Tick(), ErrClosed))
	require.Zero(t, f.o.Stats().Resizes)
}

func TestPointerEventsReachDrawer(t *testing.T) {
	f := newFixture(t)

	f.o.Post(PointerEvent{X: 10, Y: 20, Button: 1, Pressed: true})
	f.tick(t, 1)
	require.Equal(t, []Event{PointerEvent{X: 10, Y: 20, Button: 1, Pressed: true}}, f.drawer.events)
}

func TestResizeRenewsSemaphores(t *testing.T) {
	f := newFixture(t)
	f.tick(t, 3)

	before := f.o.Slot(1).ImageAvailable()
	require.NoError(t, f.o.Resize(800, 600))
	require.NotSame(t, before, f.o.Slot(1).ImageAvailable())
	require.Equal(t, 2*len(f.o.slots), f.dev.Live("Semaphore"))

	f.tick(t, 3)
	require.Equal(t, 6, f.o.Stats().Presented)
}

func TestNewReleasesPartialSlots(t *testing.T) {
	dev := fakedriver.New()
	surface := dev.NewSurface(driver.SurfaceCapabilities{MinImageCount: 2, CurrentExtent: driver.Extent{Width: 64, Height: 64}})
	sc, err := swapchain.New(dev, surface, driver.Extent{Width: 64, Height: 64}, swapchain.Options{})
	require.NoError(t, err)
	defer sc.Destroy()
	targets, err := target.New(dev, sc, target.Options{})
	require.NoError(t, err)
	defer targets.Destroy()
	pool, err := command.NewPool(dev, dev.GraphicsQueue())
	require.NoError(t, err)
	defer pool.Destroy()

	dev.FailNext("AllocateCommandBuffer", errors.New("out of pool memory"))
	_, err = New(dev, sc, targets, pool, &stubDrawer{}, DefaultConfig())
	require.Error(t, err)
	require.Zero(t, dev.Live("Fence"))
	require.Zero(t, dev.Live("Semaphore"))
	require.Zero(t, dev.Live("CommandBuffer"))

	cfg := DefaultConfig()
	cfg.FramesInFlight = 0
	_, err = New(dev, sc, targets, pool, &stubDrawer{}, cfg)
	require.Error(t, err)
}

func TestSuspendAndResumeScenario(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, 3, f.sc.ImageCount())

	require.NoError(t, f.o.Resize(0, 0))
	f.dev.ResetCalls()
	f.tick(t, 5)
	require.Zero(t, f.dev.Count("AcquireNextImage"))
	require.Zero(t, f.dev.Count("Present"))

	require.NoError(t, f.o.Resize(800, 600))
	require.Equal(t, 0, f.o.Current())
	f.dev.ResetCalls()
	f.tick(t, 1)
	require.Equal(t, 1, f.dev.Count("AcquireNextImage"))
	require.Equal(t, 1, f.dev.Count("Submit"))
	require.Equal(t, 1, f.dev.Count("Present"))
	require.Equal(t, 1, f.o.Current())
}

func TestFenceWaitResetSubmitPerReuse(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.FramesInFlight = 3 })

	f.tick(t, 9)

	perFence := map[int][]string{}
	for _, call := range f.dev.Calls() {
		switch call.Op {
		case "Fence.Wait", "Fence.Reset":
			perFence[call.Object] = append(perFence[call.Object], call.Op)
		case "Submit":
			require.NotZero(t, call.Fence, "every frame submission arms its slot fence")
			perFence[call.Fence] = append(perFence[call.Fence], call.Op)
		}
	}
	require.Len(t, perFence, 3)
	reuse := []string{"Fence.Wait", "Fence.Reset", "Submit"}
	for slot := range f.o.slots {
		id := f.fence(slot).ID()
		require.Equal(t, append(append(append([]string(nil), reuse...), reuse...), reuse...), perFence[id], "slot %d", slot)
		// The last submission leaves the fence armed.
		require.True(t, f.fence(slot).Pending(), "slot %d", slot)
	}
}
