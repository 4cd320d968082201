package frame

import (
	"sync"

	"github.com/vkngwrapper/framepacer/driver"
)

// Event is a window-system notification handed to the frame loop.
type Event interface {
	isEvent()
}

// ResizeEvent reports a new drawable size of the window.
type ResizeEvent struct {
	Width, Height int
}

// CloseEvent asks the frame loop to stop.
type CloseEvent struct{}

// PointerEvent is a mouse button press or release. It is forwarded to the
// drawer when the drawer implements EventHandler.
type PointerEvent struct {
	X, Y    int
	Button  int
	Pressed bool
}

func (ResizeEvent) isEvent()  {}
func (CloseEvent) isEvent()   {}
func (PointerEvent) isEvent() {}

func (e ResizeEvent) Extent() driver.Extent {
	return driver.Extent{Width: e.Width, Height: e.Height}
}

// EventHandler is implemented by drawers that consume pointer events.
type EventHandler interface {
	HandleEvent(e Event)
}

// queue hands events from window-system goroutines to the tick. Posting
// never blocks on a running tick.
type queue struct {
	mu     sync.Mutex
	events []Event
}

func (q *queue) post(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

func (q *queue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
