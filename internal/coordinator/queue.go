package coordinator

import "sync"

// EventKind distinguishes queued UI events.
type EventKind int

const (
	// EventStatus carries a StatusUpdate.
	EventStatus EventKind = iota
	// EventOutcome carries the terminal Outcome of an attempt.
	EventOutcome
)

// Event is a notification produced on a background goroutine and consumed
// on the UI goroutine.
type Event struct {
	Kind    EventKind
	Status  StatusUpdate
	Outcome Outcome
}

// eventQueue is an unbounded FIFO. Producers never block, so a slow UI can
// not stall a session's teardown; the single consumer drains in order.
type eventQueue struct {
	mu    sync.Mutex
	items []Event
	ready chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

func (q *eventQueue) take() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
