package pipeline

import (
	"log/slog"

	"github.com/clipforge/clipforge/pkg/types"
)

// defaultEventBuffer is the dispatch queue depth when Options leaves it zero.
const defaultEventBuffer = 64

// EventStatus describes what happened to a stage.
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventSkipped   EventStatus = "skipped"
	EventFailed    EventStatus = "failed"
)

// Event is a progress notification emitted while a run executes. Events for
// stage i are always delivered before any event for stage i+1.
type Event struct {
	Stage  types.Stage
	Status EventStatus

	// Detail carries extra human-readable context, such as the cached
	// artifact satisfying a skipped stage.
	Detail string

	// Err is set on failed events.
	Err error
}

// dispatcher decouples stage execution from the event sink. Publishing never
// blocks: a full queue drops the event with a debug log. A single consumer
// goroutine preserves FIFO order, and close waits for the queue to drain so
// every accepted event is delivered before Run returns.
type dispatcher struct {
	ch   chan Event
	done chan struct{}
	sink func(Event)
}

func newDispatcher(sink func(Event), buffer int) *dispatcher {
	d := &dispatcher{sink: sink}
	if sink == nil {
		return d
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	d.ch = make(chan Event, buffer)
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		for ev := range d.ch {
			d.sink(ev)
		}
	}()
	return d
}

func (d *dispatcher) publish(ev Event) {
	if d.ch == nil {
		return
	}
	select {
	case d.ch <- ev:
	default:
		slog.Debug("event queue full, dropping",
			"stage", ev.Stage, "status", ev.Status)
	}
}

func (d *dispatcher) close() {
	if d.ch == nil {
		return
	}
	close(d.ch)
	<-d.done
}
