package emit

import "sync"

// ChannelEmitter delivers events on a buffered channel for a consumer
// running in another goroutine, such as the terminal UI.
//
// Events accepted by Droppable (progress ticks by default) are dropped when
// the buffer is full. All other events wait for room until Close is called,
// after which every Emit is a no-op.
type ChannelEmitter struct {
	ch   chan Event
	done chan struct{}
	once sync.Once

	// Droppable reports whether an event may be discarded under back-pressure.
	Droppable func(Event) bool
}

// NewChannelEmitter creates a ChannelEmitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelEmitter{
		ch:        make(chan Event, buffer),
		done:      make(chan struct{}),
		Droppable: func(e Event) bool { return e.Msg == "progress" },
	}
}

// Events returns the receive side of the channel.
func (c *ChannelEmitter) Events() <-chan Event {
	return c.ch
}

// Emit queues the event.
func (c *ChannelEmitter) Emit(event Event) {
	select {
	case <-c.done:
		return
	default:
	}

	if c.Droppable != nil && c.Droppable(event) {
		select {
		case c.ch <- event:
		default:
		}
		return
	}

	select {
	case c.ch <- event:
	case <-c.done:
	}
}

// Close stops delivery. The channel itself is left open so a consumer
// selecting on it never sees a spurious zero event.
func (c *ChannelEmitter) Close() {
	c.once.Do(func() { close(c.done) })
}
