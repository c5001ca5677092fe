// Package eventbus carries job lifecycle and notification delivery events
// between components without coupling them. Delivery is best-effort: a
// subscriber that falls behind loses events rather than stalling the
// publisher, which may be inside a scheduler worker or a request handler.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published occurrence. Type is a dotted name ("job.finished",
// "notification.created"); Data carries a small per-type payload.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	// Publish never blocks.
	Publish(e Event)
	// Subscribe returns a buffered event channel and its cancel func.
	// Cancelling closes the channel.
	Subscribe(buffer int) (ch <-chan Event, cancel func())
	// Dropped counts events lost to full subscriber buffers since start.
	Dropped() uint64
}

func New() Bus {
	return &bus{}
}

type subscriber struct {
	id uint64
	ch chan Event
}

type bus struct {
	mu      sync.RWMutex
	subs    []subscriber
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func (b *bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := subscriber{id: b.nextID.Add(1), ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			for i := range b.subs {
				if b.subs[i].id == s.id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

func (b *bus) Dropped() uint64 {
	return b.dropped.Load()
}
