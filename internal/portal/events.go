package portal

import (
	"sync"

	"github.com/muurk/wifiportal/internal/logging"
)

const subscriberBuffer = 16

// broker fans transition events out to subscribers. Slow subscribers lose
// events rather than block the loop.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logging.Debug("Dropping event for slow subscriber")
		}
	}
}
