package bus

import (
	"sync"

	"github.com/jmleroy/ce02-hass/internal/controller"
)

// Bus provides fan-out pub/sub semantics for charge-state snapshots.
// Each Subscribe call gets its own channel that receives every future
// publication. Past messages are not replayed. The implementation is safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan *controller.Reading
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive all future
// charge-state snapshots.
func (b *Bus) Subscribe() <-chan *controller.Reading {
	ch := make(chan *controller.Reading, 1) // small buffer avoids blocking
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the snapshot to all subscribers in a best-effort,
// non-blocking way. A subscriber with a full buffer simply misses this
// snapshot and catches up with the next one.
func (b *Bus) Publish(r *controller.Reading) {
	b.mu.RLock()
	subs := make([]chan *controller.Reading, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- r:
		default:
			continue
		}
	}
}
