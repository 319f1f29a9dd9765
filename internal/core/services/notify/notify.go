// Package notify fans scene-change events out to registered callbacks.
// HTTP long-poll clients and push publishers hang off this bus.
package notify

import (
	"math"
	"sync"
)

// Bus registers callbacks and invokes them on every Notify. Callback ids
// are 32-bit, wrap past MaxUint32 back to 1, and ids still registered are
// never re-issued.
type Bus struct {
	mu        sync.Mutex
	nextID    uint32
	callbacks map[uint32]func()
}

func NewBus() *Bus {
	return &Bus{callbacks: make(map[uint32]func())}
}

// Register adds a callback and returns its id.
func (b *Bus) Register(cb func()) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.nextID == math.MaxUint32 {
			b.nextID = 0
		}
		b.nextID++
		if _, inUse := b.callbacks[b.nextID]; !inUse {
			break
		}
	}
	b.callbacks[b.nextID] = cb
	return b.nextID
}

// Unregister drops a callback. Unknown ids are a no-op.
func (b *Bus) Unregister(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.callbacks, id)
}

// Notify invokes every registered callback. The bus lock is held during
// the calls; callbacks must not block and must not take the scene lock
// for writing.
func (b *Bus) Notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cb := range b.callbacks {
		cb()
	}
}
