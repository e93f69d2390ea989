package service

import (
	"sync"

	"timebased_cover/internal/logger"
	"timebased_cover/internal/models"
)

const subscriberBuffer = 32

// Broadcaster fans controller snapshots out to live subscribers such as
// WebSocket clients. Publishing never blocks: a full subscriber buffer drops
// the snapshot and the client catches up on the next one.
type Broadcaster struct {
	log *logger.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan models.CoverState
}

func NewBroadcaster(registry *Registry, log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Nop()
	}
	b := &Broadcaster{log: log, subs: make(map[int]chan models.CoverState)}
	if registry != nil {
		for _, c := range registry.All() {
			c.OnUpdate(b.Publish)
		}
	}
	return b
}

// Subscribe registers a feed. The returned func unregisters it and closes
// the channel; calling it twice is safe.
func (b *Broadcaster) Subscribe() (<-chan models.CoverState, func()) {
	ch := make(chan models.CoverState, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

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

// Publish hands st to every subscriber without waiting.
func (b *Broadcaster) Publish(st models.CoverState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- st:
		default:
			b.log.Debugw("update_dropped", "subscriber", id, "cover", st.ID)
		}
	}
}

func (b *Broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
