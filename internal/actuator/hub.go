package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"timebased_cover/internal/logger"
)

const (
	// subscriptionBuffer bounds each subscriber queue; slow readers drop events.
	subscriptionBuffer = 64

	// DefaultCommandSettle is how long a polled read may disagree with a
	// command before it counts as external operation.
	DefaultCommandSettle = 2 * time.Second
)

// Hub dispatches commands to a Backend and publishes state changes to
// subscribers scoped to specific actuator ids.
//
// Changes caused by Send are published with OriginCommand. Changes found by
// the watcher (Poll/Run) that the Hub did not cause are published with
// OriginExternal, which is how manual switch operation is detected.
//
// Backends may keep reporting the previous state for a while after a command.
// Until a read confirms the command, or the settle window passes, polled reads
// that disagree with it are dropped.
type Hub struct {
	backend Backend
	log     *logger.Logger
	now     func() time.Time
	settle  time.Duration

	mu      sync.RWMutex
	known   map[string]State
	pending map[string]pendingCommand
	subs    map[*subscription]struct{}
}

// pendingCommand is a command not yet confirmed by a read.
type pendingCommand struct {
	state State
	at    time.Time
}

type subscription struct {
	ids map[string]struct{}
	ch  chan StateChange
}

// NewHub wraps backend. A nil log discards output.
func NewHub(backend Backend, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		backend: backend,
		log:     log,
		now:     time.Now,
		settle:  DefaultCommandSettle,
		known:   make(map[string]State),
		pending: make(map[string]pendingCommand),
		subs:    make(map[*subscription]struct{}),
	}
}

// SetCommandSettle changes the settle window. Zero trusts every read.
func (h *Hub) SetCommandSettle(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d < 0 {
		d = 0
	}
	h.settle = d
}

// Ensure Hub satisfies Switches at compile time.
var _ Switches = (*Hub)(nil)

// Send forwards the command and records the resulting state as self-originated.
func (h *Hub) Send(ctx context.Context, id string, on bool, wait bool) error {
	if err := h.backend.Send(ctx, id, on, wait); err != nil {
		return fmt.Errorf("send %s=%s: %w", id, stateFor(on), err)
	}
	h.log.Debugw("actuator_send", "id", id, "state", stateFor(on))
	h.mu.Lock()
	h.pending[id] = pendingCommand{state: stateFor(on), at: h.now()}
	h.mu.Unlock()
	h.observe(id, stateFor(on), OriginCommand)
	return nil
}

// QueryState reads the backend without touching change tracking.
func (h *Hub) QueryState(ctx context.Context, id string) (State, error) {
	st, err := h.backend.QueryState(ctx, id)
	if err != nil {
		return Unknown, fmt.Errorf("query %s: %w", id, err)
	}
	return st, nil
}

// Subscribe returns a channel receiving changes for ids only, and a cancel
// function that must be called when done. Subscribed ids are watched by Poll.
func (h *Hub) Subscribe(ids ...string) (<-chan StateChange, func()) {
	sub := &subscription{
		ids: make(map[string]struct{}, len(ids)),
		ch:  make(chan StateChange, subscriptionBuffer),
	}
	for _, id := range ids {
		if id != "" {
			sub.ids[id] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Poll queries every watched actuator once and publishes external changes.
// The first observation of an id only seeds tracking.
func (h *Hub) Poll(ctx context.Context) {
	for _, id := range h.watched() {
		st, err := h.backend.QueryState(ctx, id)
		if err != nil {
			h.log.Debugw("actuator_poll_failed", "id", id, "err", err)
			st = Unavailable
		}
		if h.lagging(id, st) {
			h.log.Debugw("actuator_read_lagging", "id", id, "state", st)
			continue
		}
		h.observe(id, st, OriginExternal)
	}
}

// Run polls at the given interval until ctx is canceled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Poll(ctx)
		}
	}
}

// Close releases the backend.
func (h *Hub) Close() error {
	return h.backend.Close()
}

// watched returns the union of subscribed ids.
func (h *Hub) watched() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0, len(h.subs)*3)
	for sub := range h.subs {
		for id := range sub.ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// lagging reports whether a polled st is a stale read of an unconfirmed command.
func (h *Hub) lagging(id string, st State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[id]
	if !ok {
		return false
	}
	if st == p.state || !st.Usable() || h.now().Sub(p.at) >= h.settle {
		delete(h.pending, id)
		return false
	}
	return true
}

// observe records st for id and publishes a change if it differs.
func (h *Hub) observe(id string, st State, origin Origin) {
	h.mu.Lock()
	old, tracked := h.known[id]
	h.known[id] = st
	if tracked && old == st {
		h.mu.Unlock()
		return
	}
	if !tracked && origin == OriginExternal {
		h.mu.Unlock()
		return
	}
	if !tracked {
		old = Unknown
	}
	ev := StateChange{ID: id, Old: old, New: st, Origin: origin, At: h.now().UTC()}
	targets := make([]chan StateChange, 0, len(h.subs))
	for sub := range h.subs {
		if _, ok := sub.ids[id]; ok {
			targets = append(targets, sub.ch)
		}
	}
	// publish under the lock so cancel cannot close a channel mid-send
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			h.log.Warnw("actuator_event_dropped", "id", id, "new", st)
		}
	}
	h.mu.Unlock()

	if origin == OriginExternal {
		h.log.Infow("actuator_external_change", "id", id, "old", old, "new", st)
	}
}
