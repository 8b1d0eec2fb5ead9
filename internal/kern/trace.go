package kern

import (
	"sync"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

// Observer receives every recorded scheduler event. Observers must not
// call back into the Scheduler.
type Observer interface {
	Observe(Event)
}

// trace is a bounded in-memory record of scheduler events. The ring
// keeps the newest depth events; older ones are overwritten.
type trace struct {
	mu   sync.Mutex
	ring *circularbuffer.Queue
	obs  []Observer
}

func newTrace(depth int) *trace {
	if depth <= 0 {
		depth = 1
	}
	return &trace{ring: circularbuffer.New(depth)}
}

func (t *trace) addObserver(o Observer) {
	t.mu.Lock()
	t.obs = append(t.obs, o)
	t.mu.Unlock()
}

func (t *trace) record(ev Event) {
	t.mu.Lock()
	t.ring.Enqueue(ev)
	obs := t.obs
	t.mu.Unlock()
	for _, o := range obs {
		o.Observe(ev)
	}
}

// events returns a snapshot of the ring, oldest first.
func (t *trace) events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	vals := t.ring.Values()
	out := make([]Event, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(Event))
	}
	return out
}
