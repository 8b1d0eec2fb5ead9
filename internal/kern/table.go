package kern

// table is the fixed-capacity task table. All records are allocated up
// front; a slot with StatusNone is unused. Slot 0 belongs to the idle
// task, slots 1..size-1 to application tasks in registration order.
type table struct {
	tasks  []task
	size   int // registered entries, idle included
	cursor int // round-robin scan origin: the most recently active slot
}

func newTable(capacity int) *table {
	return &table{tasks: make([]task, capacity)}
}

func (tb *table) reset() {
	for i := range tb.tasks {
		tb.tasks[i] = task{}
	}
	tb.size = 0
	tb.cursor = 0
}

func (tb *table) capacity() int { return len(tb.tasks) }

func (tb *table) full() bool { return tb.size >= len(tb.tasks) }

func (tb *table) record(i int) *task { return &tb.tasks[i] }

func (tb *table) valid(id TaskID) bool {
	return id >= 0 && int(id) < tb.size
}

// activeCount is used to check the single-Active invariant.
func (tb *table) activeCount() int {
	n := 0
	for i := 0; i < tb.size; i++ {
		if tb.tasks[i].status == StatusActive {
			n++
		}
	}
	return n
}
