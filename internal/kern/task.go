package kern

// TaskID identifies a task by its index in the task table.
// ID 0 is permanently reserved for the idle task.
type TaskID int

// IdleTask is the table slot of the idle task.
const IdleTask TaskID = 0

// EntryFunc is a task body. An entry either runs forever or suspends
// itself through Scheduler.Wait; returning from it is a fatal
// condition (ErrTaskFinished).
type EntryFunc func(params any)

// task is one record of the task table. A record is created once at
// registration and lives for the rest of the program; the scheduler
// mutates status/waitTicks and the context-switch collaborator owns
// the saved stack pointer thereafter.
type task struct {
	sp        int    // stack-pointer word index into stack
	stack     []Word // caller-owned buffer holding the register frame
	entry     EntryFunc
	params    any
	waitTicks uint32
	status    Status
}

// become applies a validated status transition.
func (t *task) become(to Status) error {
	if !t.status.CanBecome(to) {
		return ErrBadTransition
	}
	t.status = to
	return nil
}
