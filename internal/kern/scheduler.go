// Package kern is a minimal preemptible round-robin scheduler for a
// single-core target: a fixed-capacity task table, tick-driven timed
// waits, and the register-frame layout consumed by an external
// context-switch routine. All machine state lives behind the Port
// interface, so a simulated board can drive the kernel deterministically.
package kern

import (
	"runtime"
	"sync"
	"time"
)

// State is the process-wide lifecycle phase. Transitions are strictly
// monotonic: Default -> Initialized -> TasksRegistered -> Started.
type State uint8

const (
	StateDefault State = iota + 1
	StateInitialized
	StateTasksRegistered
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateInitialized:
		return "Initialized"
	case StateTasksRegistered:
		return "TasksRegistered"
	case StateStarted:
		return "Started"
	default:
		return "Unknown"
	}
}

// Scheduler owns the task table and the lifecycle phase. The mutex is
// the software analog of interrupt masking: every table access from
// the tick handler, the trap dispatcher and the public operations runs
// under it, which is acceptable because each critical section is O(table).
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	port    Port
	state   State
	table   *table
	trace   *trace
	nticks uint64
	halted bool
	exitPC Word // LR slot of every initial frame
}

// New creates an unstarted scheduler in phase Default. The table
// capacity is cfg.MaxTasks application slots plus the idle slot.
func New(cfg Config, port Port) *Scheduler {
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = defaultConfig().MaxTasks
	}
	if cfg.StackWords < FrameWords {
		cfg.StackWords = defaultConfig().StackWords
	}
	s := &Scheduler{
		cfg:   cfg,
		port:  port,
		state: StateDefault,
		table: newTable(cfg.MaxTasks + 1),
		trace: newTrace(cfg.TraceDepth),
	}
	s.exitPC = codeAddr(s.taskReturned)
	return s
}

// AddObserver attaches an event observer. Must be called before Start.
func (s *Scheduler) AddObserver(o Observer) {
	s.trace.addObserver(o)
}

// Init moves Default -> Initialized, clears the table and registers
// the idle task at slot 0. Re-invocation fails with ErrWrongState.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDefault {
		return ErrWrongState
	}

	s.table.reset()
	idleStack := make([]Word, s.cfg.StackWords)
	if err := s.registerLocked(idleEntry, nil, idleStack); err != nil {
		return err
	}

	// The first registered application task will land at slot 1 and is
	// the one Start enters.
	s.table.cursor = 1
	s.state = StateInitialized
	s.trace.record(Event{Kind: EventInit, Task: IdleTask})
	return nil
}

// RegisterTask adds an application task before the scheduler starts.
// The caller owns stack for the task's whole lifetime; its top
// FrameWords words are overwritten with the initial register frame.
func (s *Scheduler) RegisterTask(entry EntryFunc, params any, stack []Word) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized && s.state != StateTasksRegistered {
		return ErrWrongState
	}
	if entry == nil {
		return ErrInvalidParam
	}
	if err := s.registerLocked(entry, params, stack); err != nil {
		return err
	}
	s.state = StateTasksRegistered
	s.trace.record(Event{Tick: s.nticks, Kind: EventRegister, Task: TaskID(s.table.size - 1)})
	return nil
}

// registerLocked writes the initial frame and fills the next free
// record. The frame restores to: PC = entry, LR = the completion trap
// target, R0 = the task's own table index (resolved back to params by
// the collaborator through TaskParams), xPSR = default thread flags.
func (s *Scheduler) registerLocked(entry EntryFunc, params any, stack []Word) error {
	if len(stack) < FrameWords {
		return ErrStackTooSmall
	}
	if s.table.full() {
		return ErrTableFull
	}

	idx := s.table.size
	f := Frame{
		XPSR: DefaultXPSR,
		PC:   FuncPC(entry),
		LR:   s.exitPC,
		R0:   Word(idx),
	}
	sp, err := EncodeFrame(stack, f)
	if err != nil {
		return err
	}

	rec := s.table.record(idx)
	rec.entry = entry
	rec.params = params
	rec.stack = stack
	rec.sp = sp
	if err := rec.become(StatusReady); err != nil {
		return err
	}
	s.table.size++
	return nil
}

// Start configures interrupt priorities, arms the periodic timer and
// transfers control into the first registered task at a reduced
// privilege level. Under correct operation it never returns; tasks run
// forever or suspend via Wait. It returns only on a precondition
// failure (ErrWrongState, ErrInvalidParam).
func (s *Scheduler) Start(tickInterval time.Duration) error {
	s.mu.Lock()

	if s.state != StateTasksRegistered {
		s.mu.Unlock()
		return ErrWrongState
	}

	s.port.ConfigurePriorities()
	if err := s.port.ArmTimer(tickInterval); err != nil {
		s.mu.Unlock()
		return err
	}

	first := s.table.record(s.table.cursor)
	if err := first.become(StatusActive); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateStarted
	entry, params := first.entry, first.params
	s.trace.record(Event{Tick: s.nticks, Kind: EventStart, Task: TaskID(s.table.cursor)})
	s.mu.Unlock()

	s.port.DropPrivilege()
	entry(params)

	// The first task's entry returned without ever being switched out.
	s.taskReturned()
	return ErrTaskFinished
}

// Wait suspends the calling task for at least ticks timer periods. A
// zero-tick wait returns immediately with no state change. The return
// happens only after the tick handler has moved the task back to Ready
// and a later reschedule has dispatched it again: the defensive spin
// releases the caller only once its own record is Active, so a
// woken-but-undispatched task cannot run early, and a resumed caller
// is always the task the cursor names.
func (s *Scheduler) Wait(ticks uint32) error {
	s.mu.Lock()
	if s.state != StateStarted {
		s.mu.Unlock()
		return ErrWrongState
	}
	if ticks == 0 {
		s.mu.Unlock()
		return nil
	}

	rec := s.table.record(s.table.cursor)
	if err := rec.become(StatusWaiting); err != nil {
		s.mu.Unlock()
		return err
	}
	rec.waitTicks = ticks
	s.trace.record(Event{Tick: s.nticks, Kind: EventSleep, Task: TaskID(s.table.cursor)})
	s.mu.Unlock()

	// Table mutation that triggers a context switch is restricted to
	// the privileged context, so request it through the trap.
	if err := s.Trap(TrapReschedule, nil); err != nil {
		return err
	}

	for {
		s.mu.Lock()
		st := rec.status
		s.mu.Unlock()
		if st == StatusActive {
			return nil
		}
		runtime.Gosched()
	}
}

// taskReturned is the completion trap target every initial frame's LR
// points at. A returning entry is fatal: report once, then halt.
func (s *Scheduler) taskReturned() {
	s.mu.Lock()
	already := s.halted
	s.halted = true
	cur := TaskID(s.table.cursor)
	s.trace.record(Event{Tick: s.nticks, Kind: EventFault, Task: cur})
	s.mu.Unlock()

	if !already {
		s.port.Fault(ErrTaskFinished)
	}

	// Controlled halt: nothing is left to schedule to.
	select {}
}

// idleEntry is the default idle task body: always eligible, never
// returns, yields the simulated core.
func idleEntry(any) {
	for {
		runtime.Gosched()
	}
}

// State returns the current lifecycle phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Halted reports whether the fatal completion path has run.
func (s *Scheduler) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// TaskCount returns the number of registered tasks, idle included.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.size
}

// Cursor returns the most recently selected task.
func (s *Scheduler) Cursor() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return TaskID(s.table.cursor)
}

// Ticks returns the number of tick events processed so far.
func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nticks
}

// TaskStatus returns the status of a registered task.
func (s *Scheduler) TaskStatus(id TaskID) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.table.valid(id) {
		return StatusNone, ErrInvalidParam
	}
	return s.table.record(int(id)).status, nil
}

// TaskParams returns the opaque parameter a task was registered with.
// The context-switch routine uses it to resolve a frame's R0 slot.
func (s *Scheduler) TaskParams(id TaskID) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.table.valid(id) {
		return nil, ErrInvalidParam
	}
	return s.table.record(int(id)).params, nil
}

// TaskFrame decodes the register frame currently saved at a task's
// stack pointer.
func (s *Scheduler) TaskFrame(id TaskID) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.table.valid(id) {
		return Frame{}, ErrInvalidParam
	}
	rec := s.table.record(int(id))
	return DecodeFrame(rec.stack, rec.sp)
}

// TaskEntry returns the entry function a task was registered with.
// The context-switch routine resolves the dispatched task by its
// handoff index; the frame's PC slot is layout data only, since a code
// address does not uniquely identify a Go function value.
func (s *Scheduler) TaskEntry(id TaskID) (EntryFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.table.valid(id) {
		return nil, ErrInvalidParam
	}
	return s.table.record(int(id)).entry, nil
}

// ExitAddr is the completion trap target written into every initial
// frame's LR slot.
func (s *Scheduler) ExitAddr() Word {
	return s.exitPC
}

// Events returns a snapshot of the bounded trace, oldest first.
func (s *Scheduler) Events() []Event {
	return s.trace.events()
}
