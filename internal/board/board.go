// Package board is a simulated port for the kern scheduler: a ticker
// goroutine stands in for the systick timer, and the context-switch
// routine launches each task's entry as a goroutine the first time the
// task is dispatched. Suspended tasks park themselves inside
// Scheduler.Wait, so the one-goroutine-per-task model approximates a
// single core well enough for demos and tests.
package board

import (
	"log/slog"
	"sync"
	"time"

	"tickos/internal/kern"
)

// Board implements kern.Port against simulated hardware.
type Board struct {
	log   *slog.Logger
	clock *TickClock

	mu       sync.Mutex
	sched    *kern.Scheduler
	launched map[kern.TaskID]bool
	faults   []error
}

// New creates a board. Bind must be called before the scheduler starts.
func New(log *slog.Logger) *Board {
	if log == nil {
		log = slog.Default()
	}
	return &Board{
		log:      log,
		clock:    NewTickClock(),
		launched: make(map[kern.TaskID]bool),
	}
}

// Bind attaches the scheduler whose Tick the timer drives and whose
// frames the context switch consumes.
func (b *Board) Bind(s *kern.Scheduler) {
	b.mu.Lock()
	b.sched = s
	b.mu.Unlock()
}

// Clock exposes the simulated systick.
func (b *Board) Clock() *TickClock { return b.clock }

// ConfigurePriorities orders tick and trap above the context-switch
// mechanism. The simulation has no interrupt controller; the ordering
// holds by construction, so this only logs.
func (b *Board) ConfigurePriorities() {
	b.log.Debug("interrupt priorities configured",
		"systick", 0, "svcall", 0, "pendsv", 0xff)
}

// ArmTimer starts the periodic tick source.
func (b *Board) ArmTimer(interval time.Duration) error {
	if interval <= 0 {
		return kern.ErrInvalidParam
	}
	b.mu.Lock()
	s := b.sched
	b.mu.Unlock()
	if s == nil {
		return kern.ErrInvalidParam
	}
	b.clock.Start(interval, s.Tick)
	b.log.Debug("tick timer armed", "interval", interval)
	return nil
}

// Switch consumes one handoff. The first time a task is resumed its
// pristine frame is decoded and its entry launched with the parameter
// resolved from the frame's R0 slot; on later resumptions the task's
// own Wait spin releases it, so there is nothing to do here.
func (b *Board) Switch(h kern.Handoff) {
	b.mu.Lock()
	s := b.sched
	done := b.launched[h.Next]
	if !done {
		b.launched[h.Next] = true
	}
	b.mu.Unlock()

	if done || s == nil {
		return
	}

	f, err := s.TaskFrame(h.Next)
	if err != nil {
		b.log.Error("context switch: frame decode failed", "task", int(h.Next), "err", err)
		return
	}
	entry, err := s.TaskEntry(h.Next)
	if err != nil || entry == nil {
		b.log.Error("context switch: no entry for task", "task", int(h.Next), "err", err)
		return
	}
	params, err := s.TaskParams(kern.TaskID(f.R0))
	if err != nil {
		b.log.Error("context switch: bad R0 slot", "task", int(h.Next), "err", err)
		return
	}

	b.log.Debug("context switch", "prev", int(h.Prev), "next", int(h.Next))
	go entry(params)
}

// DropPrivilege leaves the privileged level before the first task
// entry. The first task is entered by Start itself, not through
// Switch, so it is marked launched here.
func (b *Board) DropPrivilege() {
	b.mu.Lock()
	s := b.sched
	b.mu.Unlock()
	if s != nil {
		cur := s.Cursor()
		b.mu.Lock()
		b.launched[cur] = true
		b.mu.Unlock()
	}
	b.log.Debug("dropped to unprivileged thread mode")
}

// Fault records an unrecoverable condition.
func (b *Board) Fault(err error) {
	b.mu.Lock()
	b.faults = append(b.faults, err)
	b.mu.Unlock()
	b.log.Error("fatal scheduler fault", "err", err)
}

// Faults returns the reported fatal conditions.
func (b *Board) Faults() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]error, len(b.faults))
	copy(out, b.faults)
	return out
}
