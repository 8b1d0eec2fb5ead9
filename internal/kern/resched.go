package kern

// Trap operation codes.
const (
	// TrapReschedule requests the reschedule procedure from the
	// privileged context.
	TrapReschedule uint8 = 0x01
)

// rescheduleLocked selects the next task to run. Callers hold s.mu,
// which stands in for the interrupt masking the procedure requires.
//
// The scan starts just past the previous cursor rather than from slot
// 1: no ready task is revisited before every other ready task has had
// a turn, so no task starves while at least one stays Ready across
// rounds. Worst case is one bounded pass over the table.
func (s *Scheduler) rescheduleLocked() Handoff {
	cur := s.table.cursor
	curRec := s.table.record(cur)

	// A running application task is demoted and stays eligible for the
	// next round; that also short-circuits the ready scan.
	readyExists := false
	if cur != 0 && curRec.status == StatusActive {
		if err := curRec.become(StatusReady); err == nil {
			readyExists = true
		}
	} else {
		for i := 1; i < s.table.size; i++ {
			if s.table.record(i).status == StatusReady {
				readyExists = true
				break
			}
		}
	}

	next := 0
	if readyExists {
		// Bounded round-robin scan from cursor+1, wrapping to 1.
		next = cur
		for {
			next++
			if next >= s.table.size {
				next = 1
			}
			if s.table.record(next).status == StatusReady {
				break
			}
		}
	}

	// Idle keeps the core only while nothing else is ready; once an
	// application task takes over, slot 0 is demoted like any other
	// task being switched away from, keeping at most one record Active.
	if cur == 0 && next != 0 && curRec.status == StatusActive {
		if err := curRec.become(StatusReady); err != nil {
			panic(err)
		}
	}

	nextRec := s.table.record(next)
	if nextRec.status != StatusActive {
		if err := nextRec.become(StatusActive); err != nil {
			// Selection only ever lands on Ready records; anything
			// else means the table is corrupted.
			panic(err)
		}
	}
	s.table.cursor = next

	h := Handoff{
		Prev:           TaskID(cur),
		Next:           TaskID(next),
		SwitchRequired: next != cur,
	}
	s.trace.record(Event{
		Tick:     s.nticks,
		Kind:     EventDispatch,
		Task:     h.Next,
		Prev:     h.Prev,
		Next:     h.Next,
		Switched: h.SwitchRequired,
	})
	return h
}

// Tick is the periodic timer handler. It ages every waiting task,
// waking those whose countdown reaches zero, and then reschedules
// unconditionally. A wait for n ticks becomes eligible after the n-th
// subsequent tick; the task goes Waiting -> Ready, never directly to
// Active.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	if s.state != StateStarted || s.halted {
		s.mu.Unlock()
		return
	}
	s.nticks++

	for i := 1; i < s.table.size; i++ {
		rec := s.table.record(i)
		if rec.status != StatusWaiting {
			continue
		}
		rec.waitTicks--
		if rec.waitTicks == 0 {
			if err := rec.become(StatusReady); err == nil {
				s.trace.record(Event{Tick: s.nticks, Kind: EventWake, Task: TaskID(i)})
			}
		}
	}
	s.trace.record(Event{Tick: s.nticks, Kind: EventTick})

	h := s.rescheduleLocked()
	s.mu.Unlock()

	if h.SwitchRequired {
		s.port.Switch(h)
	}
}

// Trap demultiplexes software-triggered privileged operations. frame
// is the interrupted task's saved exception frame; the reschedule
// operation does not consume it. Unknown codes are surfaced as
// ErrUnknownTrap rather than silently dropped.
func (s *Scheduler) Trap(code uint8, frame []Word) error {
	switch code {
	case TrapReschedule:
		s.mu.Lock()
		if s.state != StateStarted || s.halted {
			s.mu.Unlock()
			return ErrWrongState
		}
		h := s.rescheduleLocked()
		s.mu.Unlock()

		if h.SwitchRequired {
			s.port.Switch(h)
		}
		return nil
	default:
		return ErrUnknownTrap
	}
}
