package kern

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"
)

// fakePort records every collaborator interaction and never runs a
// real timer; tests drive Tick themselves for determinism.
type fakePort struct {
	mu       sync.Mutex
	armErr   error
	armed    []time.Duration
	switches []Handoff
	faults   []error
	faulted  chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{faulted: make(chan struct{})}
}

func (p *fakePort) ConfigurePriorities() {}
func (p *fakePort) DropPrivilege()       {}

func (p *fakePort) ArmTimer(interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.armErr != nil {
		return p.armErr
	}
	p.armed = append(p.armed, interval)
	return nil
}

func (p *fakePort) Switch(h Handoff) {
	p.mu.Lock()
	p.switches = append(p.switches, h)
	p.mu.Unlock()
}

func (p *fakePort) Fault(err error) {
	p.mu.Lock()
	p.faults = append(p.faults, err)
	first := len(p.faults) == 1
	p.mu.Unlock()
	if first {
		close(p.faulted)
	}
}

func (p *fakePort) switchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.switches)
}

func (p *fakePort) lastSwitch() (Handoff, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.switches) == 0 {
		return Handoff{}, false
	}
	return p.switches[len(p.switches)-1], true
}

func newTestSched(maxTasks int) (*Scheduler, *fakePort) {
	port := newFakePort()
	s := New(Config{MaxTasks: maxTasks, StackWords: 32, TraceDepth: 64}, port)
	return s, port
}

func newStack() []Word { return make([]Word, 32) }

// blockForever is a task body that parks without ever returning.
func blockForever(any) { select {} }

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// startSched registers nothing; the caller must have reached
// TasksRegistered. Start runs in its own goroutine because it does not
// return while the first task runs.
func startSched(t *testing.T, s *Scheduler) {
	t.Helper()
	go func() { _ = s.Start(time.Millisecond) }()
	waitUntil(t, func() bool { return s.State() == StateStarted })
}

func activeCount(s *Scheduler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.activeCount()
}

func TestInitLifecycle(t *testing.T) {
	s, _ := newTestSched(2)

	if s.State() != StateDefault {
		t.Fatalf("state = %v, want Default", s.State())
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.State() != StateInitialized {
		t.Fatalf("state = %v, want Initialized", s.State())
	}
	if s.TaskCount() != 1 {
		t.Fatalf("TaskCount = %d, want 1 (idle)", s.TaskCount())
	}
	if s.Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1", s.Cursor())
	}

	if err := s.Init(); err != ErrWrongState {
		t.Fatalf("second Init err = %v, want ErrWrongState", err)
	}
}

func TestRegisterRequiresInit(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.RegisterTask(blockForever, nil, newStack()); err != ErrWrongState {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	if err := s.RegisterTask(nil, nil, newStack()); err != ErrInvalidParam {
		t.Fatalf("nil entry err = %v, want ErrInvalidParam", err)
	}
	if err := s.RegisterTask(blockForever, nil, make([]Word, FrameWords-1)); err != ErrStackTooSmall {
		t.Fatalf("small stack err = %v, want ErrStackTooSmall", err)
	}
	if s.TaskCount() != 1 {
		t.Fatalf("TaskCount = %d after failed registrations, want 1", s.TaskCount())
	}
}

func TestRegisterCapacityExhaustion(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	before := s.TaskCount()
	if err := s.RegisterTask(blockForever, nil, newStack()); err != ErrTableFull {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
	if s.TaskCount() != before {
		t.Fatalf("TaskCount changed by failed registration: %d -> %d", before, s.TaskCount())
	}
}

// The initial register frame must restore to: PC = entry, LR = the
// completion trap target, R0 = the task's own slot, xPSR = default
// thread-mode flags.
func TestRegistrationFrameContract(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	entry := EntryFunc(blockForever)
	params := "p1"
	if err := s.RegisterTask(entry, params, newStack()); err != nil {
		t.Fatal(err)
	}

	f, err := s.TaskFrame(1)
	if err != nil {
		t.Fatalf("TaskFrame: %v", err)
	}
	if f.PC != FuncPC(entry) {
		t.Errorf("PC = %#x, want %#x", f.PC, FuncPC(entry))
	}
	if f.LR != s.ExitAddr() {
		t.Errorf("LR = %#x, want exit address %#x", f.LR, s.ExitAddr())
	}
	if f.R0 != 1 {
		t.Errorf("R0 = %d, want task slot 1", f.R0)
	}
	if f.XPSR != DefaultXPSR {
		t.Errorf("XPSR = %#x, want %#x", f.XPSR, DefaultXPSR)
	}

	if got, err := s.TaskEntry(1); err != nil || got == nil {
		t.Errorf("TaskEntry(1) = %v, %v", got, err)
	}
	p, err := s.TaskParams(TaskID(f.R0))
	if err != nil || p != params {
		t.Errorf("TaskParams(R0) = %v, %v; want %q", p, err, params)
	}
}

// Two tasks registered with distinct closures of the same literal must
// resolve to their own entries; the dispatch index, not the frame PC,
// identifies the function.
func TestTaskEntryResolvesPerTask(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	ran := [2]chan struct{}{make(chan struct{}, 1), make(chan struct{}, 1)}
	for i := 0; i < 2; i++ {
		ch := ran[i]
		entry := func(any) {
			ch <- struct{}{}
			select {}
		}
		if err := s.RegisterTask(entry, nil, newStack()); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		entry, err := s.TaskEntry(TaskID(i + 1))
		if err != nil {
			t.Fatalf("TaskEntry(%d): %v", i+1, err)
		}
		go entry(nil)
		select {
		case <-ran[i]:
		case <-time.After(2 * time.Second):
			t.Fatalf("entry %d never signaled its own channel", i+1)
		}
	}

	if _, err := s.TaskEntry(5); err != ErrInvalidParam {
		t.Fatalf("TaskEntry(5) err = %v, want ErrInvalidParam", err)
	}
}

func TestStartRequiresRegisteredTasks(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Start(time.Millisecond); err != ErrWrongState {
		t.Fatalf("Start in Default err = %v, want ErrWrongState", err)
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	// Idle alone does not advance the phase; an application task must
	// be registered first.
	if err := s.Start(time.Millisecond); err != ErrWrongState {
		t.Fatalf("Start in Initialized err = %v, want ErrWrongState", err)
	}
}

func TestStartTimerRejection(t *testing.T) {
	s, port := newTestSched(2)
	port.armErr = ErrInvalidParam
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(0); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("err = %v, want ErrInvalidParam", err)
	}
	if s.State() != StateTasksRegistered {
		t.Fatalf("state = %v after failed Start, want TasksRegistered", s.State())
	}
}

func TestStartEntersFirstTask(t *testing.T) {
	s, port := newTestSched(2)
	entered := make(chan any, 1)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	err := s.RegisterTask(func(params any) {
		entered <- params
		select {}
	}, "first", newStack())
	if err != nil {
		t.Fatal(err)
	}

	startSched(t, s)

	select {
	case p := <-entered:
		if p != "first" {
			t.Fatalf("entry params = %v, want %q", p, "first")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first task entry never ran")
	}

	port.mu.Lock()
	armed := append([]time.Duration(nil), port.armed...)
	port.mu.Unlock()
	if len(armed) != 1 || armed[0] != time.Millisecond {
		t.Fatalf("armed = %v", armed)
	}

	st, err := s.TaskStatus(1)
	if err != nil || st != StatusActive {
		t.Fatalf("task 1 status = %v, %v; want Active", st, err)
	}
	if n := activeCount(s); n != 1 {
		t.Fatalf("active count = %d, want 1", n)
	}
}

func TestWaitRequiresStarted(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Wait(1); err != ErrWrongState {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestWaitZeroTicksIsNoOp(t *testing.T) {
	s, port := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
		t.Fatal(err)
	}
	startSched(t, s)

	before := port.switchCount()
	if err := s.Wait(0); err != nil {
		t.Fatalf("Wait(0) = %v", err)
	}
	if st, _ := s.TaskStatus(1); st != StatusActive {
		t.Fatalf("status = %v after Wait(0), want Active", st)
	}
	if port.switchCount() != before {
		t.Fatal("Wait(0) must not trigger a reschedule")
	}
}

func TestTrapUnknownCode(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Trap(0x7f, nil); err != ErrUnknownTrap {
		t.Fatalf("err = %v, want ErrUnknownTrap", err)
	}
}

func TestTrapRescheduleRequiresStarted(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Trap(TrapReschedule, nil); err != ErrWrongState {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestSingleActiveInvariant(t *testing.T) {
	s, _ := newTestSched(3)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
			t.Fatal(err)
		}
	}
	startSched(t, s)

	for i := 0; i < 10; i++ {
		s.Tick()
		if n := activeCount(s); n != 1 {
			t.Fatalf("after tick %d: active count = %d, want 1", i+1, n)
		}
	}

	// Park every application task so the idle fallback runs, then let
	// them all wake and take the core back from idle.
	s.mu.Lock()
	for i := 1; i <= 3; i++ {
		rec := s.table.record(i)
		rec.status = StatusWaiting
		rec.waitTicks = 2
	}
	s.mu.Unlock()

	for i := 0; i < 5; i++ {
		s.Tick()
		if n := activeCount(s); n != 1 {
			t.Fatalf("idle phase, after tick %d: active count = %d, want 1", i+1, n)
		}
	}
}

// A task woken to Ready must not resume until it is dispatched again;
// an early resumption would let its next Wait mark whichever task the
// cursor names by then.
func TestWaitMarksOnlyCaller(t *testing.T) {
	s, _ := newTestSched(3)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	t1 := func(any) {
		if err := s.Wait(1); err != nil {
			t.Errorf("first Wait: %v", err)
		}
		if err := s.Wait(5); err != nil {
			t.Errorf("second Wait: %v", err)
		}
		select {}
	}
	if err := s.RegisterTask(t1, nil, newStack()); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
		t.Fatal(err)
	}
	startSched(t, s)

	waitUntil(t, func() bool {
		st, _ := s.TaskStatus(1)
		return st == StatusWaiting
	})

	// The first tick wakes T1 to Ready; further reschedules dispatch
	// T2/T3 before T1's turn comes around again.
	s.Tick()
	s.Tick()

	// T1's second Wait runs only once T1 itself is dispatched.
	waitUntil(t, func() bool {
		st, _ := s.TaskStatus(1)
		return st == StatusWaiting
	})

	if st, _ := s.TaskStatus(2); st == StatusWaiting {
		t.Fatal("T2 marked Waiting although only T1 ever called Wait")
	}
	if st, _ := s.TaskStatus(3); st == StatusWaiting {
		t.Fatal("T3 marked Waiting although only T1 ever called Wait")
	}
}

func TestEventsTrace(t *testing.T) {
	s, _ := newTestSched(2)
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterTask(blockForever, nil, newStack()); err != nil {
		t.Fatal(err)
	}

	evs := s.Events()
	if len(evs) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(evs))
	}
	if evs[0].Kind != EventInit || evs[1].Kind != EventRegister {
		t.Fatalf("event kinds = %v, %v", evs[0].Kind, evs[1].Kind)
	}
	if evs[1].Task != 1 {
		t.Fatalf("register event task = %d, want 1", evs[1].Task)
	}
}
