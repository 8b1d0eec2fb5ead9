package kern

// EventKind classifies a scheduler trace event.
type EventKind int

const (
	EventInit EventKind = iota
	EventRegister
	EventStart
	EventTick
	EventSleep    // a task entered Waiting
	EventWake     // a wait countdown expired
	EventDispatch // a reschedule selected the next task
	EventFault
)

// Event is one entry of the scheduler trace.
type Event struct {
	Tick     uint64 // tick counter at the time of the event
	Kind     EventKind
	Task     TaskID // subject task, where one applies
	Prev     TaskID // dispatch only: the task being suspended
	Next     TaskID // dispatch only: the task being resumed
	Switched bool   // dispatch only: a context switch was signaled
}

func (k EventKind) String() string {
	switch k {
	case EventInit:
		return "Init"
	case EventRegister:
		return "Register"
	case EventStart:
		return "Start"
	case EventTick:
		return "Tick"
	case EventSleep:
		return "Sleep"
	case EventWake:
		return "Wake"
	case EventDispatch:
		return "Dispatch"
	case EventFault:
		return "Fault"
	default:
		return "Unknown"
	}
}
