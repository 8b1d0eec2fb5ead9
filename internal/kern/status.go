package kern

// Status is the scheduling state of one task record.
type Status uint8

const (
	// StatusNone is the zero value of an unregistered table slot.
	StatusNone Status = iota
	// StatusReady marks a task eligible for selection.
	StatusReady
	// StatusActive marks the task currently owning the core. At most
	// one record is Active at any instant once the scheduler started.
	StatusActive
	// StatusWaiting marks a task sleeping on its tick countdown.
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusReady:
		return "Ready"
	case StatusActive:
		return "Active"
	case StatusWaiting:
		return "Waiting"
	default:
		return "Unknown"
	}
}

// CanBecome reports whether the transition s -> to is legal.
// The closed set of transitions:
//
//	None    -> Ready            (registration)
//	Ready   -> Active           (dispatch)
//	Active  -> Ready            (preemption/demotion)
//	Active  -> Waiting          (voluntary wait)
//	Waiting -> Ready            (tick expiry)
//
// Everything else is rejected; in particular Waiting never goes
// directly to Active.
func (s Status) CanBecome(to Status) bool {
	switch s {
	case StatusNone:
		return to == StatusReady
	case StatusReady:
		return to == StatusActive
	case StatusActive:
		return to == StatusReady || to == StatusWaiting
	case StatusWaiting:
		return to == StatusReady
	default:
		return false
	}
}
