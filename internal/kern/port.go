package kern

import "time"

// Handoff is the result of one reschedule: the task being suspended,
// the task being resumed, and whether the context-switch routine has
// anything to do. It is produced with the table locked and consumed
// exactly once by the port.
type Handoff struct {
	Prev           TaskID
	Next           TaskID
	SwitchRequired bool
}

// Port is the hardware collaborator contract. The scheduler owns the
// task table and the selection policy; everything that touches real
// machine state (timer, interrupt priorities, register save/restore,
// privilege level, fault escalation) lives behind this interface.
type Port interface {
	// ConfigurePriorities orders the tick and trap sources above the
	// context-switch mechanism, which must run at the lowest priority.
	ConfigurePriorities()

	// ArmTimer starts the periodic tick source. Implementations reject
	// intervals the hardware cannot program with ErrInvalidParam.
	ArmTimer(interval time.Duration) error

	// Switch performs the register save/restore for a handoff with
	// SwitchRequired set. The scheduler only prepares the frames; it
	// never transfers control itself.
	Switch(h Handoff)

	// DropPrivilege leaves the privileged execution level just before
	// control enters the first task.
	DropPrivilege()

	// Fault reports an unrecoverable condition, currently only
	// ErrTaskFinished. The scheduler halts after reporting.
	Fault(err error)
}
