package kern

import "errors"

// Scheduler error taxonomy. All sentinels are matched with errors.Is.
var (
	// ErrWrongState means the operation is not legal in the scheduler's
	// current lifecycle phase.
	ErrWrongState = errors.New("kern: operation not allowed in current state")

	// ErrTableFull means the task table has no free slot left.
	ErrTableFull = errors.New("kern: task table full")

	// ErrInvalidParam means a caller-supplied value was rejected, e.g.
	// the timer hardware refused the requested tick interval.
	ErrInvalidParam = errors.New("kern: invalid parameter")

	// ErrStackTooSmall means the supplied stack buffer cannot hold one
	// register frame. The buffer is left untouched.
	ErrStackTooSmall = errors.New("kern: stack buffer smaller than one register frame")

	// ErrUnknownTrap means the trap dispatcher received an operation
	// code it does not implement.
	ErrUnknownTrap = errors.New("kern: unknown trap code")

	// ErrTaskFinished is fatal: a task entry function returned. Tasks
	// are contractually expected to run forever or suspend via Wait.
	ErrTaskFinished = errors.New("kern: task handler returned")

	// ErrBadTransition means a task status change was rejected by the
	// status state machine.
	ErrBadTransition = errors.New("kern: illegal task status transition")
)
