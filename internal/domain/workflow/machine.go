package workflow

// StateMachine tracks one voucher's current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire moves to the trigger's target state or returns ErrInvalidTransition
	Fire(trigger Trigger) error

	// PermittedTriggers returns the triggers permitted in the current state
	PermittedTriggers() []Trigger
}
