package executor

import "errors"

var (
	// ErrUnlockCooldown is returned by auto_unlock_if_needed when the
	// device's unlock interlock is currently cooling down.
	ErrUnlockCooldown = errors.New("executor: unlock cooldown active")

	// ErrUnlockNotConfigured is returned when a device is locked but has no
	// configured unlock strategy.
	ErrUnlockNotConfigured = errors.New("executor: no unlock strategy configured")

	// ErrUnlockFailed is returned when every configured unlock attempt
	// fails.
	ErrUnlockFailed = errors.New("executor: unlock failed")

	// ErrWakeFailed is returned when auto_wake_before fails and
	// verify_screen_on is set.
	ErrWakeFailed = errors.New("executor: failed to wake screen")

	// ErrStepFailed is a generic step failure, wrapped with step-specific
	// context by the caller.
	ErrStepFailed = errors.New("executor: step failed")

	// ErrConditionSyntax is returned when a conditional/loop step's
	// condition string doesn't parse under the documented grammar.
	ErrConditionSyntax = errors.New("executor: invalid condition syntax")

	// ErrBreakLoop and ErrContinueLoop implement break_loop/continue_loop
	// as typed control-flow signals, unwound by the nearest enclosing loop
	// step.
	ErrBreakLoop    = errors.New("executor: break_loop")
	ErrContinueLoop = errors.New("executor: continue_loop")

	// ErrNoNavGraph is returned by smart-navigation recovery when no
	// NavGraph was wired into the Executor.
	ErrNoNavGraph = errors.New("executor: no navigation graph configured")
)
