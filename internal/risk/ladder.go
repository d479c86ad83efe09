package risk

// LossAction is the loss-ladder response to a consecutive-loss streak.
type LossAction int

const (
	// ActionContinue allows normal trading.
	ActionContinue LossAction = iota
	// ActionSkipCycle skips new admissions for the current tick.
	ActionSkipCycle
	// ActionReduceSize halves the computed stake.
	ActionReduceSize
	// ActionPause halts trading until an operator resets the counter.
	ActionPause
)

func (a LossAction) String() string {
	switch a {
	case ActionSkipCycle:
		return "SKIP_CYCLE"
	case ActionReduceSize:
		return "REDUCE_SIZE"
	case ActionPause:
		return "PAUSE"
	default:
		return "CONTINUE"
	}
}

// CheckConsecutiveLosses maps a loss streak onto the ladder:
// 3 skips the cycle, 4 halves size, 5 pauses everything.
func CheckConsecutiveLosses(consecutive int) LossAction {
	switch {
	case consecutive >= 5:
		return ActionPause
	case consecutive >= 4:
		return ActionReduceSize
	case consecutive >= 3:
		return ActionSkipCycle
	default:
		return ActionContinue
	}
}
