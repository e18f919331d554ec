package orchestrator

import "fmt"

// State is one node of the per-turn state machine. A turn starts in
// StateSummarize and ends in one of the terminal states.
type State int

const (
	StateSummarize State = iota
	StatePlan
	StateExtract
	StateClassify
	StateEnd
	StateAwaitApproval
	StateExecute
	StateFeedback
	StateCancelled
	StateFailed
	StateIterationLimit
)

func (s State) String() string {
	switch s {
	case StateSummarize:
		return "summarize"
	case StatePlan:
		return "plan"
	case StateExtract:
		return "extract"
	case StateClassify:
		return "classify"
	case StateEnd:
		return "end"
	case StateAwaitApproval:
		return "await_approval"
	case StateExecute:
		return "execute"
	case StateFeedback:
		return "feedback"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	case StateIterationLimit:
		return "iteration_limit"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state ends the turn.
func (s State) Terminal() bool {
	switch s {
	case StateEnd, StateCancelled, StateFailed, StateIterationLimit:
		return true
	}
	return false
}

// transitions enumerates every legal edge. StateFailed is reachable from any
// state on an unrecoverable component error and is not listed per-source.
var transitions = map[State][]State{
	StateSummarize:     {StatePlan},
	StatePlan:          {StateExtract},
	StateExtract:       {StateClassify},
	StateClassify:      {StateEnd, StateAwaitApproval},
	StateAwaitApproval: {StateExecute, StateCancelled},
	StateExecute:       {StateFeedback},
	StateFeedback:      {StatePlan, StateIterationLimit},
}

func canTransition(from, to State) bool {
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
