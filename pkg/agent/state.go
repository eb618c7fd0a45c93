package agent

import "fmt"

// State is a stage of the query pipeline.
type State int

const (
	StateClassifying State = iota
	StateRetrieving
	StateAnalyzing
	StateSynthesizing
	StateDone
	StateFailed
)

var stateNames = [...]string{"classifying", "retrieving", "analyzing", "synthesizing", "done", "failed"}

func (s State) String() string {
	if s < StateClassifying || s > StateFailed {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition returns the state that follows s once its stage finished
// with err. Any error leads to StateFailed; terminal states are absorbing.
func Transition(s State, err error) State {
	if s.Terminal() {
		return s
	}
	if err != nil {
		return StateFailed
	}
	switch s {
	case StateClassifying:
		return StateRetrieving
	case StateRetrieving:
		return StateAnalyzing
	case StateAnalyzing:
		return StateSynthesizing
	case StateSynthesizing:
		return StateDone
	}
	return StateFailed
}

// StageError is returned when a query fails. Stage is the state whose work
// failed.
type StageError struct {
	QueryID string
	Stage   State
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("query %s failed while %s: %v", e.QueryID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
