package comparison

import (
	"errors"
	"fmt"
)

// State is a step of one pairwise comparison.
type State int

const (
	Idle State = iota
	RandomShared
	AComputed
	AOpened
	ZTablesReady
	RombRound
	ResComputed
	Done
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	RandomShared: "random-shared",
	AComputed:    "a-computed",
	AOpened:      "a-opened",
	ZTablesReady: "z-tables-ready",
	RombRound:    "romb-round",
	ResComputed:  "res-computed",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ErrIllegalTransition is returned when a step is called in the wrong state.
var ErrIllegalTransition = errors.New("illegal comparison transition")

// require checks that the protocol is in one of the allowed states.
func (p *Protocol) require(step string, allowed ...State) error {
	for _, s := range allowed {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, step, p.state)
}

// advance moves to next, or to Failed if err is set.
func (p *Protocol) advance(next State, err error) error {
	if err != nil {
		p.log.Warn("comparison step failed", "state", p.state, "err", err)
		p.state = Failed
		return err
	}
	p.state = next
	return nil
}
