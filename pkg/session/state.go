package session

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	StateCreated             = "created"
	StateAwaitingNegotiation = "awaiting_negotiation"
	StateCandidateGathering  = "candidate_gathering"
	StateConnected           = "connected"
	StateTerminated          = "terminated"
	StateFailed              = "failed"
)

const (
	eventInit      = "init"
	eventNegotiate = "negotiate"
	eventConnect   = "connect"
	eventFail      = "fail"
	eventTerminate = "terminate"
)

func newStateMachine(onChange func(from, to string)) *fsm.FSM {
	return fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventInit, Src: []string{StateCreated}, Dst: StateAwaitingNegotiation},
			{Name: eventNegotiate, Src: []string{StateAwaitingNegotiation}, Dst: StateCandidateGathering},
			{Name: eventConnect, Src: []string{StateCandidateGathering}, Dst: StateConnected},
			{Name: eventFail, Src: []string{
				StateCreated, StateAwaitingNegotiation, StateCandidateGathering, StateConnected,
			}, Dst: StateFailed},
			{Name: eventTerminate, Src: []string{
				StateCreated, StateAwaitingNegotiation, StateCandidateGathering, StateConnected, StateFailed,
			}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) { onChange(e.Src, e.Dst) },
		},
	)
}
