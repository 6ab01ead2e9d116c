// Package esm implements the ESM Orchestrator (C5, spec.md §4.4): applying
// ordered init commands and driving every slave through the EtherCAT State
// Machine's Init/PreOp/SafeOp/Op states. It generalizes the teacher's
// ecmd.ExecuteWriteOptions request/response shape into a multi-step
// transition driver, since distributed-ecat left state-machine sequencing
// to its caller.
package esm

import (
	"fmt"

	"github.com/distributed/ecatmaster/netdesc"
)

// State is the global AL state, a single value equal to the greatest state
// reached by all slaves (spec.md's Data Model, invariant I5).
type State uint16

// State bit patterns mirror the AL-control register encoding (spec.md's
// Glossary: "State enumeration: INIT=1, PRE_OP=2, SAFE_OP=4, OP=8").
const (
	Init   State = 1
	PreOp  State = 2
	SafeOp State = 4
	Op     State = 8
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case PreOp:
		return "PreOp"
	case SafeOp:
		return "SafeOp"
	case Op:
		return "Op"
	default:
		return fmt.Sprintf("State(%#x)", uint16(s))
	}
}

// transitionOf names the edge between two adjacent legal states, used both
// to select init commands (netdesc.InitCommand.Transitions) and to log the
// step taken.
func transitionOf(from, to State) (netdesc.TransitionCode, bool) {
	for _, e := range edges {
		if e.from == from && e.to == to {
			return e.code, true
		}
	}
	return "", false
}
