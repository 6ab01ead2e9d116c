package esm

import (
	"fmt"

	"github.com/distributed/ecatmaster/netdesc"
)

type edge struct {
	from, to State
	code     netdesc.TransitionCode
}

// edges enumerates the nine legal ESM transitions spec.md §4.4 names.
// Downward transitions may skip levels directly (SI, OI, OP); upward
// transitions only ever move one level (IP, PS, SO) — the standard defines
// no direct Init→SafeOp or Init→Op edge, so requestState climbs one level
// at a time via the path computed below.
var edges = []edge{
	{Init, PreOp, netdesc.IP},
	{PreOp, SafeOp, netdesc.PS},
	{SafeOp, PreOp, netdesc.SP},
	{SafeOp, Op, netdesc.SO},
	{Op, SafeOp, netdesc.OS},
	{PreOp, Init, netdesc.PI},
	{SafeOp, Init, netdesc.SI},
	{Op, Init, netdesc.OI},
	{Op, PreOp, netdesc.OP},
}

// path computes the ordered sequence of states from current to target
// following the legal transition graph (spec.md §4.4 step 1: "single-step
// for non-adjacent requests via the same path the standard defines"), via
// a breadth-first search since the graph is small, unweighted and static.
func path(current, target State) ([]State, error) {
	if current == target {
		return nil, nil
	}

	type frame struct {
		state State
		via   []State
	}
	visited := map[State]bool{current: true}
	queue := []frame{{state: current, via: []State{current}}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		for _, e := range edges {
			if e.from != f.state || visited[e.to] {
				continue
			}
			next := append(append([]State{}, f.via...), e.to)
			if e.to == target {
				return next[1:], nil
			}
			visited[e.to] = true
			queue = append(queue, frame{state: e.to, via: next})
		}
	}
	return nil, fmt.Errorf("esm: no legal path from %s to %s", current, target)
}
