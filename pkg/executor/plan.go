package executor

import (
	"fmt"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/graph"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
)

type nodeState int

const (
	statePending nodeState = iota
	stateQueued
	stateRunning
	stateDone
)

// Skip reasons recorded on SKIPPED results.
const (
	ReasonAborted      = "build aborted"
	ReasonCancelled    = "cancelled"
	ReasonNotFinalized = "no finalized task was attempted"
)

// UpstreamFailure is the skip reason for a task whose dependency did not succeed.
func UpstreamFailure(id identifier.TaskID) string {
	return "upstream failure: " + id.String()
}

// skip is a node the plan decided never to start.
type skip struct {
	id     identifier.TaskID
	reason string
}

// plan is the scheduling state machine. It is owned by the dispatcher
// goroutine and never touched by workers.
type plan struct {
	graph *graph.ExecutionGraph
	mode  engine.FailureMode

	states   map[identifier.TaskID]nodeState
	outcomes map[identifier.TaskID]engine.Outcome
	queue    readyQueue

	aborted   bool
	cancelled bool
	remaining int
	running   int
}

func newPlan(g *graph.ExecutionGraph, mode engine.FailureMode) *plan {
	p := &plan{
		graph:     g,
		mode:      mode,
		states:    make(map[identifier.TaskID]nodeState, len(g.Nodes)),
		outcomes:  make(map[identifier.TaskID]engine.Outcome, len(g.Nodes)),
		remaining: len(g.Nodes),
	}
	for id := range g.Nodes {
		p.states[id] = statePending
	}
	return p
}

// finished reports whether every node reached DONE.
func (p *plan) finished() bool { return p.remaining == 0 }

func (p *plan) hasReady() bool { return p.queue.Len() > 0 }

// next pops the highest priority ready node and marks it running.
func (p *plan) next() *graph.Node {
	n := p.queue.pop()
	p.states[n.ID] = stateRunning
	p.running++
	return n
}

// complete records a terminal outcome for a node that was running.
func (p *plan) complete(id identifier.TaskID, outcome engine.Outcome) {
	if p.states[id] != stateRunning {
		panic(fmt.Sprintf("executor: completion for %s which is not running", id))
	}
	p.running--
	p.done(id, outcome)
	if outcome == engine.OutcomeFailed && p.mode == engine.FailFast && !p.aborted {
		p.aborted = true
		p.requeue()
	}
}

// requeue returns queued nodes to pending so the next settle re-evaluates
// them under the new abort or cancel state.
func (p *plan) requeue() {
	for p.queue.Len() > 0 {
		n := p.queue.pop()
		p.states[n.ID] = statePending
	}
}

func (p *plan) done(id identifier.TaskID, outcome engine.Outcome) {
	p.states[id] = stateDone
	p.outcomes[id] = outcome
	p.remaining--
}

// cancel stops all further dispatch.
func (p *plan) cancel() {
	p.cancelled = true
	p.requeue()
}

// settle moves pending nodes to queued or skipped until nothing changes and
// returns the nodes it skipped, in the order it decided them.
func (p *plan) settle() []skip {
	var skipped []skip
	for {
		changed := false
		cleanup := p.cleanupSet()
		for _, id := range p.graph.Order {
			if p.states[id] != statePending {
				continue
			}
			reason, ready := p.evaluate(id, cleanup)
			switch {
			case reason != "":
				p.done(id, engine.OutcomeSkipped)
				skipped = append(skipped, skip{id: id, reason: reason})
				changed = true
			case ready:
				p.states[id] = stateQueued
				p.queue.push(p.graph.Nodes[id])
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if !p.finished() && p.running == 0 && p.queue.Len() == 0 {
		panic("executor: plan stalled with pending tasks and nothing running")
	}
	return skipped
}

// evaluate returns a skip reason, or whether the node can be queued now.
func (p *plan) evaluate(id identifier.TaskID, cleanup map[identifier.TaskID]bool) (string, bool) {
	if p.cancelled {
		return ReasonCancelled, false
	}

	ready := true
	var targets []identifier.TaskID
	for _, e := range p.graph.Incoming(id) {
		state := p.states[e.From]
		switch e.Kind {
		case task.DependsOn:
			if state == stateDone && !p.outcomes[e.From].Successful() {
				return UpstreamFailure(e.From), false
			}
			if state != stateDone {
				ready = false
			}
		case task.FinalizedBy:
			targets = append(targets, e.From)
			if state != stateDone {
				ready = false
			}
		default:
			if state != stateDone {
				ready = false
			}
		}
	}

	if p.aborted && !cleanup[id] {
		return ReasonAborted, false
	}
	if !ready {
		return "", false
	}
	if len(targets) > 0 && !p.anyAttempted(targets) {
		return ReasonNotFinalized, false
	}
	return "", true
}

func (p *plan) anyAttempted(ids []identifier.TaskID) bool {
	for _, id := range ids {
		if p.attempted(id) {
			return true
		}
	}
	return false
}

// attempted reports whether a node was handed to a worker.
func (p *plan) attempted(id identifier.TaskID) bool {
	switch p.states[id] {
	case stateRunning:
		return true
	case stateDone:
		return p.outcomes[id] != engine.OutcomeSkipped
	default:
		return false
	}
}

// cleanupSet computes, after a fail-fast abort, which pending nodes may still
// start: finalizers with an attempted or still-eligible target, and the
// DependsOn ancestors of those finalizers. Before an abort it returns nil.
func (p *plan) cleanupSet() map[identifier.TaskID]bool {
	if !p.aborted {
		return nil
	}
	memo := make(map[identifier.TaskID]bool)
	visiting := make(map[identifier.TaskID]bool)
	var allowed func(id identifier.TaskID) bool
	allowed = func(id identifier.TaskID) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		if visiting[id] {
			return false
		}
		visiting[id] = true
		defer delete(visiting, id)

		result := false
		for _, e := range p.graph.Incoming(id) {
			if e.Kind != task.FinalizedBy {
				continue
			}
			if p.attempted(e.From) || (p.states[e.From] != stateDone && allowed(e.From)) {
				result = true
				break
			}
		}
		if !result {
			for _, e := range p.graph.Outgoing(id) {
				if e.Kind != task.DependsOn {
					continue
				}
				if p.states[e.To] != stateDone && allowed(e.To) {
					result = true
					break
				}
			}
		}
		memo[id] = result
		return result
	}

	set := make(map[identifier.TaskID]bool)
	for id, state := range p.states {
		if state == statePending && allowed(id) {
			set[id] = true
		}
	}
	return set
}
