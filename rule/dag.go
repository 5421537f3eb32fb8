package rule

import (
	"context"
	"fmt"

	"voltageems.io/core/rtdb"
)

// NodeStatus is one DAG node's outcome after a run.
type NodeStatus string

const (
	NodePending     NodeStatus = "pending"
	NodeSuccess     NodeStatus = "success"
	NodeFailed      NodeStatus = "failed"
	NodeUnreachable NodeStatus = "unreachable"
)

// DAGNode is one node of a rule DAG: a sub-condition or an action, with
// data dependencies on other nodes' completion.
type DAGNode struct {
	ID        string
	Condition *ConditionGroup
	Action    *Action
	Requires  []string
}

// DAG is a validated, cycle-free set of DAGNodes, keyed by ID — the
// in-memory arena the teacher's db/repository.GraphRepository persists to
// a graph database, reimplemented here as a process-local adjacency
// check since the core's rule DAGs are small and never shared across
// processes (see DESIGN.md for why no graph database is wired in).
type DAG struct {
	nodes map[string]*DAGNode
	order []string // insertion order, for deterministic iteration
}

// NewDAG validates nodes for missing dependencies and cycles, rejecting
// the DAG at save time rather than at execution time (§4.8).
func NewDAG(nodes []DAGNode) (*DAG, error) {
	d := &DAG{nodes: make(map[string]*DAGNode, len(nodes))}
	for i := range nodes {
		n := nodes[i]
		if _, dup := d.nodes[n.ID]; dup {
			return nil, fmt.Errorf("rule: duplicate DAG node id %q", n.ID)
		}
		d.nodes[n.ID] = &n
		d.order = append(d.order, n.ID)
	}
	for _, n := range d.nodes {
		for _, dep := range n.Requires {
			if _, ok := d.nodes[dep]; !ok {
				return nil, fmt.Errorf("rule: node %q requires unknown node %q", n.ID, dep)
			}
		}
	}
	if err := d.checkCycles(); err != nil {
		return nil, err
	}
	return d, nil
}

// checkCycles runs a three-color DFS (white/gray/black) over the
// Requires adjacency, the standard cycle-detection walk underlying the
// teacher's GraphRepository.WouldCreateCycle contract.
func (d *DAG) checkCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range d.nodes[id].Requires {
			switch color[dep] {
			case gray:
				return fmt.Errorf("rule: DAG cycle detected through node %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range d.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// NodeResult reports one node's outcome within a DAG run.
type NodeResult struct {
	NodeID string
	Status NodeStatus
	Err    error
}

// DAGResult is the per-node report of one DAG execution.
type DAGResult struct {
	Nodes map[string]NodeResult
}

// Execute runs the DAG to completion: nodes with all Requires satisfied
// (status Success) run in a pass; a node whose any requirement Failed or
// is Unreachable is itself marked Unreachable and skipped. Passes repeat
// until no node's status changes.
func (d *DAG) Execute(ctx context.Context, store rtdb.Rtdb, registry *Registry) DAGResult {
	status := make(map[string]NodeStatus, len(d.nodes))
	for _, id := range d.order {
		status[id] = NodePending
	}

	for {
		progressed := false
		for _, id := range d.order {
			if status[id] != NodePending {
				continue
			}
			ready, blocked := d.readiness(id, status)
			if blocked {
				status[id] = NodeUnreachable
				progressed = true
				continue
			}
			if !ready {
				continue
			}
			status[id] = d.runNode(ctx, store, registry, d.nodes[id])
			progressed = true
		}
		if !progressed {
			break
		}
	}

	result := DAGResult{Nodes: make(map[string]NodeResult, len(d.nodes))}
	for _, id := range d.order {
		result.Nodes[id] = NodeResult{NodeID: id, Status: status[id]}
	}
	return result
}

// readiness reports whether every dependency of id has succeeded
// (ready=true) or whether at least one has failed/is unreachable
// (blocked=true, making id itself unreachable).
func (d *DAG) readiness(id string, status map[string]NodeStatus) (ready, blocked bool) {
	ready = true
	for _, dep := range d.nodes[id].Requires {
		switch status[dep] {
		case NodeFailed, NodeUnreachable:
			return false, true
		case NodeSuccess:
		default:
			ready = false
		}
	}
	return ready, false
}

func (d *DAG) runNode(ctx context.Context, store rtdb.Rtdb, registry *Registry, n *DAGNode) NodeStatus {
	if n.Condition != nil {
		ok, err := n.Condition.Evaluate(ctx, store)
		if err != nil || !ok {
			return NodeFailed
		}
	}
	if n.Action != nil {
		results := registry.Execute(ctx, []Action{*n.Action})
		if results[0].Err != nil {
			return NodeFailed
		}
	}
	return NodeSuccess
}
