package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// End is the terminal pseudo-node. Routing to End finishes the run.
const End = "__end__"

var (
	ErrInvalidGraph = errors.New("invalid graph")
	ErrStepLimit    = errors.New("graph step limit exceeded")
)

// NodeFunc transforms the workflow state. State flows by value; a node
// returns the next state rather than mutating shared structure.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc picks the next node after its owner ran. It must return one
// of the targets declared for it at construction time.
type RouterFunc[S any] func(state S) string

// Graph is a directed workflow of named nodes. Nodes are wired with
// static edges or routers; Compile validates the whole shape up front so
// a malformed workflow fails at startup, never mid-meeting.
type Graph[S any] struct {
	name          string
	entry         string
	maxSteps      int
	nodes         map[string]NodeFunc[S]
	edges         map[string]string
	routers       map[string]RouterFunc[S]
	routerTargets map[string][]string
}

func NewGraph[S any](name string, maxSteps int) *Graph[S] {
	if maxSteps < 1 {
		maxSteps = 32
	}
	return &Graph[S]{
		name:          name,
		maxSteps:      maxSteps,
		nodes:         map[string]NodeFunc[S]{},
		edges:         map[string]string{},
		routers:       map[string]RouterFunc[S]{},
		routerTargets: map[string][]string{},
	}
}

func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// AddEdge wires an unconditional transition from one node to the next.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = to
	return g
}

// AddRouter wires a conditional transition. targets is the complete set of
// nodes the router may return; returning anything else fails the run.
func (g *Graph[S]) AddRouter(from string, router RouterFunc[S], targets ...string) *Graph[S] {
	g.routers[from] = router
	g.routerTargets[from] = targets
	return g
}

func (g *Graph[S]) SetEntry(name string) *Graph[S] {
	g.entry = name
	return g
}

// Compile validates the graph and returns a runnable form. It checks that
// the entry exists, every edge and router target names a real node or End,
// every node is reachable from the entry, every node has a way forward,
// and no cycle consists of static edges alone. Cycles are legal only when
// a router sits on them, since routers are what bound retries.
func (g *Graph[S]) Compile() (*Runnable[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("%w %q: no entry node", ErrInvalidGraph, g.name)
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("%w %q: entry %q is not a node", ErrInvalidGraph, g.name, g.entry)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w %q: edge from unknown node %q", ErrInvalidGraph, g.name, from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("%w %q: edge %q -> unknown node %q", ErrInvalidGraph, g.name, from, to)
			}
		}
		if _, dual := g.routers[from]; dual {
			return nil, fmt.Errorf("%w %q: node %q has both an edge and a router", ErrInvalidGraph, g.name, from)
		}
	}
	for from, targets := range g.routerTargets {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w %q: router on unknown node %q", ErrInvalidGraph, g.name, from)
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w %q: router on %q declares no targets", ErrInvalidGraph, g.name, from)
		}
		for _, to := range targets {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("%w %q: router %q -> unknown node %q", ErrInvalidGraph, g.name, from, to)
			}
		}
	}
	for name := range g.nodes {
		_, hasEdge := g.edges[name]
		_, hasRouter := g.routers[name]
		if !hasEdge && !hasRouter {
			return nil, fmt.Errorf("%w %q: node %q has no way forward", ErrInvalidGraph, g.name, name)
		}
	}
	if unreachable := g.unreachableNodes(); len(unreachable) > 0 {
		return nil, fmt.Errorf("%w %q: unreachable nodes %v", ErrInvalidGraph, g.name, unreachable)
	}
	if cycle := g.staticCycle(); cycle != "" {
		return nil, fmt.Errorf("%w %q: unconditional cycle through %q", ErrInvalidGraph, g.name, cycle)
	}
	return &Runnable[S]{graph: g}, nil
}

func (g *Graph[S]) successors(name string) []string {
	if to, ok := g.edges[name]; ok {
		return []string{to}
	}
	return g.routerTargets[name]
}

func (g *Graph[S]) unreachableNodes() []string {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(current) {
			if next == End || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	var missing []string
	for name := range g.nodes {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// staticCycle walks only the unconditional edges. A cycle found there can
// never terminate, no step counter or router bounds it.
func (g *Graph[S]) staticCycle() string {
	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	var walk func(name string) string
	walk = func(name string) string {
		state[name] = visiting
		if to, ok := g.edges[name]; ok && to != End {
			switch state[to] {
			case visiting:
				return to
			case 0:
				if hit := walk(to); hit != "" {
					return hit
				}
			}
		}
		state[name] = done
		return ""
	}
	for name := range g.nodes {
		if state[name] == 0 {
			if hit := walk(name); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// Runnable is a validated graph.
type Runnable[S any] struct {
	graph *Graph[S]
}

// Run executes the workflow from the entry node until a transition to End.
// Context cancellation is honored between nodes, and the step ceiling
// backstops any router that misbehaves.
func (r *Runnable[S]) Run(ctx context.Context, state S) (S, error) {
	g := r.graph
	current := g.entry
	for steps := 0; steps < g.maxSteps; steps++ {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("graph %q at node %q: %w", g.name, current, err)
		}
		next, err := g.nodes[current](ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph %q node %q: %w", g.name, current, err)
		}
		state = next

		var target string
		if to, ok := g.edges[current]; ok {
			target = to
		} else {
			target = g.routers[current](state)
			if !containsTarget(g.routerTargets[current], target) {
				return state, fmt.Errorf("graph %q router %q returned undeclared target %q", g.name, current, target)
			}
		}
		if target == End {
			return state, nil
		}
		current = target
	}
	return state, fmt.Errorf("graph %q: %w (%d steps)", g.name, ErrStepLimit, g.maxSteps)
}

func containsTarget(targets []string, target string) bool {
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}
