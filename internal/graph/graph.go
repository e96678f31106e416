// Package graph tracks which sources each monitor reads and answers, in
// dependency order, which monitors must recompute when a source changes.
// Nodes are held in an arena keyed by id with plain adjacency lists; edges
// point from a monitor to the sources its formula references.
package graph

import (
	"fmt"
	"sort"
)

// CycleError is returned when registering a monitor would make the
// dependency graph cyclic. The graph is left unmodified.
type CycleError struct {
	ID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("monitor %q would introduce a dependency cycle", e.ID)
}

// Graph is not safe for concurrent use; the engine serializes access.
type Graph struct {
	// deps maps a monitor id to the source ids its formula reads.
	deps map[string][]string
	// dependents is the reverse index: source id -> monitors reading it.
	dependents map[string]map[string]bool
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		deps:       make(map[string][]string),
		dependents: make(map[string]map[string]bool),
	}
}

// Register adds or replaces the node for a monitor and its outgoing edges.
// The cycle check runs first; on CycleError nothing is mutated, so a failed
// registration is invisible to every other component.
func (g *Graph) Register(id string, deps []string) error {
	if g.wouldCycle(id, deps) {
		return &CycleError{ID: id}
	}

	g.remove(id)
	g.deps[id] = append([]string(nil), deps...)
	for _, d := range deps {
		if g.dependents[d] == nil {
			g.dependents[d] = make(map[string]bool)
		}
		g.dependents[d][id] = true
	}
	return nil
}

// Unregister removes a monitor node and its outgoing edges. Incoming edges
// from other monitors remain; their references simply dangle and resolve to
// nothing at evaluation time.
func (g *Graph) Unregister(id string) {
	g.remove(id)
}

// Dependencies returns the source ids the monitor reads.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Contains reports whether id is a registered monitor node.
func (g *Graph) Contains(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// Affected returns every monitor transitively dependent on sourceID, ordered
// so that no monitor appears before any of its own dependencies. Within one
// propagation pass each monitor therefore recomputes against already-fresh
// upstream values.
func (g *Graph) Affected(sourceID string) []string {
	set := make(map[string]bool)
	g.collectDependents(sourceID, set)
	return g.order(set)
}

// Ordered returns all monitor nodes in topological order, used by the
// full-recompute administrative action.
func (g *Graph) Ordered() []string {
	set := make(map[string]bool, len(g.deps))
	for id := range g.deps {
		set[id] = true
	}
	return g.order(set)
}

func (g *Graph) remove(id string) {
	for _, d := range g.deps[id] {
		if m := g.dependents[d]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(g.dependents, d)
			}
		}
	}
	delete(g.deps, id)
}

// wouldCycle checks whether id could reach itself if it depended on deps.
func (g *Graph) wouldCycle(id string, deps []string) bool {
	// DFS along existing dep edges starting from the candidate edges.
	stack := append([]string(nil), deps...)
	visited := make(map[string]bool)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == id {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.deps[cur]...)
	}
	return false
}

func (g *Graph) collectDependents(id string, set map[string]bool) {
	for dep := range g.dependents[id] {
		if !set[dep] {
			set[dep] = true
			g.collectDependents(dep, set)
		}
	}
}

// order runs Kahn's algorithm restricted to set. Dependencies outside the
// set are already fresh and count as satisfied. Ties resolve by id so the
// result is deterministic.
func (g *Graph) order(set map[string]bool) []string {
	indegree := make(map[string]int, len(set))
	for id := range set {
		n := 0
		for _, d := range g.deps[id] {
			if set[d] {
				n++
			}
		}
		indegree[id] = n
	}

	var ready []string
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)

		var freed []string
		for dep := range g.dependents[id] {
			if !set[dep] {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				freed = append(freed, dep)
			}
		}
		sort.Strings(freed)
		ready = append(ready, freed...)
	}
	return out
}
