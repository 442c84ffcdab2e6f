// Package graph holds the per-run dependency graph of subtasks and its
// scheduler. The graph is created once by the first decomposition and
// extended in place by replanning; it is never replaced wholesale.
package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
)

// ErrCycle reports that the pending subgraph cannot be ordered. The
// caller decides whether to abort the run or replan the region.
var ErrCycle = errors.New("dependency cycle among pending tasks")

// KindShell marks a node that runs as generated shell code. Any other
// kind names a registered capability to invoke instead.
const KindShell = "shell"

// Node is one unit of work: a named, described, typed step with a
// completion flag and the last captured return value.
type Node struct {
	Name         string
	Description  string
	Kind         string
	Done         bool
	ReturnValue  string
	RelevantCode map[string]string

	seq int // insertion sequence, breaks scheduling ties
}

// MarkDone records a successful execution and its captured value.
func (n *Node) MarkDone(returnValue string) {
	n.Done = true
	if returnValue != "" {
		n.ReturnValue = returnValue
	}
}

// NodeSpec describes one node of a subgraph insertion.
type NodeSpec struct {
	Name         string
	Description  string
	Kind         string
	Dependencies []string
}

// Graph maps task names to the tasks they depend on.
type Graph struct {
	nodes map[string]*Node
	deps  map[string][]string
	next  int    // next insertion sequence number
	last  string // most recently inserted node name
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		deps:  make(map[string][]string),
	}
}

// AddSubgraph inserts the given nodes and their dependency edges.
// Dependencies may reference nodes that already exist or nodes named
// earlier in the same insertion. The insertion is validated first and
// applied only as a whole: on error the graph is unchanged.
//
// Re-inserting an existing name refreshes its description, kind, and
// dependency list but preserves its completion state and return value.
func (g *Graph) AddSubgraph(specs []NodeSpec) error {
	if len(specs) == 0 {
		return errors.New("empty subgraph")
	}

	incoming := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return errors.New("subgraph node with empty name")
		}
		if incoming[spec.Name] {
			return fmt.Errorf("duplicate task %q in subgraph", spec.Name)
		}
		incoming[spec.Name] = true
	}
	for _, spec := range specs {
		for _, dep := range spec.Dependencies {
			if _, exists := g.nodes[dep]; !exists && !incoming[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", spec.Name, dep)
			}
		}
	}

	for _, spec := range specs {
		if node, exists := g.nodes[spec.Name]; exists {
			if spec.Description != "" {
				node.Description = spec.Description
			}
			if spec.Kind != "" {
				node.Kind = spec.Kind
			}
		} else {
			g.nodes[spec.Name] = &Node{
				Name:        spec.Name,
				Description: spec.Description,
				Kind:        spec.Kind,
				seq:         g.next,
			}
			g.next++
		}
		g.deps[spec.Name] = append([]string(nil), spec.Dependencies...)
		g.last = spec.Name
	}
	return nil
}

// ExtendFrom inserts a corrective subgraph and makes the anchor depend
// on the subgraph's last-inserted node, splicing the repair in front of
// the task that failed.
func (g *Graph) ExtendFrom(anchor string, specs []NodeSpec) error {
	if _, exists := g.nodes[anchor]; !exists {
		return fmt.Errorf("unknown anchor task %q", anchor)
	}
	if err := g.AddSubgraph(specs); err != nil {
		return err
	}
	g.deps[anchor] = append(g.deps[anchor], g.last)
	return nil
}

// Node returns the named node, if present.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Dependencies returns the dependency names of a task.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Len returns the total number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Names returns all node names in insertion order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return g.nodes[names[i]].seq < g.nodes[names[j]].seq
	})
	return names
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder recomputes, from scratch, the execution order of all
// not-yet-completed nodes. Completed dependencies are treated as already
// satisfied and dropped. Ties among simultaneously ready nodes are
// broken by insertion order, so the result is deterministic for a given
// mutation history.
//
// When the pending subgraph contains a cycle the partial order built so
// far is returned together with ErrCycle; execution of the affected
// region must not proceed.
func (g *Graph) TopologicalOrder() ([]string, error) {
	// Ready queue is a min-heap over insertion sequence numbers.
	bySeq := make(map[int]string, len(g.nodes))
	indeg := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))

	for name, node := range g.nodes {
		if node.Done {
			continue
		}
		bySeq[node.seq] = name
		indeg[name] = 0
	}
	for name := range indeg {
		for _, dep := range g.deps[name] {
			if g.nodes[dep].Done {
				continue
			}
			indeg[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := &intMinHeap{}
	heap.Init(ready)
	for name, d := range indeg {
		if d == 0 {
			heap.Push(ready, g.nodes[name].seq)
		}
	}

	order := make([]string, 0, len(indeg))
	for ready.Len() > 0 {
		name := bySeq[heap.Pop(ready).(int)]
		order = append(order, name)
		for _, dependent := range dependents[name] {
			indeg[dependent]--
			if indeg[dependent] == 0 {
				heap.Push(ready, g.nodes[dependent].seq)
			}
		}
	}

	if len(order) < len(indeg) {
		placed := make(map[string]bool, len(order))
		for _, name := range order {
			placed[name] = true
		}
		var remaining []string
		for _, name := range g.Names() {
			if _, pending := indeg[name]; pending && !placed[name] {
				remaining = append(remaining, name)
			}
		}
		return order, fmt.Errorf("%w: %v cannot be ordered", ErrCycle, remaining)
	}
	return order, nil
}
