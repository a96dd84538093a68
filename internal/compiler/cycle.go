package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/storebus/internal/ir"
)

// CycleWarning represents a dependency cycle between modules.
//
// Cycles are warnings, not errors: the scenario builder settles a cycle by
// installing every member together, but a store can never remove one
// member without the others.
type CycleWarning struct {
	Path    []ir.ModuleID `json:"path"`    // Cycle path: ["A-B", "C-D", "A-B"]
	Message string        `json:"message"` // Human-readable description
	Level   string        `json:"level"`   // "warning"
}

// AnalyzeCycles finds dependency cycles across all releases in the catalog.
//
// The algorithm:
//  1. Build module -> required module edges from every release
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a warning
//
// A DAG returns an empty warning list. Warnings are ordered by the
// smallest module id in each cycle.
func AnalyzeCycles(modules []ir.Module) []CycleWarning {
	if len(modules) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(modules)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return compareIDs(a.Path[0], b.Path[0])
	})
	return warnings
}

// dependencyGraph maps a module id to the ids it requires, sorted.
type dependencyGraph map[ir.ModuleID][]ir.ModuleID

// buildDependencyGraph unions the requirements of every release of a
// module. Edges to modules outside the catalog are kept; they are leaves.
func buildDependencyGraph(modules []ir.Module) dependencyGraph {
	graph := make(dependencyGraph)
	for _, m := range modules {
		if graph[m.ID] == nil {
			graph[m.ID] = []ir.ModuleID{}
		}
		for _, dep := range m.Dependencies {
			if !slices.Contains(graph[m.ID], dep.ID) {
				graph[m.ID] = append(graph[m.ID], dep.ID)
			}
		}
	}
	for id := range graph {
		slices.Sort(graph[id])
	}
	return graph
}

// nodes returns the graph's ids in sorted order.
func (g dependencyGraph) nodes() []ir.ModuleID {
	out := make([]ir.ModuleID, 0, len(g))
	for id := range g {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node ir.ModuleID, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]ir.ModuleID {
	var (
		index   = 0
		stack   []ir.ModuleID
		indices = make(map[ir.ModuleID]int)
		lowlink = make(map[ir.ModuleID]int)
		onStack = make(map[ir.ModuleID]bool)
		sccs    [][]ir.ModuleID
	)

	var strongConnect func(ir.ModuleID)
	strongConnect = func(v ir.ModuleID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []ir.ModuleID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes() {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning whose path starts
// and ends at the smallest id in the SCC.
func cycleSCCToWarning(scc []ir.ModuleID, graph dependencyGraph) CycleWarning {
	scc = slices.Clone(scc)
	slices.Sort(scc)

	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []ir.ModuleID{id, id},
			Message: fmt.Sprintf("Module requires itself: %s", id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = string(id)
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Dependency cycle detected: %s", strings.Join(parts, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to it.
func reconstructCyclePath(scc []ir.ModuleID, graph dependencyGraph) []ir.ModuleID {
	if len(scc) == 0 {
		return []ir.ModuleID{}
	}

	inSCC := make(map[ir.ModuleID]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []ir.ModuleID{current}
	visited := make(map[ir.ModuleID]bool)

	for {
		visited[current] = true

		var next ir.ModuleID
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
