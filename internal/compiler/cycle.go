package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/ruleassert/internal/ir"
)

// CycleWarning represents a potential activation loop between rules.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - counters incremented until a guard constraint stops matching
//   - state machines that move a fact through several rules
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static loop analysis on compiled rules.
//
// A rule A can trigger rule B when A's consequence inserts, modifies or
// increments a fact whose type B matches with a positive pattern. The
// analysis builds that graph and reports every strongly connected
// component (Tarjan) that is larger than one rule or has a self edge.
// Self edges of no_loop rules caused only by modify/increment are dropped,
// because the engine suppresses exactly that re-activation.
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(rules []ir.Rule) []CycleWarning {
	warnings := []CycleWarning{}
	if len(rules) == 0 {
		return warnings
	}

	graph, order := buildDependencyGraph(rules)
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps rule name → rules its consequence could activate.
type dependencyGraph map[string][]string

func buildDependencyGraph(rules []ir.Rule) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	order := make([]string, 0, len(rules))

	typeToRules := make(map[string][]string)
	for _, r := range rules {
		order = append(order, r.Name)
		seen := make(map[string]bool)
		for _, p := range r.When {
			if !p.Not && !seen[p.Type] {
				typeToRules[p.Type] = append(typeToRules[p.Type], r.Name)
				seen[p.Type] = true
			}
		}
	}

	for _, r := range rules {
		bindTypes := make(map[string]string)
		for _, p := range r.When {
			if p.Bind != "" {
				bindTypes[p.Bind] = p.Type
			}
		}

		edges := []string{}
		added := make(map[string]bool)
		for _, a := range r.Then {
			var typ string
			switch a.Kind {
			case ir.ActionInsert:
				typ = a.Type
			case ir.ActionModify, ir.ActionIncrement:
				typ = bindTypes[a.Target]
			default:
				continue
			}
			for _, target := range typeToRules[typ] {
				if target == r.Name && r.NoLoop && a.Kind != ir.ActionInsert {
					continue
				}
				if !added[target] {
					edges = append(edges, target)
					added[target] = true
				}
			}
		}
		graph[r.Name] = edges
	}

	return graph, order
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in declaration order so warnings are deterministic.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
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

		if lowlink[v] == indices[v] {
			var scc []string
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

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-activating rule detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential activation loop detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath follows edges inside the SCC from its last-popped
// member until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[len(scc)-1]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
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
