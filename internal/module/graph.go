package module

import (
	"slices"
)

// Graph is the dependency structure of a module. It is immutable and safe
// for concurrent use.
type Graph struct {
	order      []string // declaration order
	index      map[string]int
	deps       map[string][]string
	dependents map[string][]string
	topo       []string
}

func newGraph(futures []Future) *Graph {
	g := &Graph{
		order:      make([]string, len(futures)),
		index:      make(map[string]int, len(futures)),
		deps:       make(map[string][]string, len(futures)),
		dependents: make(map[string][]string, len(futures)),
	}
	for i, f := range futures {
		g.order[i] = f.ID()
		g.index[f.ID()] = i
	}
	for _, f := range futures {
		deps := f.Dependencies()
		g.deps[f.ID()] = deps
		for _, d := range deps {
			g.dependents[d] = append(g.dependents[d], f.ID())
		}
	}
	return g
}

// Order returns a topological order of all futures: every future appears
// after all of its dependencies, and ties are broken by declaration order.
// The order is the same on every call and every run.
func (g *Graph) Order() []string {
	return slices.Clone(g.topo)
}

// computeOrder runs Kahn's algorithm, always taking the earliest-declared
// ready future. It reports false when a cycle prevents a full order.
func (g *Graph) computeOrder() bool {
	remaining := make(map[string]int, len(g.order))
	var ready []int
	for i, id := range g.order {
		remaining[id] = len(g.deps[id])
		if remaining[id] == 0 {
			ready = append(ready, i)
		}
	}

	topo := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		id := g.order[next]
		topo = append(topo, id)

		for _, d := range g.dependents[id] {
			remaining[d]--
			if remaining[d] == 0 {
				i := g.index[d]
				pos, _ := slices.BinarySearch(ready, i)
				ready = slices.Insert(ready, pos, i)
			}
		}
	}

	g.topo = topo
	return len(topo) == len(g.order)
}

// DependenciesOf returns the direct dependencies of id.
func (g *Graph) DependenciesOf(id string) []string {
	return slices.Clone(g.deps[id])
}

// DependentsOf returns the futures that directly depend on id, in
// declaration order.
func (g *Graph) DependentsOf(id string) []string {
	return g.sortByDeclaration(slices.Clone(g.dependents[id]))
}

// TransitiveDependencies returns every future id depends on, directly or
// indirectly, in declaration order.
func (g *Graph) TransitiveDependencies(id string) []string {
	return g.closure(id, g.deps)
}

// TransitiveDependents returns every future that depends on id, directly or
// indirectly, in declaration order.
func (g *Graph) TransitiveDependents(id string) []string {
	return g.closure(id, g.dependents)
}

// IsReady reports whether every dependency of id is in completed.
func (g *Graph) IsReady(id string, completed map[string]bool) bool {
	for _, d := range g.deps[id] {
		if !completed[d] {
			return false
		}
	}
	return true
}

func (g *Graph) closure(id string, edges map[string][]string) []string {
	seen := map[string]bool{}
	stack := slices.Clone(edges[id])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, edges[n]...)
	}
	delete(seen, id)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return g.sortByDeclaration(out)
}

func (g *Graph) sortByDeclaration(ids []string) []string {
	slices.SortFunc(ids, func(a, b string) int { return g.index[a] - g.index[b] })
	return ids
}
