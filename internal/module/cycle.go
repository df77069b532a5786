package module

// findCycle returns one dependency cycle in the graph, or nil for a DAG.
//
// Strongly connected components are found with Tarjan's algorithm. Nodes are
// visited in declaration order so the reported cycle is deterministic. The
// returned path starts and ends at the same future, e.g. [A, B, A].
func findCycle(order []string, edges map[string][]string) []string {
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

		for _, w := range edges[v] {
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

	for _, scc := range sccs {
		if len(scc) == 1 {
			if hasSelfLoop(scc[0], edges) {
				return []string{scc[0], scc[0]}
			}
			continue
		}
		return cyclePath(scc, order, edges)
	}
	return nil
}

func hasSelfLoop(node string, edges map[string][]string) bool {
	for _, w := range edges[node] {
		if w == node {
			return true
		}
	}
	return false
}

// cyclePath returns the shortest cycle through the earliest-declared member
// of an SCC, found by breadth-first search restricted to the SCC.
func cyclePath(scc, order []string, edges map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	var start string
	for _, n := range order {
		if members[n] {
			start = n
			break
		}
	}

	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, w := range edges[u] {
			if w == start {
				path := []string{start}
				for n := u; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				// path was built backwards from u; the first and last
				// elements are both start so only the middle needs reversing.
				for i, j := 1, len(path)-2; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if _, seen := parent[w]; !seen && members[w] {
				parent[w] = u
				queue = append(queue, w)
			}
		}
	}
	return []string{start, start}
}
