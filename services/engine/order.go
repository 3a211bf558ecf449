package engine

import "sort"

// plan is the static schedule of a built graph, computed once per run.
type plan struct {
	order      []string            // every node, dependencies first
	rank       map[string]int      // position of each node in order
	successors map[string][]string // direct dependents, declaration order
	downstream map[string][]string // every node reachable from a node, in order
}

// planGraph orders the nodes topologically using Kahn's algorithm. Ties are
// broken by declaration order so runs of the same graph schedule the same way.
// A cycle is reported with the ids of the nodes forming it.
func planGraph(b *Built) (*plan, error) {
	declIndex := make(map[string]int, len(b.Declared))
	for i, id := range b.Declared {
		declIndex[id] = i
	}

	successors := make(map[string][]string, len(b.Declared))
	indeg := make(map[string]int, len(b.Declared))
	seen := make(map[[2]string]bool)
	for _, c := range b.Graph.Connections {
		edge := [2]string{c.SourceNode, c.TargetNode}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		successors[c.SourceNode] = append(successors[c.SourceNode], c.TargetNode)
		indeg[c.TargetNode]++
	}
	for id, succ := range successors {
		sort.SliceStable(succ, func(i, j int) bool { return declIndex[succ[i]] < declIndex[succ[j]] })
		successors[id] = succ
	}

	remaining := make(map[string]int, len(indeg))
	for id, d := range indeg {
		remaining[id] = d
	}

	queue := make([]string, 0, len(b.Declared))
	for _, id := range b.Declared {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(b.Declared))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, u := range successors[v] {
			remaining[u]--
			if remaining[u] == 0 {
				queue = append(queue, u)
			}
		}
	}

	if len(order) < len(b.Declared) {
		return nil, &CycleError{NodeIDs: findCycle(b.Declared, successors, remaining)}
	}

	p := &plan{
		order:      order,
		rank:       make(map[string]int, len(order)),
		successors: successors,
		downstream: make(map[string][]string, len(order)),
	}
	for i, id := range order {
		p.rank[id] = i
	}
	for _, id := range order {
		p.downstream[id] = p.reachable(id, nil)
	}
	return p, nil
}

// reachable returns every node reachable from id, excluding id, sorted by rank.
// When through is non-nil, nodes it rejects are neither returned nor walked past.
func (p *plan) reachable(id string, through func(string) bool) []string {
	visited := map[string]bool{id: true}
	stack := append([]string(nil), p.successors[id]...)
	var out []string
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[v] {
			continue
		}
		visited[v] = true
		if through != nil && !through(v) {
			continue
		}
		out = append(out, v)
		stack = append(stack, p.successors[v]...)
	}
	sort.Slice(out, func(i, j int) bool { return p.rank[out[i]] < p.rank[out[j]] })
	return out
}

// findCycle walks the nodes Kahn could not schedule and returns one cycle.
// Nodes merely downstream of a cycle are not part of the result.
func findCycle(declared []string, successors map[string][]string, remaining map[string]int) []string {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(v string) bool
	visit = func(v string) bool {
		colour[v] = grey
		path = append(path, v)
		for _, u := range successors[v] {
			if remaining[u] == 0 {
				continue
			}
			switch colour[u] {
			case grey:
				for i, p := range path {
					if p == u {
						cycle = append([]string(nil), path[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(u) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		colour[v] = black
		return false
	}

	for _, id := range declared {
		if remaining[id] > 0 && colour[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
