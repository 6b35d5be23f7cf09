package lockmanager

import "coredb/concurrency/txn"

// Edge is one wait-for relationship: From waits for To to release a
// lock. Mirrors BusTub's GetEdgeList() return shape.
type Edge struct {
	From txn.ID
	To   txn.ID
}

// addEdgeLocked records that from waits for to. Caller must hold m.mu.
func (m *Manager) addEdgeLocked(from, to txn.ID) {
	if from == to {
		return
	}
	set, ok := m.edges[from]
	if !ok {
		set = make(map[txn.ID]struct{})
		m.edges[from] = set
	}
	set[to] = struct{}{}
}

// AddEdge records that from waits for to.
func (m *Manager) AddEdge(from, to txn.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addEdgeLocked(from, to)
}

// RemoveEdge removes the from->to wait-for edge, if present.
func (m *Manager) RemoveEdge(from, to txn.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.edges[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(m.edges, from)
		}
	}
}

// GetEdgeList returns every edge currently in the wait-for graph.
func (m *Manager) GetEdgeList() []Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var edges []Edge
	for from, set := range m.edges {
		for to := range set {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

// HasCycle reports whether the wait-for graph currently contains a
// cycle. When it does, victim is set to the highest transaction id
// participating in that cycle — the youngest transaction, and so the
// one this manager's detector prefers to abort.
func (m *Manager) HasCycle() (victim txn.ID, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasCycleLocked()
}

func (m *Manager) hasCycleLocked() (txn.ID, bool) {
	nodes := make(map[txn.ID]struct{})
	for from, set := range m.edges {
		nodes[from] = struct{}{}
		for to := range set {
			nodes[to] = struct{}{}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[txn.ID]int)
	var path []txn.ID

	var dfs func(txn.ID) (txn.ID, bool)
	dfs = func(n txn.ID) (txn.ID, bool) {
		state[n] = visiting
		path = append(path, n)

		neighbors := make([]txn.ID, 0, len(m.edges[n]))
		for to := range m.edges[n] {
			neighbors = append(neighbors, to)
		}
		sortIDs(neighbors)

		for _, to := range neighbors {
			switch state[to] {
			case visiting:
				var maxID txn.ID
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] > maxID {
						maxID = path[i]
					}
					if path[i] == to {
						break
					}
				}
				return maxID, true
			case unvisited:
				if v, ok := dfs(to); ok {
					return v, true
				}
			}
		}
		path = path[:len(path)-1]
		state[n] = done
		return 0, false
	}

	ordered := make([]txn.ID, 0, len(nodes))
	for n := range nodes {
		ordered = append(ordered, n)
	}
	sortIDs(ordered)

	for _, n := range ordered {
		if state[n] == unvisited {
			if v, ok := dfs(n); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// sortIDs gives DFS a deterministic starting order so HasCycle's victim
// choice doesn't depend on Go's randomized map iteration.
func sortIDs(ids []txn.ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
