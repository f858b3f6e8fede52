package network

import (
	"fmt"
	"sort"
)

const maxRegularAttempts = 1000

type edge [2]int

// graph is the mutable builder behind SocialNetwork.
type graph struct {
	adj []map[int]struct{}
}

func newGraph(n int) *graph {
	adj := make([]map[int]struct{}, n)
	for i := range adj {
		adj[i] = make(map[int]struct{})
	}
	return &graph{adj: adj}
}

// addEdge ignores self loops and duplicates.
func (g *graph) addEdge(u, v int) bool {
	if u == v || g.hasEdge(u, v) {
		return false
	}
	g.adj[u][v] = struct{}{}
	g.adj[v][u] = struct{}{}
	return true
}

func (g *graph) removeEdge(u, v int) {
	delete(g.adj[u], v)
	delete(g.adj[v], u)
}

func (g *graph) hasEdge(u, v int) bool {
	_, ok := g.adj[u][v]
	return ok
}

// sortedNeighbors gives the generators a stable iteration order.
func (g *graph) sortedNeighbors(u int) []int {
	out := make([]int, 0, len(g.adj[u]))
	for v := range g.adj[u] {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (g *graph) freeze() *SocialNetwork {
	adj := make([][]int, len(g.adj))
	for u := range g.adj {
		adj[u] = g.sortedNeighbors(u)
	}
	return &SocialNetwork{adj: adj}
}

// randomRegular pairs degree stubs per node at random, re-pairing the
// stubs that would form self loops or parallel edges until none are left.
// A dead end restarts from scratch.
func (g *graph) randomRegular(d int, src Source) error {
	if d == 0 {
		return nil
	}
	n := len(g.adj)
	for attempt := 0; attempt < maxRegularAttempts; attempt++ {
		edges, ok := tryRegular(n, d, src)
		if !ok {
			continue
		}
		for _, e := range edges {
			g.addEdge(e[0], e[1])
		}
		return nil
	}
	return fmt.Errorf("regular: no %d-regular graph on %d nodes after %d attempts", d, n, maxRegularAttempts)
}

func tryRegular(n, d int, src Source) ([]edge, bool) {
	seen := make(map[edge]struct{}, n*d/2)
	edges := make([]edge, 0, n*d/2)

	stubs := make([]int, 0, n*d)
	for i := 0; i < d; i++ {
		for v := 0; v < n; v++ {
			stubs = append(stubs, v)
		}
	}

	for len(stubs) > 0 {
		shuffle(stubs, src)

		leftover := make(map[int]int)
		var order []int
		for i := 0; i+1 < len(stubs); i += 2 {
			u, v := stubs[i], stubs[i+1]
			if u > v {
				u, v = v, u
			}
			e := edge{u, v}
			if _, dup := seen[e]; u != v && !dup {
				seen[e] = struct{}{}
				edges = append(edges, e)
				continue
			}
			for _, x := range [2]int{u, v} {
				if leftover[x] == 0 {
					order = append(order, x)
				}
				leftover[x]++
			}
		}

		if !canPair(seen, order) {
			return nil, false
		}

		next := make([]int, 0, len(stubs))
		for _, v := range order {
			for k := 0; k < leftover[v]; k++ {
				next = append(next, v)
			}
		}
		stubs = next
	}
	return edges, true
}

// canPair reports whether at least one unused edge exists among nodes.
func canPair(seen map[edge]struct{}, nodes []int) bool {
	if len(nodes) == 0 {
		return true
	}
	for i, a := range nodes {
		for _, b := range nodes[:i] {
			u, v := a, b
			if u > v {
				u, v = v, u
			}
			if _, ok := seen[edge{u, v}]; !ok {
				return true
			}
		}
	}
	return false
}

// powerlawCluster is preferential attachment with triad closure: after each
// attachment a new node links, with probability p, to a random neighbor of
// the node it just attached to.
func (g *graph) powerlawCluster(m int, p float64, src Source) {
	n := len(g.adj)
	repeated := make([]int, 0, m+2*(n-m)*m)
	for v := 0; v < m; v++ {
		repeated = append(repeated, v)
	}

	for source := m; source < n; source++ {
		targets := randomSubset(repeated, m, src)
		target := targets[len(targets)-1]
		targets = targets[:len(targets)-1]
		g.addEdge(source, target)
		repeated = append(repeated, target)

		for count := 1; count < m; count++ {
			if src.Uniform() < p {
				var hood []int
				for _, nbr := range g.sortedNeighbors(target) {
					if nbr != source && !g.hasEdge(source, nbr) {
						hood = append(hood, nbr)
					}
				}
				if len(hood) > 0 {
					nbr := hood[src.Intn(len(hood))]
					g.addEdge(source, nbr)
					repeated = append(repeated, nbr)
					continue
				}
			}
			target = targets[len(targets)-1]
			targets = targets[:len(targets)-1]
			g.addEdge(source, target)
			repeated = append(repeated, target)
		}

		for k := 0; k < m; k++ {
			repeated = append(repeated, source)
		}
	}
}

// barabasiAlbert grows a star of m+1 nodes by attaching every new node to m
// distinct existing nodes chosen proportionally to degree.
func (g *graph) barabasiAlbert(m int, src Source) {
	n := len(g.adj)
	repeated := make([]int, 0, 2*m*n)
	for v := 1; v <= m; v++ {
		g.addEdge(0, v)
		repeated = append(repeated, 0)
	}
	for v := 1; v <= m; v++ {
		repeated = append(repeated, v)
	}

	for source := m + 1; source < n; source++ {
		targets := randomSubset(repeated, m, src)
		for _, t := range targets {
			g.addEdge(source, t)
		}
		repeated = append(repeated, targets...)
		for k := 0; k < m; k++ {
			repeated = append(repeated, source)
		}
	}
}

// connectedCaveman builds l cliques of size k and rewires one edge per
// clique to the previous clique, closing a ring of caves.
func (g *graph) connectedCaveman(l, k int) {
	total := l * k
	for start := 0; start < total; start += k {
		for i := start; i < start+k; i++ {
			for j := i + 1; j < start+k; j++ {
				g.addEdge(i, j)
			}
		}
	}
	for start := 0; start < total; start += k {
		g.removeEdge(start, start+1)
		g.addEdge(start, (start-1+total)%total)
	}
}

// randomSubset draws m distinct values from seq, in draw order.
func randomSubset(seq []int, m int, src Source) []int {
	picked := make(map[int]struct{}, m)
	out := make([]int, 0, m)
	for len(out) < m {
		x := seq[src.Intn(len(seq))]
		if _, ok := picked[x]; ok {
			continue
		}
		picked[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

func shuffle(xs []int, src Source) {
	for i := len(xs) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
