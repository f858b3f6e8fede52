package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zappabad/herdmarket/internal/engine"
)

func checkSimple(t require.TestingT, net *SocialNetwork) {
	for u := 0; u < net.Size(); u++ {
		for _, v := range net.Neighbors(u) {
			require.NotEqual(t, u, v, "self loop on %d", u)
			require.True(t, net.HasEdge(v, u), "edge %d-%d is not symmetric", u, v)
		}
	}
}

func connected(net *SocialNetwork) bool {
	if net.Size() == 0 {
		return true
	}
	seen := make([]bool, net.Size())
	queue := []int{0}
	seen[0] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range net.Neighbors(u) {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	for _, ok := range seen {
		if !ok {
			return false
		}
	}
	return true
}

func TestRegularGraphHasUniformDegree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 40).Draw(t, "n")
		d := rapid.IntRange(0, min(n-1, 6)).Draw(t, "d")
		if (n*d)%2 != 0 {
			d--
		}
		seed := rapid.Int64().Draw(t, "seed")

		net, err := Build(Spec{Kind: "regular", Degree: d}, n, engine.NewRandomSource(seed))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for u := 0; u < n; u++ {
			if net.Degree(u) != d {
				t.Fatalf("node %d has degree %d, want %d", u, net.Degree(u), d)
			}
		}
		if net.EdgeCount() != n*d/2 {
			t.Fatalf("edge count %d, want %d", net.EdgeCount(), n*d/2)
		}
		checkSimple(t, net)
	})
}

func TestScaleFreeGraph(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 60).Draw(t, "n")
		m := rapid.IntRange(1, min(n, 4)).Draw(t, "m")
		p := rapid.Float64Range(0, 1).Draw(t, "p")

		net, err := Build(Spec{Kind: "scalefree", Edges: m, TriangleProb: p}, n, engine.NewRandomSource(rapid.Int64().Draw(t, "seed")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if net.EdgeCount() > (n-m)*m {
			t.Fatalf("edge count %d exceeds %d", net.EdgeCount(), (n-m)*m)
		}
		for u := m; u < n; u++ {
			if net.Degree(u) < 1 {
				t.Fatalf("grown node %d is isolated", u)
			}
		}
		checkSimple(t, net)
	})
}

func TestSmallWorldAliasesScaleFree(t *testing.T) {
	spec := Spec{Kind: "small-world", Edges: 2, TriangleProb: 0.5}
	a, err := Build(spec, 30, engine.NewRandomSource(5))
	require.NoError(t, err)

	spec.Kind = "scalefree"
	b, err := Build(spec, 30, engine.NewRandomSource(5))
	require.NoError(t, err)

	for u := 0; u < 30; u++ {
		require.Equal(t, a.Neighbors(u), b.Neighbors(u))
	}
}

func TestBarabasiAlbertEdgeCount(t *testing.T) {
	const n, m = 50, 3
	net, err := Build(Spec{Kind: "barabasi", Edges: m}, n, engine.NewRandomSource(9))
	require.NoError(t, err)

	require.Equal(t, m+(n-m-1)*m, net.EdgeCount())
	for u := m + 1; u < n; u++ {
		require.GreaterOrEqual(t, net.Degree(u), m)
	}
	require.True(t, connected(net))
	checkSimple(t, net)
}

func TestConnectedCaveman(t *testing.T) {
	net, err := Build(Spec{Kind: "caveman", CliqueSize: 4}, 12, nil)
	require.NoError(t, err)

	require.Equal(t, 18, net.EdgeCount())
	require.True(t, connected(net))
	require.False(t, net.HasEdge(0, 1))
	require.True(t, net.HasEdge(0, 11))
	require.True(t, net.HasEdge(4, 3))
	require.Equal(t, 3, net.Degree(0))
	require.Equal(t, 2, net.Degree(1))
	require.Equal(t, 4, net.Degree(3))
	checkSimple(t, net)
}

func TestNoneHasNoEdges(t *testing.T) {
	net, err := Build(Spec{Kind: "none"}, 10, nil)
	require.NoError(t, err)
	require.Equal(t, 10, net.Size())
	require.Zero(t, net.EdgeCount())
	require.Nil(t, net.Neighbors(3))
}

func TestEmptyPopulationBuildsEmptyGraph(t *testing.T) {
	net, err := Build(Spec{Kind: "barabasi", Edges: 3}, 0, nil)
	require.NoError(t, err)
	require.Zero(t, net.Size())
}

func TestSameSeedSameGraph(t *testing.T) {
	spec := DefaultSpec()
	a, err := Build(spec, 40, engine.NewRandomSource(42))
	require.NoError(t, err)
	b, err := Build(spec, 40, engine.NewRandomSource(42))
	require.NoError(t, err)

	for u := 0; u < 40; u++ {
		require.Equal(t, a.Neighbors(u), b.Neighbors(u))
	}
}

func TestUnknownTopology(t *testing.T) {
	_, err := Build(Spec{Kind: "hypercube"}, 8, engine.NewRandomSource(1))
	if !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("expected ErrUnknownTopology, got %v", err)
	}
}

func TestSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		n    int
	}{
		{name: "odd regular", spec: Spec{Kind: "regular", Degree: 3}, n: 5},
		{name: "degree too large", spec: Spec{Kind: "regular", Degree: 5}, n: 5},
		{name: "scalefree zero edges", spec: Spec{Kind: "scalefree", Edges: 0}, n: 5},
		{name: "scalefree bad prob", spec: Spec{Kind: "scalefree", Edges: 1, TriangleProb: 2}, n: 5},
		{name: "barabasi edges equal n", spec: Spec{Kind: "barabasi", Edges: 5}, n: 5},
		{name: "caveman uneven", spec: Spec{Kind: "caveman", CliqueSize: 4}, n: 10},
		{name: "caveman tiny cliques", spec: Spec{Kind: "caveman", CliqueSize: 1}, n: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.spec.Validate(tt.n))
		})
	}
}

func TestNilNetworkIsEmpty(t *testing.T) {
	var net *SocialNetwork
	require.Zero(t, net.Size())
	require.Nil(t, net.Neighbors(0))
	require.False(t, net.HasEdge(0, 1))
}
