// Package network builds the static social graph over non-random agents.
package network

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTopology is returned for a topology keyword Build does not know.
var ErrUnknownTopology = errors.New("unknown network topology")

// Kind selects a graph generator.
type Kind string

const (
	KindRegular   Kind = "regular"
	KindScaleFree Kind = "scalefree"
	KindBarabasi  Kind = "barabasi"
	KindCaveman   Kind = "caveman"
	KindNone      Kind = "none"
)

var kindAliases = map[string]Kind{
	"regular":                 KindRegular,
	"random":                  KindRegular,
	"random-regular":          KindRegular,
	"scalefree":               KindScaleFree,
	"scale-free":              KindScaleFree,
	"smallworld":              KindScaleFree,
	"small-world":             KindScaleFree,
	"powerlaw":                KindScaleFree,
	"barabasi":                KindBarabasi,
	"preferential":            KindBarabasi,
	"preferential-attachment": KindBarabasi,
	"caveman":                 KindCaveman,
	"none":                    KindNone,
	"":                        KindNone,
}

// ParseKind maps a topology keyword to its generator, case-insensitively.
func ParseKind(name string) (Kind, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopology, name)
	}
	return kind, nil
}

// Spec is a topology keyword plus the parameters its generator reads.
type Spec struct {
	Kind string `mapstructure:"kind" json:"kind"`
	// Degree of every node in a regular graph.
	Degree int `mapstructure:"degree" json:"degree"`
	// Edges each new node attaches with in the scale-free and
	// preferential attachment generators.
	Edges int `mapstructure:"edges" json:"edges"`
	// TriangleProb is the chance of closing a triangle after each
	// attachment in the scale-free generator.
	TriangleProb float64 `mapstructure:"triangle_prob" json:"triangle_prob"`
	// CliqueSize is the size of every cave; it must divide the node count.
	CliqueSize int `mapstructure:"clique_size" json:"clique_size"`
}

// DefaultSpec returns a scale-free graph with small clustered neighborhoods.
func DefaultSpec() Spec {
	return Spec{
		Kind:         string(KindScaleFree),
		Degree:       4,
		Edges:        2,
		TriangleProb: 0.3,
		CliqueSize:   4,
	}
}

// Validate checks the parameters the selected generator needs for n nodes.
func (s Spec) Validate(n int) error {
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("node count must be >= 0, got %d", n)
	}
	if n == 0 {
		return nil
	}

	switch kind {
	case KindRegular:
		if s.Degree < 0 || s.Degree >= n {
			return fmt.Errorf("regular: degree must be in [0, %d), got %d", n, s.Degree)
		}
		if (n*s.Degree)%2 != 0 {
			return fmt.Errorf("regular: nodes*degree must be even, got %d*%d", n, s.Degree)
		}
	case KindScaleFree:
		if s.Edges < 1 || s.Edges > n {
			return fmt.Errorf("scalefree: edges must be in [1, %d], got %d", n, s.Edges)
		}
		if s.TriangleProb < 0 || s.TriangleProb > 1 {
			return fmt.Errorf("scalefree: triangle_prob must be in [0, 1], got %v", s.TriangleProb)
		}
	case KindBarabasi:
		if s.Edges < 1 || s.Edges >= n {
			return fmt.Errorf("barabasi: edges must be in [1, %d), got %d", n, s.Edges)
		}
	case KindCaveman:
		if s.CliqueSize < 2 {
			return fmt.Errorf("caveman: clique_size must be >= 2, got %d", s.CliqueSize)
		}
		if n%s.CliqueSize != 0 {
			return fmt.Errorf("caveman: clique_size %d does not divide %d nodes", s.CliqueSize, n)
		}
	}
	return nil
}

// Source is the randomness the generators draw from.
type Source interface {
	Uniform() float64
	Intn(n int) int
}

// SocialNetwork is an immutable undirected graph over ids [0, Size()).
type SocialNetwork struct {
	adj [][]int
}

// Build generates the graph for n nodes. The generators draw from src only,
// so a seeded source reproduces the same graph.
func Build(spec Spec, n int, src Source) (*SocialNetwork, error) {
	if err := spec.Validate(n); err != nil {
		return nil, err
	}
	kind, _ := ParseKind(spec.Kind)

	g := newGraph(n)
	if n > 0 {
		var err error
		switch kind {
		case KindRegular:
			err = g.randomRegular(spec.Degree, src)
		case KindScaleFree:
			g.powerlawCluster(spec.Edges, spec.TriangleProb, src)
		case KindBarabasi:
			g.barabasiAlbert(spec.Edges, src)
		case KindCaveman:
			g.connectedCaveman(n/spec.CliqueSize, spec.CliqueSize)
		case KindNone:
		}
		if err != nil {
			return nil, err
		}
	}
	return g.freeze(), nil
}

// Size is the node count.
func (s *SocialNetwork) Size() int {
	if s == nil {
		return 0
	}
	return len(s.adj)
}

// Neighbors returns the sorted neighbor ids of id, or nil for an unknown id.
func (s *SocialNetwork) Neighbors(id int) []int {
	if s == nil || id < 0 || id >= len(s.adj) || len(s.adj[id]) == 0 {
		return nil
	}
	out := make([]int, len(s.adj[id]))
	copy(out, s.adj[id])
	return out
}

func (s *SocialNetwork) Degree(id int) int {
	if s == nil || id < 0 || id >= len(s.adj) {
		return 0
	}
	return len(s.adj[id])
}

func (s *SocialNetwork) EdgeCount() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, nbrs := range s.adj {
		total += len(nbrs)
	}
	return total / 2
}

// HasEdge reports whether u and v are adjacent.
func (s *SocialNetwork) HasEdge(u, v int) bool {
	if s == nil || u < 0 || u >= len(s.adj) {
		return false
	}
	nbrs := s.adj[u]
	i := sort.SearchInts(nbrs, v)
	return i < len(nbrs) && nbrs[i] == v
}
