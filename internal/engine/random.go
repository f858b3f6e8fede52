package engine

import "math/rand"

// RandomSource is the only source of nondeterminism the engine consumes.
// Draw order is stable for a fixed agent iteration order, so a seeded
// source reproduces a run exactly.
type RandomSource interface {
	// Uniform returns a draw from [0, 1).
	Uniform() float64
	// Gaussian returns a draw from N(mean, std).
	Gaussian(mean, std float64) float64
	// Intn returns a draw from [0, n).
	Intn(n int) int
}

type seededSource struct {
	rng *rand.Rand
}

// NewRandomSource returns a RandomSource backed by a seeded math/rand generator.
func NewRandomSource(seed int64) RandomSource {
	return &seededSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *seededSource) Uniform() float64 {
	return s.rng.Float64()
}

func (s *seededSource) Gaussian(mean, std float64) float64 {
	return mean + std*s.rng.NormFloat64()
}

func (s *seededSource) Intn(n int) int {
	return s.rng.Intn(n)
}
