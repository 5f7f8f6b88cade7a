package rng

import (
	"context"
	"math/rand/v2"
	"sort"
)

// BasicSource draws from the process pseudo-random generator. Acceptable
// only for development and test draws.
type BasicSource struct{}

func NewBasicSource() *BasicSource {
	return &BasicSource{}
}

func (s *BasicSource) Generate(_ context.Context, count, maxNumber int, exclude []int) ([]int, error) {
	pool, err := availablePool(count, maxNumber, exclude)
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	result := append([]int(nil), pool[:count]...)
	sort.Ints(result)
	return result, nil
}

func (s *BasicSource) Info() ProviderInfo {
	return ProviderInfo{
		Name:           "Basic RNG",
		Type:           "local",
		Description:    "Process pseudo-random generator. Not for production use.",
		SecurityRating: "low",
	}
}
