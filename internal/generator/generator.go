// Package generator builds batches of expedition missions from a difficulty catalog.
package generator

import (
	"cmp"
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// ErrEmptyCatalog is returned when there are no difficulties to pick from.
var ErrEmptyCatalog = errors.New("no expedition mission difficulties to pick from")

// Rand is the subset of *rand.Rand the generator draws from.
type Rand interface {
	IntN(n int) int
	Int32() int32
	Shuffle(n int, swap func(i, j int))
}

// Generator produces mission batches of a fixed size.
type Generator struct {
	rng     Rand
	catalog []core.Difficulty
	limit   int
}

// New creates a generator. A nil rng uses a randomly seeded PCG source.
func New(rng Rand, catalog []core.Difficulty, limit int) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		rng:     rng,
		catalog: slices.Clone(catalog),
		limit:   limit,
	}
}

// Limit returns the batch size.
func (g *Generator) Limit() int {
	return g.limit
}

// SetCatalog replaces the difficulty catalog used by later batches.
func (g *Generator) SetCatalog(catalog []core.Difficulty) {
	g.catalog = slices.Clone(catalog)
}

// Generate returns exactly Limit missions indexed 0..Limit-1, ordered by
// ascending difficulty order. When the catalog is smaller than the batch,
// the remaining slots are filled with uniform draws (with replacement).
func (g *Generator) Generate() ([]core.MissionParams, error) {
	if len(g.catalog) == 0 {
		return nil, ErrEmptyCatalog
	}

	shuffled := slices.Clone(g.catalog)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	picked := shuffled[:min(g.limit, len(shuffled))]
	for len(picked) < g.limit {
		picked = append(picked, g.catalog[g.rng.IntN(len(g.catalog))])
	}

	slices.SortStableFunc(picked, func(a, b core.Difficulty) int {
		return cmp.Compare(a.Order, b.Order)
	})

	missions := make([]core.MissionParams, 0, g.limit)
	for i, d := range picked {
		missions = append(missions, core.MissionParams{
			Index:      core.MissionIndex(i),
			Type:       core.MissionType(g.rng.IntN(int(core.MissionTypeMax) + 1)),
			Seed:       g.rng.Int32(),
			Difficulty: d.ID,
		})
	}
	return missions, nil
}
