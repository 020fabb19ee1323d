// Package draw implements the pack-opening engine: rarity-weighted random card draws.
package draw

import (
	"crypto/rand"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"sync"

	"github.com/and161185/ifcoins/internal/catalog"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
)

// DefaultPackSize is the number of cards drawn per pack.
const DefaultPackSize = 3

// RandomSource supplies uniform randomness. *math/rand/v2.Rand satisfies it.
type RandomSource interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type lockedSource struct {
	mu sync.Mutex
	r  *mrand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// NewLockedSource returns a goroutine-safe ChaCha8 source with a fixed seed.
func NewLockedSource(seed [32]byte) RandomSource {
	return &lockedSource{r: mrand.New(mrand.NewChaCha8(seed))}
}

// NewSource returns a goroutine-safe source seeded from crypto/rand.
func NewSource() (RandomSource, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return NewLockedSource(seed), nil
}

// Weight is the draw probability of one rarity.
type Weight struct {
	Rarity model.Rarity
	P      float64
}

// Weights is an ordered probability table walked cumulatively.
type Weights []Weight

// DefaultWeights is the reference table.
var DefaultWeights = Weights{
	{model.RarityCommon, 0.70},
	{model.RarityRare, 0.20},
	{model.RarityLegendary, 0.08},
	{model.RarityMythic, 0.02},
}

// Validate checks that probabilities are non-negative and sum to 1.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("empty weight table: %w", errs.ErrInvalidArgument)
	}
	var sum float64
	for _, x := range w {
		if x.P < 0 {
			return fmt.Errorf("negative weight for %s: %w", x.Rarity, errs.ErrInvalidArgument)
		}
		sum += x.P
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %v: %w", sum, errs.ErrInvalidArgument)
	}
	return nil
}

// Engine draws cards from a catalog snapshot.
type Engine struct {
	rng     RandomSource
	weights Weights
}

// New constructs an engine; a nil weight table means DefaultWeights.
func New(rng RandomSource, weights Weights) (*Engine, error) {
	if rng == nil {
		return nil, fmt.Errorf("nil random source: %w", errs.ErrInvalidArgument)
	}
	if weights == nil {
		weights = DefaultWeights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{rng: rng, weights: weights}, nil
}

// Rarity samples a rarity by walking the table cumulatively. It returns "" when rounding leaves
// the sample above the accumulated total.
func (e *Engine) Rarity() model.Rarity {
	r := e.rng.Float64()
	var cum float64
	for _, w := range e.weights {
		cum += w.P
		if cum >= r {
			return w.Rarity
		}
	}
	return ""
}

// Draw returns n independent picks from the available cards of the snapshot. Each pick samples
// a rarity, then a card of that rarity uniformly; if the rarity has no available card, the pick
// falls back to a uniform choice over all available cards. Picks may repeat.
func (e *Engine) Draw(cards []model.Card, n int) ([]model.Card, error) {
	var all []model.Card
	for _, c := range cards {
		if c.Available {
			all = append(all, c)
		}
	}
	if len(all) == 0 {
		return nil, errs.ErrCatalogEmpty
	}

	byRarity := catalog.ByRarity(all)
	out := make([]model.Card, 0, n)
	for i := 0; i < n; i++ {
		pool := byRarity[e.Rarity()]
		if len(pool) == 0 {
			pool = all
		}
		out = append(out, pool[e.rng.IntN(len(pool))])
	}
	return out, nil
}
