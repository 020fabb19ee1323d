// Package catalog exposes the drawable card set: available, in stock, and not tied to an
// inactive event.
package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
)

// Source is the read side the catalog is built from.
type Source interface {
	Cards(ctx context.Context) ([]model.Card, error)
	Events(ctx context.Context) ([]model.Event, error)
}

// Snapshot is a complete copy of card and event definitions. Snapshots are replaced whole, never
// patched, so readers never observe a partially written card.
type Snapshot struct {
	Cards  []model.Card  `json:"cards"`
	Events []model.Event `json:"events"`
}

// Cache stores snapshots between reads.
type Cache interface {
	// Load returns the cached snapshot, or nil on a miss.
	Load(ctx context.Context) (*Snapshot, error)
	Store(ctx context.Context, s Snapshot) error
	Invalidate(ctx context.Context) error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache enables snapshot caching.
func WithCache(c Cache) Option { return func(cat *Catalog) { cat.cache = c } }

// WithClock overrides the time source used for event windows.
func WithClock(now func() time.Time) Option { return func(cat *Catalog) { cat.now = now } }

// Catalog serves card definitions to the draw engine and to listings.
type Catalog struct {
	src   Source
	cache Cache
	now   func() time.Time
	log   *zap.Logger
}

// New constructs a catalog over src.
func New(src Source, log *zap.Logger, opts ...Option) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{src: src, now: time.Now, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Snapshot returns the current definitions, from cache when possible. Cache failures are logged
// and fall through to the source.
func (c *Catalog) Snapshot(ctx context.Context) (Snapshot, error) {
	if c.cache != nil {
		s, err := c.cache.Load(ctx)
		if err != nil {
			c.log.Warn("catalog cache load", zap.Error(err))
		} else if s != nil {
			return *s, nil
		}
	}

	cards, err := c.src.Cards(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := c.src.Events(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{Cards: cards, Events: events}

	if c.cache != nil {
		if err := c.cache.Store(ctx, s); err != nil {
			c.log.Warn("catalog cache store", zap.Error(err))
		}
	}
	return s, nil
}

// Available returns the cards that may currently be drawn.
func (c *Catalog) Available(ctx context.Context) ([]model.Card, error) {
	s, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Drawable(s, c.now()), nil
}

// ForDraw returns the cards a pack may be filled from. It fails with errs.ErrOutOfStock when cards
// are on offer but every one of them has run out of copies, and with errs.ErrCatalogEmpty when
// nothing is on offer at all.
func (c *Catalog) ForDraw(ctx context.Context) ([]model.Card, error) {
	s, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if cards := Drawable(s, now); len(cards) > 0 {
		return cards, nil
	}
	for _, card := range offered(s, now) {
		if !card.InStock() {
			return nil, fmt.Errorf("card %s: %w", card.ID, errs.ErrOutOfStock)
		}
	}
	return nil, errs.ErrCatalogEmpty
}

// ActiveEvents returns events running at the current time.
func (c *Catalog) ActiveEvents(ctx context.Context) ([]model.Event, error) {
	s, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	var out []model.Event
	for _, e := range s.Events {
		if e.ActiveAt(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Invalidate drops the cached snapshot. Called after card or event writes commit.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidate", zap.Error(err))
	}
}

// Drawable filters a snapshot down to cards that are available, in stock, and either not tied to
// an event or tied to one active at now.
func Drawable(s Snapshot, now time.Time) []model.Card {
	var out []model.Card
	for _, card := range offered(s, now) {
		if card.InStock() {
			out = append(out, card)
		}
	}
	return out
}

// offered keeps available cards outside inactive event windows, regardless of stock.
func offered(s Snapshot, now time.Time) []model.Card {
	active := make(map[string]bool, len(s.Events))
	for _, e := range s.Events {
		active[e.ID] = e.ActiveAt(now)
	}
	var out []model.Card
	for _, card := range s.Cards {
		if !card.Available {
			continue
		}
		if card.EventID != "" && !active[card.EventID] {
			continue
		}
		out = append(out, card)
	}
	return out
}

// ByRarity groups cards by rarity.
func ByRarity(cards []model.Card) map[model.Rarity][]model.Card {
	out := make(map[model.Rarity][]model.Card, len(model.Rarities))
	for _, card := range cards {
		out[card.Rarity] = append(out[card.Rarity], card)
	}
	return out
}
