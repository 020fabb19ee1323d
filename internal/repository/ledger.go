// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/ifcoins/internal/model"
)

// Ledger runs atomic read-modify-write transactions over economy documents.
//
// RunTx calls fn with a transactional handle. Writes are buffered and become visible only when fn
// returns nil and the commit succeeds. A commit succeeds only if no document read or written by
// the transaction changed since it was read; otherwise RunTx returns errs.ErrConflict and nothing
// is written. An error returned by fn aborts the transaction and is returned as is.
type Ledger interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a transactional read/write handle. Reads observe the transaction's own buffered writes.
// Documents carry the version they were read at; Put* expects that version to still be current.
type Tx interface {
	// User loads an account; errs.ErrNotFound if absent.
	User(ctx context.Context, id string) (model.User, error)
	// StudentsByRegistration loads students with the given registration number.
	StudentsByRegistration(ctx context.Context, registration string) ([]model.User, error)
	// StudentsByClass loads all students of a class.
	StudentsByClass(ctx context.Context, class string) ([]model.User, error)
	// Inventory loads an entry; an absent entry reads as quantity 0 with version 0.
	Inventory(ctx context.Context, userID, cardID string) (model.InventoryEntry, error)
	// Card loads a card definition; errs.ErrNotFound if absent.
	Card(ctx context.Context, id string) (model.Card, error)
	// Pack loads a pack; errs.ErrNotFound if absent.
	Pack(ctx context.Context, id string) (model.Pack, error)
	// Event loads an event; errs.ErrNotFound if absent.
	Event(ctx context.Context, id string) (model.Event, error)
	// Trade loads a trade proposal; errs.ErrNotFound if absent.
	Trade(ctx context.Context, id string) (model.Trade, error)

	PutUser(u model.User)
	PutInventory(e model.InventoryEntry)
	PutCard(c model.Card)
	PutPack(p model.Pack)
	PutEvent(e model.Event)
	PutTrade(t model.Trade)
	// AppendReward records an immutable audit entry.
	AppendReward(r model.Reward)
}

// Queries is the non-transactional read side used by listings and the catalog.
type Queries interface {
	// UserByID loads an account; errs.ErrNotFound if absent.
	UserByID(ctx context.Context, id string) (*model.User, error)
	// Cards returns every card definition ordered by rarity rank then name.
	Cards(ctx context.Context) ([]model.Card, error)
	// Packs returns every pack ordered by price then name.
	Packs(ctx context.Context) ([]model.Pack, error)
	// Events returns every event ordered by start time.
	Events(ctx context.Context) ([]model.Event, error)
	// Collection returns the user's cards with a positive quantity.
	Collection(ctx context.Context, userID string) ([]model.OwnedCard, error)
	// Trades lists trades authored by or addressed to the user, newest first.
	Trades(ctx context.Context, userID string, f model.TradeFilter) ([]model.Trade, error)
	// Rewards lists a student's reward records, newest first.
	Rewards(ctx context.Context, studentID string) ([]model.Reward, error)
	// Leaderboard ranks students by the given metric.
	Leaderboard(ctx context.Context, kind model.LeaderboardKind, limit int) ([]model.LeaderboardEntry, error)
}

// Store is a full backend: transactional ledger plus read side.
type Store interface {
	Ledger
	Queries
}
