package service

import (
	"context"
	"fmt"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50
)

// CatalogReader is the catalog's read side.
type CatalogReader interface {
	Available(ctx context.Context) ([]model.Card, error)
	ActiveEvents(ctx context.Context) ([]model.Event, error)
}

// QueryService serves read-only views.
type QueryService interface {
	Me(ctx context.Context, p auth.Principal) (model.User, error)
	Collection(ctx context.Context, p auth.Principal) ([]model.OwnedCard, error)
	Leaderboard(ctx context.Context, kind model.LeaderboardKind, limit int) ([]model.LeaderboardEntry, error)
	Catalog(ctx context.Context) ([]model.Card, error)
	Packs(ctx context.Context) ([]model.Pack, error)
	ActiveEvents(ctx context.Context) ([]model.Event, error)
}

type QueryServiceImpl struct {
	q       repository.Queries
	catalog CatalogReader
}

// NewQueryService constructs QueryService.
func NewQueryService(q repository.Queries, catalog CatalogReader) *QueryServiceImpl {
	return &QueryServiceImpl{q: q, catalog: catalog}
}

// Me returns the caller's account.
func (s *QueryServiceImpl) Me(ctx context.Context, p auth.Principal) (model.User, error) {
	if p.ID == "" {
		return model.User{}, errs.ErrUnauthorized
	}
	u, err := s.q.UserByID(ctx, p.ID)
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// Collection returns the caller's owned cards.
func (s *QueryServiceImpl) Collection(ctx context.Context, p auth.Principal) ([]model.OwnedCard, error) {
	if p.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.q.Collection(ctx, p.ID)
}

// Leaderboard defaults to coins and 10 entries; limit is capped at 50.
func (s *QueryServiceImpl) Leaderboard(ctx context.Context, kind model.LeaderboardKind, limit int) ([]model.LeaderboardEntry, error) {
	if kind == "" {
		kind = model.LeaderboardCoins
	}
	if kind != model.LeaderboardCoins && kind != model.LeaderboardCollection {
		return nil, fmt.Errorf("leaderboard %q: %w", kind, errs.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return s.q.Leaderboard(ctx, kind, limit)
}

// Catalog returns the currently drawable cards.
func (s *QueryServiceImpl) Catalog(ctx context.Context) ([]model.Card, error) {
	return s.catalog.Available(ctx)
}

// Packs returns packs on sale.
func (s *QueryServiceImpl) Packs(ctx context.Context) ([]model.Pack, error) {
	all, err := s.q.Packs(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, pk := range all {
		if pk.Available {
			out = append(out, pk)
		}
	}
	return out, nil
}

// ActiveEvents returns running events.
func (s *QueryServiceImpl) ActiveEvents(ctx context.Context) ([]model.Event, error) {
	return s.catalog.ActiveEvents(ctx)
}
