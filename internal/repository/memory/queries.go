package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
)

// UserByID implements repository.Queries.
func (s *Store) UserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	return &u, nil
}

// Cards implements repository.Queries.
func (s *Store) Cards(_ context.Context) ([]model.Card, error) {
	s.mu.RLock()
	out := make([]model.Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rarity.Rank(), out[j].Rarity.Rank()
		if ri != rj {
			return ri < rj
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Packs implements repository.Queries.
func (s *Store) Packs(_ context.Context) ([]model.Pack, error) {
	s.mu.RLock()
	out := make([]model.Pack, 0, len(s.packs))
	for _, p := range s.packs {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Events implements repository.Queries.
func (s *Store) Events(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// Collection implements repository.Queries.
func (s *Store) Collection(_ context.Context, userID string) ([]model.OwnedCard, error) {
	s.mu.RLock()
	var out []model.OwnedCard
	for _, e := range s.inventory {
		if e.UserID != userID || e.Quantity <= 0 {
			continue
		}
		out = append(out, model.OwnedCard{Card: s.cards[e.CardID], Quantity: e.Quantity})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Card.Rarity.Rank(), out[j].Card.Rarity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Card.Name < out[j].Card.Name
	})
	return out, nil
}

// Trades implements repository.Queries.
func (s *Store) Trades(_ context.Context, userID string, f model.TradeFilter) ([]model.Trade, error) {
	s.mu.RLock()
	var out []model.Trade
	for _, t := range s.trades {
		party := t.FromUserID
		if f.Incoming {
			party = t.ToUserID
		}
		if party != userID || (f.Status != "" && t.Status != f.Status) {
			continue
		}
		t.OfferedCards = cloneSet(t.OfferedCards)
		t.RequestedCards = cloneSet(t.RequestedCards)
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Rewards implements repository.Queries.
func (s *Store) Rewards(_ context.Context, studentID string) ([]model.Reward, error) {
	s.mu.RLock()
	var out []model.Reward
	for i := len(s.rewards) - 1; i >= 0; i-- {
		if s.rewards[i].StudentID == studentID {
			out = append(out, s.rewards[i])
		}
	}
	s.mu.RUnlock()
	return out, nil
}

// Leaderboard implements repository.Queries.
func (s *Store) Leaderboard(_ context.Context, kind model.LeaderboardKind, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.RLock()
	var out []model.LeaderboardEntry
	for _, u := range s.users {
		if u.Role != model.RoleStudent {
			continue
		}
		score := u.Coins
		if kind == model.LeaderboardCollection {
			score = u.CollectionSize
		}
		out = append(out, model.LeaderboardEntry{UserID: u.ID, Name: u.Name, Class: u.Class, Score: score})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
