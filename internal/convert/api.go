// Package convert maps domain entities to wire messages and back.
package convert

import (
	"fmt"
	"strings"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/service"
)

// --- helpers ---

func mapSlice[T, U any](in []T, f func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func toSet(m map[string]int64) model.CardSet {
	if len(m) == 0 {
		return nil
	}
	s := make(model.CardSet, len(m))
	for id, q := range m {
		s[id] = q
	}
	return s
}

func fromSet(s model.CardSet) map[string]int64 {
	if len(s) == 0 {
		return nil
	}
	m := make(map[string]int64, len(s))
	for id, q := range s {
		m[id] = q
	}
	return m
}

// --- domain -> wire ---

func ToAPIUser(u model.User) api.User {
	return api.User{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		Registration:   u.Registration,
		Class:          u.Class,
		Coins:          u.Coins,
		CollectionSize: u.CollectionSize,
		CreatedAt:      u.CreatedAt,
	}
}

func ToAPICard(c model.Card) api.Card {
	return api.Card{
		ID:              c.ID,
		Name:            c.Name,
		Description:     c.Description,
		Rarity:          string(c.Rarity),
		Available:       c.Available,
		CopiesAvailable: copyInt64(c.CopiesAvailable),
		Price:           copyInt64(c.Price),
		EventID:         c.EventID,
	}
}

func ToAPICards(cs []model.Card) []api.Card { return mapSlice(cs, ToAPICard) }

func ToAPIPack(p model.Pack) api.Pack {
	return api.Pack{ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, Available: p.Available}
}

func ToAPIPacks(ps []model.Pack) []api.Pack { return mapSlice(ps, ToAPIPack) }

func ToAPIEvent(e model.Event) api.Event {
	return api.Event{ID: e.ID, Name: e.Name, StartsAt: e.StartsAt, EndsAt: e.EndsAt, BonusMultiplier: e.BonusMultiplier}
}

func ToAPIEvents(es []model.Event) []api.Event { return mapSlice(es, ToAPIEvent) }

func ToAPIOwned(cs []model.OwnedCard) []api.OwnedCard {
	return mapSlice(cs, func(o model.OwnedCard) api.OwnedCard {
		return api.OwnedCard{Card: ToAPICard(o.Card), Quantity: o.Quantity}
	})
}

func ToAPITrade(t model.Trade) api.Trade {
	out := api.Trade{
		ID:             t.ID,
		FromUserID:     t.FromUserID,
		ToUserID:       t.ToUserID,
		OfferedCards:   fromSet(t.OfferedCards),
		RequestedCards: fromSet(t.RequestedCards),
		OfferedCoins:   t.OfferedCoins,
		RequestedCoins: t.RequestedCoins,
		Status:         string(t.Status),
		Reason:         t.Reason,
		CreatedAt:      t.CreatedAt,
	}
	if t.SettledAt != nil {
		at := *t.SettledAt
		out.SettledAt = &at
	}
	return out
}

func ToAPITrades(ts []model.Trade) []api.Trade { return mapSlice(ts, ToAPITrade) }

func ToAPIReward(r model.Reward) api.Reward {
	return api.Reward{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		StudentID: r.StudentID,
		Coins:     r.Coins,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
}

func ToAPIRewards(rs []model.Reward) []api.Reward { return mapSlice(rs, ToAPIReward) }

func ToAPILeaderboard(kind model.LeaderboardKind, es []model.LeaderboardEntry) *api.LeaderboardResponse {
	if kind == "" {
		kind = model.LeaderboardCoins
	}
	return &api.LeaderboardResponse{
		Kind: string(kind),
		Entries: mapSlice(es, func(e model.LeaderboardEntry) api.LeaderboardEntry {
			return api.LeaderboardEntry{Rank: e.Rank, UserID: e.UserID, Name: e.Name, Class: e.Class, Score: e.Score}
		}),
	}
}

func ToAPIPurchase(r model.PurchaseResult) *api.PurchasePackResponse {
	return &api.PurchasePackResponse{
		PackID:     r.PackID,
		Cards:      ToAPICards(r.Cards),
		NewlyOwned: append([]string{}, r.NewlyOwned...),
		Restocked:  append([]string{}, r.Restocked...),
		Balance:    r.Balance,
	}
}

func ToAPIRewardResult(r model.RewardResult) *api.IssueRewardResponse {
	return &api.IssueRewardResponse{StudentsRewarded: r.StudentsRewarded, Rewards: ToAPIRewards(r.Rewards)}
}

// --- wire -> domain ---

// FromAPICard validates the rarity; the rest is checked by the admin service.
func FromAPICard(in api.Card) (model.Card, error) {
	r, err := model.ParseRarity(strings.ToLower(strings.TrimSpace(in.Rarity)))
	if err != nil {
		return model.Card{}, fmt.Errorf("%v: %w", err, errs.ErrInvalidArgument)
	}
	return model.Card{
		ID:              in.ID,
		Name:            in.Name,
		Description:     in.Description,
		Rarity:          r,
		Available:       in.Available,
		CopiesAvailable: copyInt64(in.CopiesAvailable),
		Price:           copyInt64(in.Price),
		EventID:         in.EventID,
	}, nil
}

func FromAPIPack(in api.Pack) model.Pack {
	return model.Pack{Name: in.Name, Description: in.Description, Price: in.Price, Available: in.Available}
}

func FromAPIEvent(in api.Event) model.Event {
	return model.Event{Name: in.Name, StartsAt: in.StartsAt, EndsAt: in.EndsAt, BonusMultiplier: in.BonusMultiplier}
}

func FromAPIProposal(in *api.ProposeTradeRequest) service.Proposal {
	return service.Proposal{
		ToUserID:       in.ToUserID,
		OfferedCards:   toSet(in.OfferedCards),
		RequestedCards: toSet(in.RequestedCards),
		OfferedCoins:   in.OfferedCoins,
		RequestedCoins: in.RequestedCoins,
	}
}

func FromAPIDecision(s string) (model.Decision, error) {
	switch d := model.Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case model.DecisionAccept, model.DecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("decision %q: %w", s, errs.ErrInvalidArgument)
}

func FromAPITradeFilter(in *api.ListTradesRequest) (model.TradeFilter, error) {
	st := model.TradeStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	switch st {
	case "", model.TradePending, model.TradeAccepted, model.TradeRejected, model.TradeCancelled:
	default:
		return model.TradeFilter{}, fmt.Errorf("status %q: %w", in.Status, errs.ErrInvalidArgument)
	}
	return model.TradeFilter{Incoming: in.Incoming, Status: st}, nil
}

func FromAPIStudent(in *api.RegisterStudentRequest) service.NewStudent {
	return service.NewStudent{Name: in.Name, Email: in.Email, Registration: in.Registration, Class: in.Class}
}

func FromAPIStaff(in *api.CreateStaffRequest) (service.NewStaff, error) {
	r, err := model.ParseRole(strings.ToLower(strings.TrimSpace(in.Role)))
	if err != nil {
		return service.NewStaff{}, fmt.Errorf("%v: %w", err, errs.ErrInvalidArgument)
	}
	return service.NewStaff{Name: in.Name, Email: in.Email, Role: r}, nil
}
