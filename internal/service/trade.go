package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// StaleReason is recorded on proposals closed because their terms could no longer be met.
const StaleReason = "stale"

// Proposal is the caller-supplied part of a trade.
type Proposal struct {
	ToUserID       string
	OfferedCards   model.CardSet
	RequestedCards model.CardSet
	OfferedCoins   int64
	RequestedCoins int64
}

// TradeService drives the trade lifecycle: pending, then exactly one of accepted, rejected or
// cancelled.
type TradeService interface {
	// Propose creates a pending trade authored by the caller.
	Propose(ctx context.Context, p auth.Principal, in Proposal) (model.Trade, error)
	// Respond accepts or rejects a trade addressed to the caller.
	Respond(ctx context.Context, p auth.Principal, tradeID string, d model.Decision) (model.Trade, error)
	// Cancel withdraws a pending trade authored by the caller.
	Cancel(ctx context.Context, p auth.Principal, tradeID string) (model.Trade, error)
	// Get returns a trade visible to the caller.
	Get(ctx context.Context, p auth.Principal, tradeID string) (model.Trade, error)
	// List returns the caller's incoming or outgoing trades.
	List(ctx context.Context, p auth.Principal, f model.TradeFilter) ([]model.Trade, error)
}

type TradeServiceImpl struct {
	store  repository.Store
	policy repository.RetryPolicy
	now    func() time.Time
	log    *zap.Logger
}

// NewTradeService constructs TradeService.
func NewTradeService(store repository.Store, policy repository.RetryPolicy, log *zap.Logger) *TradeServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &TradeServiceImpl{store: store, policy: policy, now: time.Now, log: log}
}

func validSet(s model.CardSet) bool {
	for id, q := range s {
		if id == "" || q <= 0 {
			return false
		}
	}
	return true
}

// Propose validates the proposal against the author's current holdings and stores it as pending.
func (s *TradeServiceImpl) Propose(ctx context.Context, p auth.Principal, in Proposal) (tr model.Trade, err error) {
	ctx, span := tracer.Start(ctx, "TradeService.Propose")
	span.SetAttributes(attribute.String("user.id", p.ID), attribute.String("trade.to", in.ToUserID))
	defer func() { finish(span, err) }()

	switch {
	case p.ID == "":
		return model.Trade{}, errs.ErrUnauthorized
	case in.ToUserID == "":
		return model.Trade{}, fmt.Errorf("missing counterparty: %w", errs.ErrInvalidProposal)
	case in.ToUserID == p.ID:
		return model.Trade{}, errs.ErrSelfTrade
	case in.OfferedCoins < 0 || in.RequestedCoins < 0:
		return model.Trade{}, fmt.Errorf("negative coins: %w", errs.ErrInvalidProposal)
	case !validSet(in.OfferedCards) || !validSet(in.RequestedCards):
		return model.Trade{}, fmt.Errorf("card quantities must be positive: %w", errs.ErrInvalidProposal)
	case len(in.OfferedCards) == 0 && in.OfferedCoins == 0:
		return model.Trade{}, fmt.Errorf("nothing offered: %w", errs.ErrInvalidProposal)
	}

	id, err := newID()
	if err != nil {
		return model.Trade{}, err
	}
	err = repository.Run(ctx, s.store, s.policy, func(ctx context.Context, tx repository.Tx) error {
		from, err := actor(ctx, tx, p, model.RoleStudent)
		if err != nil {
			return err
		}
		to, err := tx.User(ctx, in.ToUserID)
		if err != nil {
			return err
		}
		if to.Role != model.RoleStudent {
			return fmt.Errorf("counterparty %s is not a student: %w", to.ID, errs.ErrInvalidProposal)
		}
		for _, set := range []model.CardSet{in.OfferedCards, in.RequestedCards} {
			for _, cardID := range set.IDs() {
				if _, err := tx.Card(ctx, cardID); err != nil {
					if errors.Is(err, errs.ErrNotFound) {
						return fmt.Errorf("unknown card %s: %w", cardID, errs.ErrInvalidProposal)
					}
					return err
				}
			}
		}
		if err := holds(ctx, tx, from, in.OfferedCards, in.OfferedCoins); err != nil {
			if errors.Is(err, errShort) {
				return fmt.Errorf("%w: %v", errs.ErrInsufficientHoldings, err)
			}
			return err
		}

		tr = model.Trade{
			ID:             id,
			FromUserID:     from.ID,
			ToUserID:       to.ID,
			OfferedCards:   in.OfferedCards,
			RequestedCards: in.RequestedCards,
			OfferedCoins:   in.OfferedCoins,
			RequestedCoins: in.RequestedCoins,
			Status:         model.TradePending,
			CreatedAt:      s.now().UTC(),
		}
		tx.PutTrade(tr)
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}
	tr.Ver = 1
	s.log.Info("trade proposed", zap.String("trade", tr.ID), zap.String("from", tr.FromUserID), zap.String("to", tr.ToUserID))
	return tr, nil
}

// errShort reports which holding fell short; callers wrap it into a sentinel.
var errShort = errors.New("short")

// holds checks that u owns at least the given cards and coins.
func holds(ctx context.Context, tx repository.Tx, u model.User, cards model.CardSet, coins int64) error {
	if u.Coins < coins {
		return fmt.Errorf("%s has %d coins, needs %d: %w", u.ID, u.Coins, coins, errShort)
	}
	for _, cardID := range cards.IDs() {
		inv, err := tx.Inventory(ctx, u.ID, cardID)
		if err != nil {
			return err
		}
		if inv.Quantity < cards[cardID] {
			return fmt.Errorf("%s has %d of %s, needs %d: %w", u.ID, inv.Quantity, cardID, cards[cardID], errShort)
		}
	}
	return nil
}

// move transfers cards and coins between two users inside tx. Callers check holdings first.
func move(ctx context.Context, tx repository.Tx, from, to *model.User, cards model.CardSet, coins int64) error {
	from.Coins -= coins
	to.Coins += coins
	for _, cardID := range cards.IDs() {
		q := cards[cardID]
		src, err := tx.Inventory(ctx, from.ID, cardID)
		if err != nil {
			return err
		}
		dst, err := tx.Inventory(ctx, to.ID, cardID)
		if err != nil {
			return err
		}
		src.Quantity -= q
		dst.Quantity += q
		tx.PutInventory(src)
		tx.PutInventory(dst)
		from.CollectionSize -= q
		to.CollectionSize += q
	}
	return nil
}

// Respond settles a pending trade addressed to the caller. Accepting re-validates both sides'
// holdings in the same transaction as the transfer; if either side falls short the trade is
// closed as stale in a separate transaction and ErrStaleProposal is returned.
func (s *TradeServiceImpl) Respond(ctx context.Context, p auth.Principal, tradeID string, d model.Decision) (tr model.Trade, err error) {
	ctx, span := tracer.Start(ctx, "TradeService.Respond")
	span.SetAttributes(attribute.String("user.id", p.ID), attribute.String("trade.id", tradeID), attribute.String("decision", string(d)))
	defer func() { finish(span, err) }()

	if d != model.DecisionAccept && d != model.DecisionReject {
		return model.Trade{}, fmt.Errorf("decision %q: %w", d, errs.ErrInvalidArgument)
	}
	if p.ID == "" {
		return model.Trade{}, errs.ErrUnauthorized
	}

	err = repository.Run(ctx, s.store, s.policy, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Trade(ctx, tradeID)
		if err != nil {
			return err
		}
		if cur.ToUserID != p.ID {
			return fmt.Errorf("only the counterparty may respond: %w", errs.ErrForbidden)
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("trade %s is %s: %w", cur.ID, cur.Status, errs.ErrAlreadySettled)
		}

		if d == model.DecisionAccept {
			if err := s.settle(ctx, tx, cur); err != nil {
				return err
			}
			cur.Status = model.TradeAccepted
		} else {
			cur.Status = model.TradeRejected
		}
		now := s.now().UTC()
		cur.SettledAt = &now
		tx.PutTrade(cur)
		tr = cur
		return nil
	})
	if errors.Is(err, errs.ErrStaleProposal) {
		s.closeStale(ctx, tradeID)
		return model.Trade{}, err
	}
	if err != nil {
		return model.Trade{}, err
	}
	tr.Ver++
	s.log.Info("trade settled", zap.String("trade", tr.ID), zap.String("status", string(tr.Status)))
	return tr, nil
}

// settle re-validates and swaps both sides of an accepted trade.
func (s *TradeServiceImpl) settle(ctx context.Context, tx repository.Tx, tr model.Trade) error {
	from, err := tx.User(ctx, tr.FromUserID)
	if err != nil {
		return err
	}
	to, err := tx.User(ctx, tr.ToUserID)
	if err != nil {
		return err
	}
	if err := holds(ctx, tx, from, tr.OfferedCards, tr.OfferedCoins); err != nil {
		if errors.Is(err, errShort) {
			return fmt.Errorf("%w: %v", errs.ErrStaleProposal, err)
		}
		return err
	}
	if err := holds(ctx, tx, to, tr.RequestedCards, tr.RequestedCoins); err != nil {
		if errors.Is(err, errShort) {
			return fmt.Errorf("%w: %v", errs.ErrStaleProposal, err)
		}
		return err
	}
	if err := move(ctx, tx, &from, &to, tr.OfferedCards, tr.OfferedCoins); err != nil {
		return err
	}
	if err := move(ctx, tx, &to, &from, tr.RequestedCards, tr.RequestedCoins); err != nil {
		return err
	}
	tx.PutUser(from)
	tx.PutUser(to)
	return nil
}

// closeStale cancels a trade whose acceptance failed validation. Failures are logged only; the
// caller already reports ErrStaleProposal.
func (s *TradeServiceImpl) closeStale(ctx context.Context, tradeID string) {
	err := repository.Run(ctx, s.store, s.policy, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Trade(ctx, tradeID)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return nil
		}
		now := s.now().UTC()
		cur.Status = model.TradeCancelled
		cur.Reason = StaleReason
		cur.SettledAt = &now
		tx.PutTrade(cur)
		return nil
	})
	if err != nil {
		s.log.Warn("close stale trade", zap.String("trade", tradeID), zap.Error(err))
		return
	}
	s.log.Info("trade closed as stale", zap.String("trade", tradeID))
}

// Cancel withdraws a pending trade. Only its author may cancel.
func (s *TradeServiceImpl) Cancel(ctx context.Context, p auth.Principal, tradeID string) (tr model.Trade, err error) {
	ctx, span := tracer.Start(ctx, "TradeService.Cancel")
	span.SetAttributes(attribute.String("user.id", p.ID), attribute.String("trade.id", tradeID))
	defer func() { finish(span, err) }()

	if p.ID == "" {
		return model.Trade{}, errs.ErrUnauthorized
	}
	err = repository.Run(ctx, s.store, s.policy, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Trade(ctx, tradeID)
		if err != nil {
			return err
		}
		if cur.FromUserID != p.ID {
			return fmt.Errorf("only the author may cancel: %w", errs.ErrForbidden)
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("trade %s is %s: %w", cur.ID, cur.Status, errs.ErrAlreadySettled)
		}
		now := s.now().UTC()
		cur.Status = model.TradeCancelled
		cur.SettledAt = &now
		tx.PutTrade(cur)
		tr = cur
		return nil
	})
	if err != nil {
		return model.Trade{}, err
	}
	tr.Ver++
	s.log.Info("trade cancelled", zap.String("trade", tr.ID))
	return tr, nil
}

// Get returns a trade to one of its parties or to an admin.
func (s *TradeServiceImpl) Get(ctx context.Context, p auth.Principal, tradeID string) (model.Trade, error) {
	if p.ID == "" {
		return model.Trade{}, errs.ErrUnauthorized
	}
	var tr model.Trade
	err := s.store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.Trade(ctx, tradeID)
		if err != nil {
			return err
		}
		if cur.FromUserID != p.ID && cur.ToUserID != p.ID {
			if _, err := actor(ctx, tx, p, model.RoleAdmin); err != nil {
				return err
			}
		}
		tr = cur
		return nil
	})
	return tr, err
}

// List returns the caller's trades, newest first.
func (s *TradeServiceImpl) List(ctx context.Context, p auth.Principal, f model.TradeFilter) ([]model.Trade, error) {
	if p.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	return s.store.Trades(ctx, p.ID, f)
}
