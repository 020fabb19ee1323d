package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/draw"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// CardSource supplies the drawable catalog.
type CardSource interface {
	ForDraw(ctx context.Context) ([]model.Card, error)
	Invalidate(ctx context.Context)
}

// PurchaseService exchanges coins for randomly drawn cards.
type PurchaseService interface {
	// PurchasePack debits the pack price from the caller and credits the drawn cards.
	PurchasePack(ctx context.Context, p auth.Principal, packID string) (model.PurchaseResult, error)
}

type PurchaseServiceImpl struct {
	ledger   repository.Ledger
	catalog  CardSource
	engine   *draw.Engine
	policy   repository.RetryPolicy
	packSize int
	log      *zap.Logger
	now      func() time.Time
}

// NewPurchaseService constructs PurchaseService. A non-positive packSize means draw.DefaultPackSize.
func NewPurchaseService(
	ledger repository.Ledger, catalog CardSource, engine *draw.Engine,
	policy repository.RetryPolicy, packSize int, log *zap.Logger,
) *PurchaseServiceImpl {
	if packSize <= 0 {
		packSize = draw.DefaultPackSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PurchaseServiceImpl{
		ledger: ledger, catalog: catalog, engine: engine,
		policy: policy, packSize: packSize, log: log,
		now: time.Now,
	}
}

func retryablePurchase(err error) bool {
	return errors.Is(err, errs.ErrConflict) || errors.Is(err, errs.ErrOutOfStock)
}

// PurchasePack draws a fresh set of cards on every attempt. Conflicts and exhausted stock are
// retried within the policy bound; the last error is returned once attempts run out.
func (s *PurchaseServiceImpl) PurchasePack(ctx context.Context, p auth.Principal, packID string) (res model.PurchaseResult, err error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.PurchasePack")
	span.SetAttributes(attribute.String("user.id", p.ID), attribute.String("pack.id", packID))
	defer func() { finish(span, err) }()

	if p.ID == "" {
		return model.PurchaseResult{}, errs.ErrUnauthorized
	}
	if packID == "" {
		return model.PurchaseResult{}, fmt.Errorf("empty pack id: %w", errs.ErrInvalidArgument)
	}

	attempt := 0
	err = repository.Retry(ctx, s.policy, retryablePurchase, func(ctx context.Context) error {
		attempt++
		cards, err := s.catalog.ForDraw(ctx)
		if err != nil {
			return err
		}
		drawn, err := s.engine.Draw(cards, s.packSize)
		if err != nil {
			return err
		}
		var out model.PurchaseResult
		err = s.ledger.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var aerr error
			out, aerr = s.apply(ctx, tx, p.ID, packID, drawn)
			return aerr
		})
		if err == nil {
			res = out
		}
		if errors.Is(err, errs.ErrOutOfStock) {
			s.catalog.Invalidate(ctx)
		}
		if err != nil && retryablePurchase(err) {
			s.log.Debug("purchase retry", zap.String("user", p.ID), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return model.PurchaseResult{}, err
	}

	s.log.Info("pack purchased",
		zap.String("user", p.ID),
		zap.String("pack", packID),
		zap.Strings("newly_owned", res.NewlyOwned),
		zap.Int64("balance", res.Balance),
	)
	return res, nil
}

// apply is the transactional body: check funds, debit, mint each drawn card.
func (s *PurchaseServiceImpl) apply(
	ctx context.Context, tx repository.Tx, buyerID, packID string, drawn []model.Card,
) (model.PurchaseResult, error) {
	pack, err := tx.Pack(ctx, packID)
	if err != nil {
		return model.PurchaseResult{}, err
	}
	if !pack.Available {
		return model.PurchaseResult{}, fmt.Errorf("pack %s is not on sale: %w", packID, errs.ErrNotFound)
	}
	buyer, err := tx.User(ctx, buyerID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.PurchaseResult{}, fmt.Errorf("buyer %s: %w", buyerID, errs.ErrUnauthorized)
	}
	if err != nil {
		return model.PurchaseResult{}, err
	}
	if buyer.Coins < pack.Price {
		return model.PurchaseResult{}, fmt.Errorf("balance %d < price %d: %w", buyer.Coins, pack.Price, errs.ErrInsufficientFunds)
	}
	buyer.Coins -= pack.Price

	now := s.now()
	res := model.PurchaseResult{PackID: packID, Cards: make([]model.Card, 0, len(drawn))}
	seen := make(map[string]bool, len(drawn))
	for _, d := range drawn {
		card, err := tx.Card(ctx, d.ID)
		if err != nil {
			return model.PurchaseResult{}, err
		}
		if !card.Available || !card.InStock() {
			return model.PurchaseResult{}, fmt.Errorf("card %s: %w", card.ID, errs.ErrOutOfStock)
		}
		if card.EventID != "" {
			ev, err := tx.Event(ctx, card.EventID)
			if err != nil && !errors.Is(err, errs.ErrNotFound) {
				return model.PurchaseResult{}, err
			}
			// the snapshot may predate the end of the event
			if err != nil || !ev.ActiveAt(now) {
				return model.PurchaseResult{}, fmt.Errorf("card %s: event %s not running: %w", card.ID, card.EventID, errs.ErrOutOfStock)
			}
		}
		if !card.Unlimited() {
			left := *card.CopiesAvailable - 1
			card.CopiesAvailable = &left
			tx.PutCard(card)
		}

		inv, err := tx.Inventory(ctx, buyerID, card.ID)
		if err != nil {
			return model.PurchaseResult{}, err
		}
		if !seen[card.ID] {
			seen[card.ID] = true
			if inv.Quantity == 0 {
				res.NewlyOwned = append(res.NewlyOwned, card.ID)
			} else {
				res.Restocked = append(res.Restocked, card.ID)
			}
		}
		inv.Quantity++
		tx.PutInventory(inv)
		buyer.CollectionSize++
		res.Cards = append(res.Cards, card)
	}

	tx.PutUser(buyer)
	res.Balance = buyer.Coins
	return res, nil
}
