// Package service contains the economy's application services: pack purchases, trades, rewards,
// administration and read-side queries. Every mutating operation runs as one ledger transaction.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

var tracer = otel.Tracer("ifcoins/service")

// Services bundles the application services served by the transports.
type Services struct {
	Purchases PurchaseService
	Trades    TradeService
	Rewards   RewardService
	Admin     AdminService
	Queries   QueryService
}

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.Code(err))
	}
	span.End()
}

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// actor loads the caller's stored account and checks its role. A principal without an account is
// unauthorized.
func actor(ctx context.Context, tx repository.Tx, p auth.Principal, allowed ...model.Role) (model.User, error) {
	if p.ID == "" {
		return model.User{}, errs.ErrUnauthorized
	}
	u, err := tx.User(ctx, p.ID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.User{}, fmt.Errorf("principal %s: %w", p.ID, errs.ErrUnauthorized)
	}
	if err != nil {
		return model.User{}, err
	}
	for _, r := range allowed {
		if u.Role == r {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("role %s: %w", u.Role, errs.ErrForbidden)
}
