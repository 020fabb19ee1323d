package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// NewStudent describes a student account to register.
type NewStudent struct {
	Name         string
	Email        string
	Registration string
	Class        string
}

// NewStaff describes a teacher or admin account.
type NewStaff struct {
	Name  string
	Email string
	Role  model.Role
}

// Invalidator drops cached catalog state after card or event writes.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// AdminService manages accounts and reference data.
type AdminService interface {
	// RegisterStudent creates a student account; teachers and admins may call it.
	RegisterStudent(ctx context.Context, p auth.Principal, in NewStudent) (model.User, error)
	// CreateStaff creates a teacher or admin account; admins only.
	CreateStaff(ctx context.Context, p auth.Principal, in NewStaff) (model.User, error)
	// UpsertCard creates a card, or replaces the definition with the same id; admins only.
	UpsertCard(ctx context.Context, p auth.Principal, c model.Card) (model.Card, error)
	// CreatePack adds a purchasable pack; admins only.
	CreatePack(ctx context.Context, p auth.Principal, pk model.Pack) (model.Pack, error)
	// CreateEvent adds a time-boxed event; admins only.
	CreateEvent(ctx context.Context, p auth.Principal, e model.Event) (model.Event, error)
	// EnsureAdmin creates the bootstrap admin account if it does not exist.
	EnsureAdmin(ctx context.Context, id, name, email string) error
}

type AdminServiceImpl struct {
	ledger  repository.Ledger
	catalog Invalidator
	policy  repository.RetryPolicy
	now     func() time.Time
	log     *zap.Logger
}

// NewAdminService constructs AdminService. catalog may be nil.
func NewAdminService(ledger repository.Ledger, catalog Invalidator, policy repository.RetryPolicy, log *zap.Logger) *AdminServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminServiceImpl{ledger: ledger, catalog: catalog, policy: policy, now: time.Now, log: log}
}

func (s *AdminServiceImpl) invalidate(ctx context.Context) {
	if s.catalog != nil {
		s.catalog.Invalidate(ctx)
	}
}

// RegisterStudent validates and stores a new student with a zero balance.
func (s *AdminServiceImpl) RegisterStudent(ctx context.Context, p auth.Principal, in NewStudent) (model.User, error) {
	u := model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Role:         model.RoleStudent,
		Registration: strings.TrimSpace(in.Registration),
		Class:        strings.ToUpper(strings.TrimSpace(in.Class)),
	}
	switch {
	case u.Name == "":
		return model.User{}, fmt.Errorf("empty name: %w", errs.ErrInvalidArgument)
	case !registrationRe.MatchString(u.Registration):
		return model.User{}, fmt.Errorf("registration must be digits: %w", errs.ErrInvalidArgument)
	case u.Class == "":
		return model.User{}, fmt.Errorf("empty class: %w", errs.ErrInvalidArgument)
	}
	return s.createUser(ctx, p, u, model.RoleTeacher, model.RoleAdmin)
}

// CreateStaff stores a teacher or admin account.
func (s *AdminServiceImpl) CreateStaff(ctx context.Context, p auth.Principal, in NewStaff) (model.User, error) {
	if !in.Role.IsStaff() {
		return model.User{}, fmt.Errorf("role %q is not staff: %w", in.Role, errs.ErrInvalidArgument)
	}
	u := model.User{Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email), Role: in.Role}
	if u.Name == "" {
		return model.User{}, fmt.Errorf("empty name: %w", errs.ErrInvalidArgument)
	}
	return s.createUser(ctx, p, u, model.RoleAdmin)
}

func (s *AdminServiceImpl) createUser(ctx context.Context, p auth.Principal, u model.User, allowed ...model.Role) (model.User, error) {
	id, err := newID()
	if err != nil {
		return model.User{}, err
	}
	u.ID = id
	u.CreatedAt = s.now().UTC()
	err = repository.Run(ctx, s.ledger, s.policy, func(ctx context.Context, tx repository.Tx) error {
		if _, err := actor(ctx, tx, p, allowed...); err != nil {
			return err
		}
		if u.Registration != "" {
			dup, err := tx.StudentsByRegistration(ctx, u.Registration)
			if err != nil {
				return err
			}
			if len(dup) > 0 {
				return fmt.Errorf("registration %s: %w", u.Registration, errs.ErrAlreadyExists)
			}
		}
		tx.PutUser(u)
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	u.Ver = 1
	s.log.Info("account created", zap.String("user", u.ID), zap.String("role", string(u.Role)), zap.String("by", p.ID))
	return u, nil
}

// EnsureAdmin is idempotent.
func (s *AdminServiceImpl) EnsureAdmin(ctx context.Context, id, name, email string) error {
	if id == "" {
		return fmt.Errorf("empty admin id: %w", errs.ErrInvalidArgument)
	}
	created := false
	err := repository.Run(ctx, s.ledger, s.policy, func(ctx context.Context, tx repository.Tx) error {
		created = false
		_, err := tx.User(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		tx.PutUser(model.User{ID: id, Name: name, Email: email, Role: model.RoleAdmin, CreatedAt: s.now().UTC()})
		created = true
		return nil
	})
	if err == nil && created {
		s.log.Info("bootstrap admin created", zap.String("user", id))
	}
	return err
}

// UpsertCard keeps the stored version when replacing so concurrent edits conflict.
func (s *AdminServiceImpl) UpsertCard(ctx context.Context, p auth.Principal, c model.Card) (model.Card, error) {
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.Name == "":
		return model.Card{}, fmt.Errorf("empty card name: %w", errs.ErrInvalidArgument)
	case c.Rarity.Rank() < 0:
		return model.Card{}, fmt.Errorf("rarity %q: %w", c.Rarity, errs.ErrInvalidArgument)
	case c.CopiesAvailable != nil && *c.CopiesAvailable < 0:
		return model.Card{}, fmt.Errorf("negative stock: %w", errs.ErrInvalidArgument)
	case c.Price != nil && *c.Price < 0:
		return model.Card{}, fmt.Errorf("negative price: %w", errs.ErrInvalidArgument)
	}
	if c.ID == "" {
		id, err := newID()
		if err != nil {
			return model.Card{}, err
		}
		c.ID = id
	}

	err := repository.Run(ctx, s.ledger, s.policy, func(ctx context.Context, tx repository.Tx) error {
		if _, err := actor(ctx, tx, p, model.RoleAdmin); err != nil {
			return err
		}
		if c.EventID != "" {
			if _, err := tx.Event(ctx, c.EventID); err != nil {
				return err
			}
		}
		cur, err := tx.Card(ctx, c.ID)
		switch {
		case err == nil:
			c.Ver = cur.Ver
		case errors.Is(err, errs.ErrNotFound):
			c.Ver = 0
		default:
			return err
		}
		tx.PutCard(c)
		return nil
	})
	if err != nil {
		return model.Card{}, err
	}
	c.Ver++
	s.invalidate(ctx)
	s.log.Info("card saved", zap.String("card", c.ID), zap.String("rarity", string(c.Rarity)))
	return c, nil
}

// CreatePack stores a new pack.
func (s *AdminServiceImpl) CreatePack(ctx context.Context, p auth.Principal, pk model.Pack) (model.Pack, error) {
	pk.Name = strings.TrimSpace(pk.Name)
	if pk.Name == "" {
		return model.Pack{}, fmt.Errorf("empty pack name: %w", errs.ErrInvalidArgument)
	}
	if pk.Price < 0 {
		return model.Pack{}, fmt.Errorf("negative price: %w", errs.ErrInvalidArgument)
	}
	id, err := newID()
	if err != nil {
		return model.Pack{}, err
	}
	pk.ID, pk.Ver = id, 0
	err = repository.Run(ctx, s.ledger, s.policy, func(ctx context.Context, tx repository.Tx) error {
		if _, err := actor(ctx, tx, p, model.RoleAdmin); err != nil {
			return err
		}
		tx.PutPack(pk)
		return nil
	})
	if err != nil {
		return model.Pack{}, err
	}
	pk.Ver = 1
	s.log.Info("pack created", zap.String("pack", pk.ID), zap.Int64("price", pk.Price))
	return pk, nil
}

// CreateEvent stores a new event. A zero multiplier defaults to 1.
func (s *AdminServiceImpl) CreateEvent(ctx context.Context, p auth.Principal, e model.Event) (model.Event, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.BonusMultiplier == 0 {
		e.BonusMultiplier = 1
	}
	switch {
	case e.Name == "":
		return model.Event{}, fmt.Errorf("empty event name: %w", errs.ErrInvalidArgument)
	case !e.EndsAt.After(e.StartsAt):
		return model.Event{}, fmt.Errorf("event must end after it starts: %w", errs.ErrInvalidArgument)
	case e.BonusMultiplier < 1:
		return model.Event{}, fmt.Errorf("multiplier %v < 1: %w", e.BonusMultiplier, errs.ErrInvalidArgument)
	}
	id, err := newID()
	if err != nil {
		return model.Event{}, err
	}
	e.ID, e.Ver = id, 0
	e.StartsAt, e.EndsAt = e.StartsAt.UTC(), e.EndsAt.UTC()
	err = repository.Run(ctx, s.ledger, s.policy, func(ctx context.Context, tx repository.Tx) error {
		if _, err := actor(ctx, tx, p, model.RoleAdmin); err != nil {
			return err
		}
		tx.PutEvent(e)
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	e.Ver = 1
	s.invalidate(ctx)
	s.log.Info("event created", zap.String("event", e.ID), zap.Time("starts", e.StartsAt), zap.Time("ends", e.EndsAt))
	return e, nil
}
