package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// Reward bounds, inclusive.
const (
	MinRewardCoins = 1
	MaxRewardCoins = 10
)

var registrationRe = regexp.MustCompile(`^\d+$`)

// Target is a parsed reward identifier: a registration number or a class name.
type Target struct {
	Registration string
	Class        string
}

// ParseTarget interprets an identifier: all digits is a registration number, anything else a
// class name (trimmed, upper-cased).
func ParseTarget(identifier string) (Target, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return Target{}, fmt.Errorf("empty identifier: %w", errs.ErrInvalidArgument)
	}
	if registrationRe.MatchString(id) {
		return Target{Registration: id}, nil
	}
	return Target{Class: strings.ToUpper(id)}, nil
}

// RewardService grants coins to students and exposes the audit trail.
type RewardService interface {
	// IssueReward credits every matched student and records one reward each, all or nothing.
	IssueReward(ctx context.Context, p auth.Principal, identifier string, coins int64, reason string) (model.RewardResult, error)
	// Rewards lists a student's reward history, newest first.
	Rewards(ctx context.Context, p auth.Principal, studentID string) ([]model.Reward, error)
}

type RewardServiceImpl struct {
	store  repository.Store
	policy repository.RetryPolicy
	now    func() time.Time
	log    *zap.Logger
}

// NewRewardService constructs RewardService.
func NewRewardService(store repository.Store, policy repository.RetryPolicy, log *zap.Logger) *RewardServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &RewardServiceImpl{store: store, policy: policy, now: time.Now, log: log}
}

// IssueReward runs as a single transaction across all matched students.
func (s *RewardServiceImpl) IssueReward(
	ctx context.Context, p auth.Principal, identifier string, coins int64, reason string,
) (res model.RewardResult, err error) {
	ctx, span := tracer.Start(ctx, "RewardService.IssueReward")
	span.SetAttributes(attribute.String("user.id", p.ID), attribute.String("target", identifier), attribute.Int64("coins", coins))
	defer func() { finish(span, err) }()

	if coins < MinRewardCoins || coins > MaxRewardCoins {
		return model.RewardResult{}, fmt.Errorf("coins must be %d..%d, got %d: %w", MinRewardCoins, MaxRewardCoins, coins, errs.ErrInvalidArgument)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.RewardResult{}, fmt.Errorf("empty reason: %w", errs.ErrInvalidArgument)
	}
	target, err := ParseTarget(identifier)
	if err != nil {
		return model.RewardResult{}, err
	}

	err = repository.Run(ctx, s.store, s.policy, func(ctx context.Context, tx repository.Tx) error {
		issuer, err := actor(ctx, tx, p, model.RoleTeacher, model.RoleAdmin)
		if err != nil {
			return err
		}
		var students []model.User
		if target.Registration != "" {
			students, err = tx.StudentsByRegistration(ctx, target.Registration)
		} else {
			students, err = tx.StudentsByClass(ctx, target.Class)
		}
		if err != nil {
			return err
		}
		if len(students) == 0 {
			return fmt.Errorf("identifier %q: %w", identifier, errs.ErrNoMatchingStudents)
		}

		now := s.now().UTC()
		out := model.RewardResult{Rewards: make([]model.Reward, 0, len(students))}
		for _, st := range students {
			id, err := newID()
			if err != nil {
				return err
			}
			st.Coins += coins
			tx.PutUser(st)
			r := model.Reward{ID: id, TeacherID: issuer.ID, StudentID: st.ID, Coins: coins, Reason: reason, CreatedAt: now}
			tx.AppendReward(r)
			out.Rewards = append(out.Rewards, r)
		}
		out.StudentsRewarded = len(students)
		res = out
		return nil
	})
	if err != nil {
		return model.RewardResult{}, err
	}
	s.log.Info("reward issued",
		zap.String("teacher", p.ID),
		zap.String("target", identifier),
		zap.Int64("coins", coins),
		zap.Int("students", res.StudentsRewarded),
	)
	return res, nil
}

// Rewards returns a student's history to the student or to staff.
func (s *RewardServiceImpl) Rewards(ctx context.Context, p auth.Principal, studentID string) ([]model.Reward, error) {
	if p.ID == "" {
		return nil, errs.ErrUnauthorized
	}
	if studentID != p.ID {
		u, err := s.store.UserByID(ctx, p.ID)
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("principal %s: %w", p.ID, errs.ErrUnauthorized)
		}
		if err != nil {
			return nil, err
		}
		if !u.Role.IsStaff() {
			return nil, errs.ErrForbidden
		}
	}
	return s.store.Rewards(ctx, studentID)
}
