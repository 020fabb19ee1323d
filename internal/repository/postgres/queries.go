package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
)

// collect scans every row with scan.
func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UserByID selects a user by ID.
func (db *DB) UserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

// Cards returns all card definitions, rarest last.
func (db *DB) Cards(ctx context.Context) ([]model.Card, error) {
	const q = `
SELECT ` + cardCols + `
FROM cards
ORDER BY array_position(ARRAY['common','rare','legendary','mythic'], rarity), name`
	rows, err := db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCard)
}

// Packs returns all packs, cheapest first.
func (db *DB) Packs(ctx context.Context) ([]model.Pack, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+packCols+` FROM packs ORDER BY price, name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPack)
}

// Events returns all events by start time.
func (db *DB) Events(ctx context.Context) ([]model.Event, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+eventCols+` FROM events ORDER BY starts_at, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEvent)
}

// Collection returns the cards a user owns, rarest first.
func (db *DB) Collection(ctx context.Context, userID string) ([]model.OwnedCard, error) {
	const q = `
SELECT c.id, c.name, c.description, c.rarity, c.available, COALESCE(c.copies_available,-1), COALESCE(c.price,-1),
       COALESCE(c.event_id,''), c.ver, i.quantity
FROM inventory i JOIN cards c ON c.id = i.card_id
WHERE i.user_id=$1 AND i.quantity > 0
ORDER BY array_position(ARRAY['common','rare','legendary','mythic'], c.rarity) DESC, c.name`
	rows, err := db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (model.OwnedCard, error) {
		var (
			oc            model.OwnedCard
			rarity        string
			copies, price int64
		)
		err := s.Scan(&oc.Card.ID, &oc.Card.Name, &oc.Card.Description, &rarity, &oc.Card.Available,
			&copies, &price, &oc.Card.EventID, &oc.Card.Ver, &oc.Quantity)
		oc.Card.Rarity = model.Rarity(rarity)
		if copies >= 0 {
			oc.Card.CopiesAvailable = &copies
		}
		if price >= 0 {
			oc.Card.Price = &price
		}
		return oc, err
	})
}

// Trades lists trades authored by or addressed to the user, newest first.
func (db *DB) Trades(ctx context.Context, userID string, f model.TradeFilter) ([]model.Trade, error) {
	col := "from_user_id"
	if f.Incoming {
		col = "to_user_id"
	}
	q := `SELECT ` + tradeCols + ` FROM trades WHERE ` + col + `=$1 AND ($2='' OR status=$2) ORDER BY created_at DESC, id`
	rows, err := db.Pool.Query(ctx, q, userID, string(f.Status))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTrade)
}

// Rewards lists a student's reward records, newest first.
func (db *DB) Rewards(ctx context.Context, studentID string) ([]model.Reward, error) {
	const q = `
SELECT id, teacher_id, student_id, coins, reason, created_at
FROM rewards WHERE student_id=$1
ORDER BY created_at DESC, id`
	rows, err := db.Pool.Query(ctx, q, studentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(s scanner) (model.Reward, error) {
		var r model.Reward
		err := s.Scan(&r.ID, &r.TeacherID, &r.StudentID, &r.Coins, &r.Reason, &r.CreatedAt)
		return r, err
	})
}

// Leaderboard ranks students by coins or collection size.
func (db *DB) Leaderboard(ctx context.Context, kind model.LeaderboardKind, limit int) ([]model.LeaderboardEntry, error) {
	var col string
	switch kind {
	case model.LeaderboardCoins:
		col = "coins"
	case model.LeaderboardCollection:
		col = "collection_size"
	default:
		return nil, fmt.Errorf("leaderboard %q: %w", kind, errs.ErrInvalidArgument)
	}
	q := `SELECT id, name, class, ` + col + ` FROM users WHERE role='student' ORDER BY ` + col + ` DESC, name LIMIT $1`
	rows, err := db.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	out, err := collect(rows, func(s scanner) (model.LeaderboardEntry, error) {
		var e model.LeaderboardEntry
		err := s.Scan(&e.UserID, &e.Name, &e.Class, &e.Score)
		return e, err
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, err
}
