package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

// Tables addressed by versioned documents.
const (
	tblUsers     = "users"
	tblCards     = "cards"
	tblPacks     = "packs"
	tblEvents    = "events"
	tblTrades    = "trades"
	tblInventory = "inventory"
)

type docKey struct {
	table string
	id    string // inventory: user_id/card_id
}

const (
	userCols  = `id, name, email, role, COALESCE(registration,''), class, coins, collection_size, ver, created_at`
	cardCols  = `id, name, description, rarity, available, COALESCE(copies_available,-1), COALESCE(price,-1), COALESCE(event_id,''), ver`
	packCols  = `id, name, description, price, available, ver`
	eventCols = `id, name, starts_at, ends_at, bonus_multiplier, ver`
	tradeCols = `id, from_user_id, to_user_id, offered_cards, requested_cards, offered_coins, requested_coins, status, reason, created_at, COALESCE(settled_at, created_at), ver`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Registration, &u.Class, &u.Coins, &u.CollectionSize, &u.Ver, &u.CreatedAt)
	u.Role = model.Role(role)
	return u, err
}

func scanCard(s scanner) (model.Card, error) {
	var (
		c             model.Card
		rarity        string
		copies, price int64
	)
	err := s.Scan(&c.ID, &c.Name, &c.Description, &rarity, &c.Available, &copies, &price, &c.EventID, &c.Ver)
	c.Rarity = model.Rarity(rarity)
	if copies >= 0 {
		c.CopiesAvailable = &copies
	}
	if price >= 0 {
		c.Price = &price
	}
	return c, err
}

func scanPack(s scanner) (model.Pack, error) {
	var p model.Pack
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Available, &p.Ver)
	return p, err
}

func scanEvent(s scanner) (model.Event, error) {
	var e model.Event
	err := s.Scan(&e.ID, &e.Name, &e.StartsAt, &e.EndsAt, &e.BonusMultiplier, &e.Ver)
	return e, err
}

func scanTrade(s scanner) (model.Trade, error) {
	var (
		t                  model.Trade
		offered, requested []byte
		status             string
		settled            time.Time
	)
	err := s.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &offered, &requested, &t.OfferedCoins, &t.RequestedCoins,
		&status, &t.Reason, &t.CreatedAt, &settled, &t.Ver)
	if err != nil {
		return t, err
	}
	t.Status = model.TradeStatus(status)
	if t.Status.Terminal() {
		t.SettledAt = &settled
	}
	if err = json.Unmarshal(offered, &t.OfferedCards); err != nil {
		return t, fmt.Errorf("trade %s offered cards: %w", t.ID, err)
	}
	if err = json.Unmarshal(requested, &t.RequestedCards); err != nil {
		return t, fmt.Errorf("trade %s requested cards: %w", t.ID, err)
	}
	return t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RunTx implements repository.Ledger.
//
// Reads run inside a READ COMMITTED transaction and record the version they observed; writes are
// buffered. At commit every document that was only read is re-read with FOR SHARE and compared,
// updates are conditional on the observed version and inserts skip existing ids. Any mismatch
// rolls the transaction back with errs.ErrConflict.
func (db *DB) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	ptx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = ptx.Rollback(ctx)
			return
		}
		if e := ptx.Commit(ctx); e != nil {
			err = mapErr(e)
		}
	}()

	t := &tx{
		q:      ptx,
		reads:  map[docKey]int64{},
		seen:   map[docKey]any{},
		writes: map[docKey]any{},
	}
	if err = fn(ctx, t); err != nil {
		return err
	}
	return t.flush(ctx)
}

type tx struct {
	q         pgx.Tx
	reads     map[docKey]int64
	readOrder []docKey
	seen      map[docKey]any // first observed value, for repeatable reads
	writes    map[docKey]any
	order     []docKey
	rewards   []model.Reward
}

// observe records the version of a document fetched from the database.
func (t *tx) observe(k docKey, v any, ver int64) {
	if _, ok := t.reads[k]; !ok {
		t.readOrder = append(t.readOrder, k)
	}
	t.reads[k] = ver
	t.seen[k] = v
}

// lookup returns the transaction's view of a document: buffered write, earlier read, or database.
func lookup[T any](t *tx, k docKey, load func() (T, int64, error)) (T, bool, error) {
	var zero T
	if w, ok := t.writes[k]; ok {
		return w.(T), true, nil
	}
	if v, ok := t.seen[k]; ok {
		if v == nil {
			return zero, false, nil
		}
		return v.(T), true, nil
	}
	v, ver, err := load()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		t.observe(k, nil, 0)
		return zero, false, nil
	case err != nil:
		return zero, false, mapErr(err)
	}
	t.observe(k, v, ver)
	return v, true, nil
}

func (t *tx) put(k docKey, d any) {
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = d
}

func (t *tx) User(ctx context.Context, id string) (model.User, error) {
	u, ok, err := lookup(t, docKey{tblUsers, id}, func() (model.User, int64, error) {
		u, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
		return u, u.Ver, err
	})
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	return u, nil
}

// students loads matching students and merges them into the transaction view. Rows the
// transaction already holds win over the fresh copy.
func (t *tx) students(ctx context.Context, where string, arg string, match func(model.User) bool) ([]model.User, error) {
	rows, err := t.q.Query(ctx, `SELECT `+userCols+` FROM users WHERE role='student' AND `+where+` ORDER BY id`, arg)
	if err != nil {
		return nil, mapErr(err)
	}
	var fetched []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		fetched = append(fetched, u)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	var out []model.User
	have := map[string]bool{}
	for _, u := range fetched {
		k := docKey{tblUsers, u.ID}
		if _, ok := t.writes[k]; !ok {
			if _, ok := t.seen[k]; !ok {
				t.observe(k, u, u.Ver)
			}
		}
		cur, err := t.User(ctx, u.ID)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if cur.Role == model.RoleStudent && match(cur) {
			out = append(out, cur)
			have[cur.ID] = true
		}
	}
	for _, k := range t.order {
		if u, ok := t.writes[k].(model.User); ok && !have[u.ID] && u.Role == model.RoleStudent && match(u) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *tx) StudentsByRegistration(ctx context.Context, registration string) ([]model.User, error) {
	return t.students(ctx, `registration=$1`, registration, func(u model.User) bool {
		return u.Registration == registration
	})
}

func (t *tx) StudentsByClass(ctx context.Context, class string) ([]model.User, error) {
	return t.students(ctx, `upper(class)=upper($1)`, class, func(u model.User) bool {
		return strings.EqualFold(u.Class, class)
	})
}

func (t *tx) Inventory(ctx context.Context, userID, cardID string) (model.InventoryEntry, error) {
	e, ok, err := lookup(t, docKey{tblInventory, userID + "/" + cardID}, func() (model.InventoryEntry, int64, error) {
		e := model.InventoryEntry{UserID: userID, CardID: cardID}
		err := t.q.QueryRow(ctx, `SELECT quantity, ver FROM inventory WHERE user_id=$1 AND card_id=$2`, userID, cardID).
			Scan(&e.Quantity, &e.Ver)
		return e, e.Ver, err
	})
	if err != nil {
		return model.InventoryEntry{}, err
	}
	if !ok {
		return model.InventoryEntry{UserID: userID, CardID: cardID}, nil
	}
	return e, nil
}

func (t *tx) Card(ctx context.Context, id string) (model.Card, error) {
	c, ok, err := lookup(t, docKey{tblCards, id}, func() (model.Card, int64, error) {
		c, err := scanCard(t.q.QueryRow(ctx, `SELECT `+cardCols+` FROM cards WHERE id=$1`, id))
		return c, c.Ver, err
	})
	if err != nil {
		return model.Card{}, err
	}
	if !ok {
		return model.Card{}, fmt.Errorf("card %s: %w", id, errs.ErrNotFound)
	}
	return c, nil
}

func (t *tx) Pack(ctx context.Context, id string) (model.Pack, error) {
	p, ok, err := lookup(t, docKey{tblPacks, id}, func() (model.Pack, int64, error) {
		p, err := scanPack(t.q.QueryRow(ctx, `SELECT `+packCols+` FROM packs WHERE id=$1`, id))
		return p, p.Ver, err
	})
	if err != nil {
		return model.Pack{}, err
	}
	if !ok {
		return model.Pack{}, fmt.Errorf("pack %s: %w", id, errs.ErrNotFound)
	}
	return p, nil
}

func (t *tx) Event(ctx context.Context, id string) (model.Event, error) {
	e, ok, err := lookup(t, docKey{tblEvents, id}, func() (model.Event, int64, error) {
		e, err := scanEvent(t.q.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id=$1`, id))
		return e, e.Ver, err
	})
	if err != nil {
		return model.Event{}, err
	}
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, errs.ErrNotFound)
	}
	return e, nil
}

func (t *tx) Trade(ctx context.Context, id string) (model.Trade, error) {
	tr, ok, err := lookup(t, docKey{tblTrades, id}, func() (model.Trade, int64, error) {
		tr, err := scanTrade(t.q.QueryRow(ctx, `SELECT `+tradeCols+` FROM trades WHERE id=$1`, id))
		return tr, tr.Ver, err
	})
	if err != nil {
		return model.Trade{}, err
	}
	if !ok {
		return model.Trade{}, fmt.Errorf("trade %s: %w", id, errs.ErrNotFound)
	}
	return tr, nil
}

func (t *tx) PutUser(u model.User) { t.put(docKey{tblUsers, u.ID}, u) }
func (t *tx) PutCard(c model.Card) { t.put(docKey{tblCards, c.ID}, c) }
func (t *tx) PutPack(p model.Pack) { t.put(docKey{tblPacks, p.ID}, p) }
func (t *tx) PutEvent(e model.Event) { t.put(docKey{tblEvents, e.ID}, e) }
func (t *tx) PutTrade(tr model.Trade) { t.put(docKey{tblTrades, tr.ID}, tr) }
func (t *tx) PutInventory(e model.InventoryEntry) {
	t.put(docKey{tblInventory, e.UserID + "/" + e.CardID}, e)
}
func (t *tx) AppendReward(r model.Reward) { t.rewards = append(t.rewards, r) }

// flush validates read-only documents and applies buffered writes.
func (t *tx) flush(ctx context.Context) error {
	for _, k := range t.readOrder {
		if _, written := t.writes[k]; written {
			continue
		}
		cur, err := t.lockVersion(ctx, k)
		if err != nil {
			return err
		}
		if cur != t.reads[k] {
			return fmt.Errorf("%s/%s: %w", k.table, k.id, errs.ErrConflict)
		}
	}
	for _, k := range t.order {
		if err := t.write(ctx, k, t.writes[k]); err != nil {
			return err
		}
	}
	for _, r := range t.rewards {
		const ins = `INSERT INTO rewards (id, teacher_id, student_id, coins, reason, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
		if _, err := t.q.Exec(ctx, ins, r.ID, r.TeacherID, r.StudentID, r.Coins, r.Reason, r.CreatedAt); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// lockVersion reads the current version under a share lock held until commit; 0 when absent.
func (t *tx) lockVersion(ctx context.Context, k docKey) (int64, error) {
	var row pgx.Row
	if k.table == tblInventory {
		userID, cardID, _ := strings.Cut(k.id, "/")
		row = t.q.QueryRow(ctx, `SELECT ver FROM inventory WHERE user_id=$1 AND card_id=$2 FOR SHARE`, userID, cardID)
	} else {
		row = t.q.QueryRow(ctx, `SELECT ver FROM `+k.table+` WHERE id=$1 FOR SHARE`, k.id)
	}
	var ver int64
	if err := row.Scan(&ver); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, mapErr(err)
	}
	return ver, nil
}

// write applies one document: insert when it was never stored, conditional update otherwise.
func (t *tx) write(ctx context.Context, k docKey, d any) error {
	var (
		sql  string
		args []any
		ver  int64
	)
	switch d := d.(type) {
	case model.User:
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO users (id, name, email, role, registration, class, coins, collection_size, ver, created_at) ` +
				`VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9) ON CONFLICT (id) DO NOTHING`
			args = []any{d.ID, d.Name, d.Email, string(d.Role), nullString(d.Registration), d.Class, d.Coins, d.CollectionSize, d.CreatedAt}
		} else {
			sql = `UPDATE users SET name=$2, email=$3, role=$4, registration=$5, class=$6, coins=$7, collection_size=$8, ver=ver+1 ` +
				`WHERE id=$1 AND ver=$9`
			args = []any{d.ID, d.Name, d.Email, string(d.Role), nullString(d.Registration), d.Class, d.Coins, d.CollectionSize, ver}
		}
	case model.Card:
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO cards (id, name, description, rarity, available, copies_available, price, event_id, ver) ` +
				`VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1) ON CONFLICT (id) DO NOTHING`
			args = []any{d.ID, d.Name, d.Description, string(d.Rarity), d.Available, d.CopiesAvailable, d.Price, nullString(d.EventID)}
		} else {
			sql = `UPDATE cards SET name=$2, description=$3, rarity=$4, available=$5, copies_available=$6, price=$7, event_id=$8, ver=ver+1 ` +
				`WHERE id=$1 AND ver=$9`
			args = []any{d.ID, d.Name, d.Description, string(d.Rarity), d.Available, d.CopiesAvailable, d.Price, nullString(d.EventID), ver}
		}
	case model.Pack:
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO packs (id, name, description, price, available, ver) VALUES ($1,$2,$3,$4,$5,1) ON CONFLICT (id) DO NOTHING`
			args = []any{d.ID, d.Name, d.Description, d.Price, d.Available}
		} else {
			sql = `UPDATE packs SET name=$2, description=$3, price=$4, available=$5, ver=ver+1 WHERE id=$1 AND ver=$6`
			args = []any{d.ID, d.Name, d.Description, d.Price, d.Available, ver}
		}
	case model.Event:
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO events (id, name, starts_at, ends_at, bonus_multiplier, ver) VALUES ($1,$2,$3,$4,$5,1) ON CONFLICT (id) DO NOTHING`
			args = []any{d.ID, d.Name, d.StartsAt, d.EndsAt, d.BonusMultiplier}
		} else {
			sql = `UPDATE events SET name=$2, starts_at=$3, ends_at=$4, bonus_multiplier=$5, ver=ver+1 WHERE id=$1 AND ver=$6`
			args = []any{d.ID, d.Name, d.StartsAt, d.EndsAt, d.BonusMultiplier, ver}
		}
	case model.Trade:
		offered, err := json.Marshal(d.OfferedCards)
		if err != nil {
			return err
		}
		requested, err := json.Marshal(d.RequestedCards)
		if err != nil {
			return err
		}
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO trades (id, from_user_id, to_user_id, offered_cards, requested_cards, offered_coins, requested_coins, status, reason, created_at, settled_at, ver) ` +
				`VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1) ON CONFLICT (id) DO NOTHING`
			args = []any{d.ID, d.FromUserID, d.ToUserID, offered, requested, d.OfferedCoins, d.RequestedCoins,
				string(d.Status), d.Reason, d.CreatedAt, d.SettledAt}
		} else {
			sql = `UPDATE trades SET status=$2, reason=$3, settled_at=$4, ver=ver+1 WHERE id=$1 AND ver=$5`
			args = []any{d.ID, string(d.Status), d.Reason, d.SettledAt, ver}
		}
	case model.InventoryEntry:
		ver = d.Ver
		if ver == 0 {
			sql = `INSERT INTO inventory (user_id, card_id, quantity, ver) VALUES ($1,$2,$3,1) ON CONFLICT (user_id, card_id) DO NOTHING`
			args = []any{d.UserID, d.CardID, d.Quantity}
		} else {
			sql = `UPDATE inventory SET quantity=$3, ver=ver+1 WHERE user_id=$1 AND card_id=$2 AND ver=$4`
			args = []any{d.UserID, d.CardID, d.Quantity, ver}
		}
	default:
		return fmt.Errorf("unsupported document %T", d)
	}

	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%s/%s: %w", k.table, k.id, errs.ErrConflict)
	}
	return nil
}
