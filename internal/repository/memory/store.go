// Package memory is an in-process implementation of the repository interfaces.
//
// Every document carries a version. A transaction remembers the version of each document it reads,
// buffers its writes, and commits under a single short critical section that first validates that
// none of those versions moved and then applies all writes. Readers never block on a running
// transaction; only commits serialize.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/repository"
)

type kind uint8

const (
	kindUser kind = iota
	kindCard
	kindPack
	kindEvent
	kindTrade
	kindInventory
)

func (k kind) String() string {
	return [...]string{"users", "cards", "packs", "events", "trades", "inventory"}[k]
}

type docKey struct {
	kind kind
	id   string
}

func invID(userID, cardID string) string { return userID + "/" + cardID }

// Store keeps all documents in memory.
type Store struct {
	mu        sync.RWMutex
	users     map[string]model.User
	cards     map[string]model.Card
	packs     map[string]model.Pack
	events    map[string]model.Event
	trades    map[string]model.Trade
	inventory map[string]model.InventoryEntry
	rewards   []model.Reward
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:     map[string]model.User{},
		cards:     map[string]model.Card{},
		packs:     map[string]model.Pack{},
		events:    map[string]model.Event{},
		trades:    map[string]model.Trade{},
		inventory: map[string]model.InventoryEntry{},
	}
}

// version returns the stored version of a document, 0 when absent. Caller holds mu.
func (s *Store) version(k docKey) int64 {
	switch k.kind {
	case kindUser:
		return s.users[k.id].Ver
	case kindCard:
		return s.cards[k.id].Ver
	case kindPack:
		return s.packs[k.id].Ver
	case kindEvent:
		return s.events[k.id].Ver
	case kindTrade:
		return s.trades[k.id].Ver
	case kindInventory:
		return s.inventory[k.id].Ver
	}
	return 0
}

// RunTx implements repository.Ledger.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:      s,
		reads:  map[docKey]int64{},
		seen:   map[docKey]any{},
		writes: map[docKey]any{},
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	if len(t.writes) == 0 && len(t.rewards) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ver := range t.reads {
		if s.version(k) != ver {
			return fmt.Errorf("%s/%s: %w", k.kind, k.id, errs.ErrConflict)
		}
	}
	for _, k := range t.order {
		if s.version(k) != docVersion(t.writes[k]) {
			return fmt.Errorf("%s/%s: %w", k.kind, k.id, errs.ErrConflict)
		}
	}
	if err := s.checkUnique(t); err != nil {
		return err
	}

	for _, k := range t.order {
		switch d := t.writes[k].(type) {
		case model.User:
			d.Ver++
			s.users[d.ID] = d
		case model.Card:
			d.Ver++
			s.cards[d.ID] = d
		case model.Pack:
			d.Ver++
			s.packs[d.ID] = d
		case model.Event:
			d.Ver++
			s.events[d.ID] = d
		case model.Trade:
			d.Ver++
			d.OfferedCards = cloneSet(d.OfferedCards)
			d.RequestedCards = cloneSet(d.RequestedCards)
			s.trades[d.ID] = d
		case model.InventoryEntry:
			d.Ver++
			s.inventory[invID(d.UserID, d.CardID)] = d
		}
	}
	s.rewards = append(s.rewards, t.rewards...)
	return nil
}

// checkUnique enforces unique student registration numbers. Caller holds mu.
func (s *Store) checkUnique(t *tx) error {
	pending := map[string]string{}
	for _, k := range t.order {
		u, ok := t.writes[k].(model.User)
		if !ok || u.Registration == "" {
			continue
		}
		if id, dup := pending[u.Registration]; dup && id != u.ID {
			return fmt.Errorf("registration %s: %w", u.Registration, errs.ErrAlreadyExists)
		}
		pending[u.Registration] = u.ID
		for id, other := range s.users {
			if id != u.ID && other.Registration == u.Registration {
				return fmt.Errorf("registration %s: %w", u.Registration, errs.ErrAlreadyExists)
			}
		}
	}
	return nil
}

func docVersion(d any) int64 {
	switch d := d.(type) {
	case model.User:
		return d.Ver
	case model.Card:
		return d.Ver
	case model.Pack:
		return d.Ver
	case model.Event:
		return d.Ver
	case model.Trade:
		return d.Ver
	case model.InventoryEntry:
		return d.Ver
	}
	return 0
}

func cloneSet(s model.CardSet) model.CardSet {
	if s == nil {
		return nil
	}
	out := make(model.CardSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type tx struct {
	s       *Store
	reads   map[docKey]int64
	seen    map[docKey]any // first observed value, for repeatable reads
	writes  map[docKey]any
	order   []docKey // write order, for deterministic apply
	rewards []model.Reward
}

// lookup returns the transaction's view of a document: buffered write, earlier read, or store.
func lookup[T any](t *tx, k docKey, load func() (T, bool)) (T, bool) {
	if w, ok := t.writes[k]; ok {
		return w.(T), true
	}
	if v, ok := t.seen[k]; ok {
		if v == nil {
			var zero T
			return zero, false
		}
		return v.(T), true
	}
	t.s.mu.RLock()
	v, ok := load()
	ver := t.s.version(k)
	t.s.mu.RUnlock()

	t.reads[k] = ver
	if ok {
		t.seen[k] = v
	} else {
		t.seen[k] = nil
	}
	return v, ok
}

func (t *tx) put(k docKey, d any) {
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = d
}

func (t *tx) User(_ context.Context, id string) (model.User, error) {
	u, ok := lookup(t, docKey{kindUser, id}, func() (model.User, bool) {
		u, ok := t.s.users[id]
		return u, ok
	})
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
	}
	return u, nil
}

func (t *tx) students(match func(model.User) bool) []model.User {
	t.s.mu.RLock()
	var ids []string
	for id, u := range t.s.users {
		if u.Role == model.RoleStudent && match(u) {
			ids = append(ids, id)
		}
	}
	t.s.mu.RUnlock()
	for k, w := range t.writes {
		if u, ok := w.(model.User); ok && k.kind == kindUser && u.Role == model.RoleStudent && match(u) {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)

	var out []model.User
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		u, err := t.User(context.Background(), id)
		if err == nil && u.Role == model.RoleStudent && match(u) {
			out = append(out, u)
		}
	}
	return out
}

func (t *tx) StudentsByRegistration(_ context.Context, registration string) ([]model.User, error) {
	return t.students(func(u model.User) bool { return u.Registration == registration }), nil
}

func (t *tx) StudentsByClass(_ context.Context, class string) ([]model.User, error) {
	return t.students(func(u model.User) bool { return strings.EqualFold(u.Class, class) }), nil
}

func (t *tx) Inventory(_ context.Context, userID, cardID string) (model.InventoryEntry, error) {
	id := invID(userID, cardID)
	e, ok := lookup(t, docKey{kindInventory, id}, func() (model.InventoryEntry, bool) {
		e, ok := t.s.inventory[id]
		return e, ok
	})
	if !ok {
		return model.InventoryEntry{UserID: userID, CardID: cardID}, nil
	}
	return e, nil
}

func (t *tx) Card(_ context.Context, id string) (model.Card, error) {
	c, ok := lookup(t, docKey{kindCard, id}, func() (model.Card, bool) {
		c, ok := t.s.cards[id]
		return c, ok
	})
	if !ok {
		return model.Card{}, fmt.Errorf("card %s: %w", id, errs.ErrNotFound)
	}
	return c, nil
}

func (t *tx) Pack(_ context.Context, id string) (model.Pack, error) {
	p, ok := lookup(t, docKey{kindPack, id}, func() (model.Pack, bool) {
		p, ok := t.s.packs[id]
		return p, ok
	})
	if !ok {
		return model.Pack{}, fmt.Errorf("pack %s: %w", id, errs.ErrNotFound)
	}
	return p, nil
}

func (t *tx) Event(_ context.Context, id string) (model.Event, error) {
	e, ok := lookup(t, docKey{kindEvent, id}, func() (model.Event, bool) {
		e, ok := t.s.events[id]
		return e, ok
	})
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", id, errs.ErrNotFound)
	}
	return e, nil
}

func (t *tx) Trade(_ context.Context, id string) (model.Trade, error) {
	tr, ok := lookup(t, docKey{kindTrade, id}, func() (model.Trade, bool) {
		tr, ok := t.s.trades[id]
		tr.OfferedCards = cloneSet(tr.OfferedCards)
		tr.RequestedCards = cloneSet(tr.RequestedCards)
		return tr, ok
	})
	if !ok {
		return model.Trade{}, fmt.Errorf("trade %s: %w", id, errs.ErrNotFound)
	}
	return tr, nil
}

func (t *tx) PutUser(u model.User) { t.put(docKey{kindUser, u.ID}, u) }
func (t *tx) PutCard(c model.Card) { t.put(docKey{kindCard, c.ID}, c) }
func (t *tx) PutPack(p model.Pack) { t.put(docKey{kindPack, p.ID}, p) }
func (t *tx) PutEvent(e model.Event) { t.put(docKey{kindEvent, e.ID}, e) }
func (t *tx) PutTrade(tr model.Trade) {
	tr.OfferedCards = cloneSet(tr.OfferedCards)
	tr.RequestedCards = cloneSet(tr.RequestedCards)
	t.put(docKey{kindTrade, tr.ID}, tr)
}
func (t *tx) PutInventory(e model.InventoryEntry) {
	t.put(docKey{kindInventory, invID(e.UserID, e.CardID)}, e)
}
func (t *tx) AppendReward(r model.Reward) { t.rewards = append(t.rewards, r) }
