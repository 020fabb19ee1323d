// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"sort"
	"time"
)

// Role is the closed set of account roles. It is always read from the store, never from the client.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether the role may issue rewards.
func (r Role) IsStaff() bool { return r == RoleTeacher || r == RoleAdmin }

// Rarity is a card scarcity tier. Rarities are totally ordered from common to mythic.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityLegendary Rarity = "legendary"
	RarityMythic    Rarity = "mythic"
)

// Rarities lists all tiers in scarcity order.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityLegendary, RarityMythic}

// ParseRarity validates a rarity string.
func ParseRarity(s string) (Rarity, error) {
	for _, r := range Rarities {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown rarity %q", s)
}

// Rank returns the position of r in scarcity order, or -1 for an unknown tier.
func (r Rarity) Rank() int {
	for i, x := range Rarities {
		if x == r {
			return i
		}
	}
	return -1
}

// User is an account aggregate. It exclusively owns its balance and inventory.
type User struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	Registration   string // students only, unique
	Class          string // students only, upper-case
	Coins          int64  // never negative
	CollectionSize int64  // total cards owned, maintained with inventory writes
	Ver            int64  // optimistic concurrency version (0 = not stored yet)
	CreatedAt      time.Time
}

// Card is a catalog card definition.
type Card struct {
	ID              string
	Name            string
	Description     string
	Rarity          Rarity
	Available       bool
	CopiesAvailable *int64 // nil = unlimited; never negative
	Price           *int64 // direct-purchase price, informational
	EventID         string // empty = not tied to an event
	Ver             int64
}

// Unlimited reports whether the card has no stock limit.
func (c Card) Unlimited() bool { return c.CopiesAvailable == nil }

// InStock reports whether at least one copy can still be minted.
func (c Card) InStock() bool { return c.CopiesAvailable == nil || *c.CopiesAvailable > 0 }

// InventoryEntry is a per-user, per-card quantity. Entries are never deleted.
type InventoryEntry struct {
	UserID   string
	CardID   string
	Quantity int64 // never negative
	Ver      int64
}

// Pack is a purchasable bundle of randomly drawn cards.
type Pack struct {
	ID          string
	Name        string
	Description string
	Price       int64
	Available   bool
	Ver         int64
}

// Event is a time-boxed campaign. Cards tied to an event are drawable only while it runs.
type Event struct {
	ID              string
	Name            string
	StartsAt        time.Time
	EndsAt          time.Time
	BonusMultiplier float64
	Ver             int64
}

// ActiveAt reports whether t falls in [StartsAt, EndsAt).
func (e Event) ActiveAt(t time.Time) bool {
	return !t.Before(e.StartsAt) && t.Before(e.EndsAt)
}

// CardSet is a multiset of card ids mapped to positive quantities.
type CardSet map[string]int64

// CardSetFromIDs builds a multiset from a list of ids; repeated ids add up.
func CardSetFromIDs(ids []string) CardSet {
	s := make(CardSet, len(ids))
	for _, id := range ids {
		s[id]++
	}
	return s
}

// Total returns the number of cards in the set.
func (s CardSet) Total() int64 {
	var n int64
	for _, q := range s {
		n += q
	}
	return n
}

// IDs returns the distinct card ids in deterministic order.
func (s CardSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TradeStatus is the trade lifecycle state.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeAccepted  TradeStatus = "accepted"
	TradeRejected  TradeStatus = "rejected"
	TradeCancelled TradeStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s TradeStatus) Terminal() bool { return s != TradePending }

// Trade is a peer proposal to exchange cards and coins.
type Trade struct {
	ID             string
	FromUserID     string
	ToUserID       string
	OfferedCards   CardSet
	RequestedCards CardSet
	OfferedCoins   int64
	RequestedCoins int64
	Status         TradeStatus
	Reason         string // why a trade was closed without the counterparty's decision
	CreatedAt      time.Time
	SettledAt      *time.Time
	Ver            int64
}

// Decision is the counterparty's answer to a pending trade.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Reward is an immutable audit entry for a coin grant.
type Reward struct {
	ID        string
	TeacherID string
	StudentID string
	Coins     int64
	Reason    string
	CreatedAt time.Time
}

// PurchaseResult summarizes a successful pack purchase.
type PurchaseResult struct {
	PackID     string
	Cards      []Card   // drawn cards in draw order, may repeat
	NewlyOwned []string // card ids owned for the first time, once each
	Restocked  []string // card ids already owned before, once each
	Balance    int64    // buyer balance after the debit
}

// OwnedCard is a collection row.
type OwnedCard struct {
	Card     Card
	Quantity int64
}

// LeaderboardKind selects the ranking metric.
type LeaderboardKind string

const (
	LeaderboardCoins      LeaderboardKind = "coins"
	LeaderboardCollection LeaderboardKind = "collection"
)

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank   int
	UserID string
	Name   string
	Class  string
	Score  int64
}

// TradeFilter narrows trade listings.
type TradeFilter struct {
	Incoming bool        // trades addressed to the user; otherwise authored by the user
	Status   TradeStatus // empty = any
}

// RewardResult summarizes one reward issuance.
type RewardResult struct {
	StudentsRewarded int
	Rewards          []Reward
}
