// Package api holds the wire messages shared by the gRPC service, the HTTP gateway and the CLI.
// Messages are plain structs encoded as JSON.
package api

import "time"

// Empty is the request of parameterless calls.
type Empty struct{}

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Role           string    `json:"role"`
	Registration   string    `json:"registration,omitempty"`
	Class          string    `json:"class,omitempty"`
	Coins          int64     `json:"coins"`
	CollectionSize int64     `json:"collection_size"`
	CreatedAt      time.Time `json:"created_at"`
}

// Card is a catalog card. Nil CopiesAvailable means unlimited stock.
type Card struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Rarity          string `json:"rarity"`
	Available       bool   `json:"available"`
	CopiesAvailable *int64 `json:"copies_available,omitempty"`
	Price           *int64 `json:"price,omitempty"`
	EventID         string `json:"event_id,omitempty"`
}

type Pack struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Available   bool   `json:"available"`
}

type Event struct {
	ID              string    `json:"id,omitempty"`
	Name            string    `json:"name"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	BonusMultiplier float64   `json:"bonus_multiplier,omitempty"`
}

type OwnedCard struct {
	Card     Card  `json:"card"`
	Quantity int64 `json:"quantity"`
}

// Trade card sets map card ids to quantities.
type Trade struct {
	ID             string           `json:"id"`
	FromUserID     string           `json:"from_user_id"`
	ToUserID       string           `json:"to_user_id"`
	OfferedCards   map[string]int64 `json:"offered_cards,omitempty"`
	RequestedCards map[string]int64 `json:"requested_cards,omitempty"`
	OfferedCoins   int64            `json:"offered_coins,omitempty"`
	RequestedCoins int64            `json:"requested_coins,omitempty"`
	Status         string           `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	SettledAt      *time.Time       `json:"settled_at,omitempty"`
}

type Reward struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	StudentID string    `json:"student_id"`
	Coins     int64     `json:"coins"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Class  string `json:"class,omitempty"`
	Score  int64  `json:"score"`
}

// --- purchases ---

type PurchasePackRequest struct {
	PackID string `json:"pack_id"`
}

type PurchasePackResponse struct {
	PackID     string   `json:"pack_id"`
	Cards      []Card   `json:"cards"`
	NewlyOwned []string `json:"newly_owned"`
	Restocked  []string `json:"restocked"`
	Balance    int64    `json:"balance"`
}

// --- trades ---

type ProposeTradeRequest struct {
	ToUserID       string           `json:"to_user_id"`
	OfferedCards   map[string]int64 `json:"offered_cards,omitempty"`
	RequestedCards map[string]int64 `json:"requested_cards,omitempty"`
	OfferedCoins   int64            `json:"offered_coins,omitempty"`
	RequestedCoins int64            `json:"requested_coins,omitempty"`
}

// RespondToTradeRequest carries "accept" or "reject".
type RespondToTradeRequest struct {
	TradeID  string `json:"trade_id"`
	Decision string `json:"decision"`
}

type TradeRequest struct {
	TradeID string `json:"trade_id"`
}

// ListTradesRequest lists outgoing trades unless Incoming is set. Empty Status means any.
type ListTradesRequest struct {
	Incoming bool   `json:"incoming,omitempty"`
	Status   string `json:"status,omitempty"`
}

type ListTradesResponse struct {
	Trades []Trade `json:"trades"`
}

// --- rewards ---

// IssueRewardRequest targets a registration number (all digits) or a class name.
type IssueRewardRequest struct {
	Identifier string `json:"identifier"`
	Coins      int64  `json:"coins"`
	Reason     string `json:"reason"`
}

type IssueRewardResponse struct {
	StudentsRewarded int      `json:"students_rewarded"`
	Rewards          []Reward `json:"rewards"`
}

type ListRewardsRequest struct {
	StudentID string `json:"student_id"`
}

type ListRewardsResponse struct {
	Rewards []Reward `json:"rewards"`
}

// --- queries ---

type CollectionResponse struct {
	Cards []OwnedCard `json:"cards"`
}

// LeaderboardRequest kind is "coins" (default) or "collection".
type LeaderboardRequest struct {
	Kind  string `json:"kind,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type LeaderboardResponse struct {
	Kind    string             `json:"kind"`
	Entries []LeaderboardEntry `json:"entries"`
}

type CatalogResponse struct {
	Cards []Card `json:"cards"`
}

type PacksResponse struct {
	Packs []Pack `json:"packs"`
}

type EventsResponse struct {
	Events []Event `json:"events"`
}

// --- admin ---

type RegisterStudentRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Registration string `json:"registration"`
	Class        string `json:"class"`
}

type CreateStaffRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// ErrorBody is the HTTP error envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
