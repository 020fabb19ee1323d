// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an optimistic concurrency failure: a document read by the
	// transaction changed before commit. Safe to retry.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates a missing or invalid principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the principal may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., registration number taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates malformed input that is not covered by a more specific sentinel.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Economy sentinels.
var (
	// ErrInsufficientFunds indicates the buyer's balance is below the price.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings indicates offered assets exceed the proposer's holdings.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrInvalidProposal indicates a trade proposal that can never be valid (empty offer, bad counterparty).
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrSelfTrade indicates a trade proposal addressed to its own author.
	ErrSelfTrade = errors.New("self trade")

	// ErrStaleProposal indicates a pending trade whose terms can no longer be satisfied.
	ErrStaleProposal = errors.New("stale proposal")

	// ErrAlreadySettled indicates a transition attempted on a trade that is no longer pending.
	ErrAlreadySettled = errors.New("already settled")

	// ErrCatalogEmpty indicates there is no available card to draw from.
	ErrCatalogEmpty = errors.New("catalog empty")

	// ErrOutOfStock indicates a drawn card ran out of mintable copies.
	ErrOutOfStock = errors.New("out of stock")

	// ErrNoMatchingStudents indicates a reward target matched nobody.
	ErrNoMatchingStudents = errors.New("no matching students")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrRateLimited, "rate_limited"},
	{ErrAlreadyExists, "already_exists"},
	{ErrInvalidArgument, "invalid_argument"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInsufficientHoldings, "insufficient_holdings"},
	{ErrInvalidProposal, "invalid_proposal"},
	{ErrSelfTrade, "self_trade"},
	{ErrStaleProposal, "stale_proposal"},
	{ErrAlreadySettled, "already_settled"},
	{ErrCatalogEmpty, "catalog_empty"},
	{ErrOutOfStock, "out_of_stock"},
	{ErrNoMatchingStudents, "no_matching_students"},
}

// Code returns a stable machine-readable code for err, or "internal" if err wraps no known sentinel.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// FromCode is the inverse of Code; it returns nil for unknown codes.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
