package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/model"
	grpcserver "github.com/and161185/ifcoins/internal/server/grpc"
)

var errUsage = errors.New("usage")

type app struct {
	out    io.Writer
	client *grpcserver.Client
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// oneArg returns the single positional argument of a command like `buy <pack id>`.
func oneArg(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errUsage
	}
	return strings.TrimSpace(args[0]), nil
}

// parseCardSet parses "owl=2,fox" into {owl:2, fox:1}. Repeated ids add up.
func parseCardSet(s string) (map[string]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := map[string]int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qty, hasQty := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("card set %q: empty card id", s)
		}
		n := int64(1)
		if hasQty {
			var err error
			n, err = strconv.ParseInt(strings.TrimSpace(qty), 10, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("card set %q: bad quantity for %s", s, id)
			}
		}
		out[id] += n
	}
	return out, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	var (
		v   any
		err error
	)
	switch cmd {
	case "me":
		v, err = a.client.Me(ctx)
	case "collection":
		v, err = a.client.Collection(ctx)
	case "catalog":
		v, err = a.client.Catalog(ctx)
	case "packs":
		v, err = a.client.ListPacks(ctx)
	case "events":
		v, err = a.client.ListEvents(ctx)
	case "buy":
		var id string
		if id, err = oneArg(args); err == nil {
			v, err = a.client.PurchasePack(ctx, id)
		}
	case "accept", "reject":
		var id string
		if id, err = oneArg(args); err == nil {
			v, err = a.client.RespondToTrade(ctx, id, cmd)
		}
	case "cancel":
		var id string
		if id, err = oneArg(args); err == nil {
			v, err = a.client.CancelTrade(ctx, id)
		}
	case "trade":
		var id string
		if id, err = oneArg(args); err == nil {
			v, err = a.client.GetTrade(ctx, id)
		}
	case "propose":
		v, err = a.propose(ctx, args)
	case "trades":
		v, err = a.trades(ctx, args)
	case "reward":
		v, err = a.reward(ctx, args)
	case "rewards":
		fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
		student := fs.String("student", "", "student id (default: yourself)")
		if err = fs.Parse(args); err == nil {
			v, err = a.client.ListRewards(ctx, *student)
		}
	case "leaderboard":
		fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
		kind := fs.String("kind", string(model.LeaderboardCoins), "coins|collection")
		limit := fs.Int("limit", 0, "entries (default 10, max 50)")
		if err = fs.Parse(args); err == nil {
			v, err = a.client.Leaderboard(ctx, *kind, *limit)
		}
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	return printJSON(a.out, v)
}

func (a *app) propose(ctx context.Context, args []string) (*api.Trade, error) {
	fs := flag.NewFlagSet("propose", flag.ContinueOnError)
	to := fs.String("to", "", "counterparty user id")
	offer := fs.String("offer", "", "offered cards, id=qty,...")
	request := fs.String("request", "", "requested cards, id=qty,...")
	offerCoins := fs.Int64("offer-coins", 0, "offered coins")
	requestCoins := fs.Int64("request-coins", 0, "requested coins")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *to == "" {
		return nil, errUsage
	}
	offered, err := parseCardSet(*offer)
	if err != nil {
		return nil, err
	}
	requested, err := parseCardSet(*request)
	if err != nil {
		return nil, err
	}
	return a.client.ProposeTrade(ctx, &api.ProposeTradeRequest{
		ToUserID:       *to,
		OfferedCards:   offered,
		RequestedCards: requested,
		OfferedCoins:   *offerCoins,
		RequestedCoins: *requestCoins,
	})
}

func (a *app) trades(ctx context.Context, args []string) (*api.ListTradesResponse, error) {
	fs := flag.NewFlagSet("trades", flag.ContinueOnError)
	incoming := fs.Bool("incoming", false, "trades addressed to you")
	status := fs.String("status", "", "pending|accepted|rejected|cancelled")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return a.client.ListTrades(ctx, &api.ListTradesRequest{Incoming: *incoming, Status: *status})
}

func (a *app) reward(ctx context.Context, args []string) (*api.IssueRewardResponse, error) {
	fs := flag.NewFlagSet("reward", flag.ContinueOnError)
	target := fs.String("target", "", "registration number or class name")
	coins := fs.Int64("coins", 0, "coins per student, 1..10")
	reason := fs.String("reason", "", "reason")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *target == "" {
		return nil, errUsage
	}
	return a.client.IssueReward(ctx, &api.IssueRewardRequest{Identifier: *target, Coins: *coins, Reason: *reason})
}

// mintToken signs a token locally with the server's shared key and stores it. Meant for development
// deployments where the operator holds IFCOINS_JWT_KEY.
func mintToken(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "user id")
	role := fs.String("role", string(model.RoleStudent), "student|teacher|admin")
	email := fs.String("email", "", "email")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	key := fs.String("key", os.Getenv("IFCOINS_JWT_KEY"), "signing key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sub == "" || *key == "" {
		return errors.New("token: -sub and -key (or IFCOINS_JWT_KEY) are required")
	}
	r, err := model.ParseRole(*role)
	if err != nil {
		return err
	}
	tok, exp, err := auth.NewTokens([]byte(*key), *ttl).Issue(auth.Principal{ID: *sub, Email: *email, Role: r})
	if err != nil {
		return err
	}
	if err := saveToken(tokenFile{AccessToken: tok, UserID: *sub, ExpiresAt: exp}); err != nil {
		return err
	}
	fmt.Fprintf(w, "token saved for %s until %s\n", *sub, exp.Format(time.RFC3339))
	return nil
}
