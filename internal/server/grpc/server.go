// Package grpcserver exposes the economy services over gRPC.
package grpcserver

import (
	"context"

	"github.com/and161185/ifcoins/internal/api"
	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/convert"
	"github.com/and161185/ifcoins/internal/model"
	"github.com/and161185/ifcoins/internal/service"
)

// Server wires services into gRPC handlers.
type Server struct {
	svc service.Services
}

var _ EconomyServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(svc service.Services) *Server {
	return &Server{svc: svc}
}

// principal returns the caller set by the auth interceptor; anonymous callers get a zero value
// which services reject where identity matters.
func principal(ctx context.Context) auth.Principal {
	p, _ := auth.FromContext(ctx)
	return p
}

// --- purchases ---

// PurchasePack buys one pack for the caller.
func (s *Server) PurchasePack(ctx context.Context, req *api.PurchasePackRequest) (*api.PurchasePackResponse, error) {
	res, err := s.svc.Purchases.PurchasePack(ctx, principal(ctx), req.PackID)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIPurchase(res), nil
}

// --- trades ---

func (s *Server) ProposeTrade(ctx context.Context, req *api.ProposeTradeRequest) (*api.Trade, error) {
	tr, err := s.svc.Trades.Propose(ctx, principal(ctx), convert.FromAPIProposal(req))
	return tradeResp(tr, err)
}

func (s *Server) RespondToTrade(ctx context.Context, req *api.RespondToTradeRequest) (*api.Trade, error) {
	d, err := convert.FromAPIDecision(req.Decision)
	if err != nil {
		return nil, toStatus(err)
	}
	tr, err := s.svc.Trades.Respond(ctx, principal(ctx), req.TradeID, d)
	return tradeResp(tr, err)
}

func (s *Server) CancelTrade(ctx context.Context, req *api.TradeRequest) (*api.Trade, error) {
	tr, err := s.svc.Trades.Cancel(ctx, principal(ctx), req.TradeID)
	return tradeResp(tr, err)
}

func (s *Server) GetTrade(ctx context.Context, req *api.TradeRequest) (*api.Trade, error) {
	tr, err := s.svc.Trades.Get(ctx, principal(ctx), req.TradeID)
	return tradeResp(tr, err)
}

func tradeResp(tr model.Trade, err error) (*api.Trade, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPITrade(tr)
	return &out, nil
}

func (s *Server) ListTrades(ctx context.Context, req *api.ListTradesRequest) (*api.ListTradesResponse, error) {
	f, err := convert.FromAPITradeFilter(req)
	if err != nil {
		return nil, toStatus(err)
	}
	ts, err := s.svc.Trades.List(ctx, principal(ctx), f)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListTradesResponse{Trades: convert.ToAPITrades(ts)}, nil
}

// --- rewards ---

func (s *Server) IssueReward(ctx context.Context, req *api.IssueRewardRequest) (*api.IssueRewardResponse, error) {
	res, err := s.svc.Rewards.IssueReward(ctx, principal(ctx), req.Identifier, req.Coins, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPIRewardResult(res), nil
}

// ListRewards defaults to the caller's own history.
func (s *Server) ListRewards(ctx context.Context, req *api.ListRewardsRequest) (*api.ListRewardsResponse, error) {
	p := principal(ctx)
	id := req.StudentID
	if id == "" {
		id = p.ID
	}
	rs, err := s.svc.Rewards.Rewards(ctx, p, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListRewardsResponse{Rewards: convert.ToAPIRewards(rs)}, nil
}

// --- queries ---

func (s *Server) Me(ctx context.Context, _ *api.Empty) (*api.User, error) {
	u, err := s.svc.Queries.Me(ctx, principal(ctx))
	return userResp(u, err)
}

func (s *Server) Collection(ctx context.Context, _ *api.Empty) (*api.CollectionResponse, error) {
	cs, err := s.svc.Queries.Collection(ctx, principal(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CollectionResponse{Cards: convert.ToAPIOwned(cs)}, nil
}

func (s *Server) Leaderboard(ctx context.Context, req *api.LeaderboardRequest) (*api.LeaderboardResponse, error) {
	kind := model.LeaderboardKind(req.Kind)
	es, err := s.svc.Queries.Leaderboard(ctx, kind, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return convert.ToAPILeaderboard(kind, es), nil
}

func (s *Server) Catalog(ctx context.Context, _ *api.Empty) (*api.CatalogResponse, error) {
	cs, err := s.svc.Queries.Catalog(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CatalogResponse{Cards: convert.ToAPICards(cs)}, nil
}

func (s *Server) ListPacks(ctx context.Context, _ *api.Empty) (*api.PacksResponse, error) {
	ps, err := s.svc.Queries.Packs(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PacksResponse{Packs: convert.ToAPIPacks(ps)}, nil
}

func (s *Server) ListEvents(ctx context.Context, _ *api.Empty) (*api.EventsResponse, error) {
	es, err := s.svc.Queries.ActiveEvents(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.EventsResponse{Events: convert.ToAPIEvents(es)}, nil
}

// --- admin ---

func (s *Server) RegisterStudent(ctx context.Context, req *api.RegisterStudentRequest) (*api.User, error) {
	u, err := s.svc.Admin.RegisterStudent(ctx, principal(ctx), convert.FromAPIStudent(req))
	return userResp(u, err)
}

func (s *Server) CreateStaff(ctx context.Context, req *api.CreateStaffRequest) (*api.User, error) {
	in, err := convert.FromAPIStaff(req)
	if err != nil {
		return nil, toStatus(err)
	}
	u, err := s.svc.Admin.CreateStaff(ctx, principal(ctx), in)
	return userResp(u, err)
}

func userResp(u model.User, err error) (*api.User, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u)
	return &out, nil
}

func (s *Server) UpsertCard(ctx context.Context, req *api.Card) (*api.Card, error) {
	c, err := convert.FromAPICard(*req)
	if err != nil {
		return nil, toStatus(err)
	}
	c, err = s.svc.Admin.UpsertCard(ctx, principal(ctx), c)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPICard(c)
	return &out, nil
}

func (s *Server) CreatePack(ctx context.Context, req *api.Pack) (*api.Pack, error) {
	pk, err := s.svc.Admin.CreatePack(ctx, principal(ctx), convert.FromAPIPack(*req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIPack(pk)
	return &out, nil
}

func (s *Server) CreateEvent(ctx context.Context, req *api.Event) (*api.Event, error) {
	e, err := s.svc.Admin.CreateEvent(ctx, principal(ctx), convert.FromAPIEvent(*req))
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIEvent(e)
	return &out, nil
}
