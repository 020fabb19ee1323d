package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/and161185/ifcoins/internal/api"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ifcoins.v1.Economy"

// Method names.
const (
	MethodPurchasePack    = "PurchasePack"
	MethodProposeTrade    = "ProposeTrade"
	MethodRespondToTrade  = "RespondToTrade"
	MethodCancelTrade     = "CancelTrade"
	MethodGetTrade        = "GetTrade"
	MethodListTrades      = "ListTrades"
	MethodIssueReward     = "IssueReward"
	MethodListRewards     = "ListRewards"
	MethodMe              = "Me"
	MethodCollection      = "Collection"
	MethodLeaderboard     = "Leaderboard"
	MethodCatalog         = "Catalog"
	MethodListPacks       = "ListPacks"
	MethodListEvents      = "ListEvents"
	MethodRegisterStudent = "RegisterStudent"
	MethodCreateStaff     = "CreateStaff"
	MethodUpsertCard      = "UpsertCard"
	MethodCreatePack      = "CreatePack"
	MethodCreateEvent     = "CreateEvent"
)

// FullMethod returns the "/service/method" path of an economy method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// EconomyServer is the server side of ifcoins.v1.Economy.
type EconomyServer interface {
	PurchasePack(context.Context, *api.PurchasePackRequest) (*api.PurchasePackResponse, error)
	ProposeTrade(context.Context, *api.ProposeTradeRequest) (*api.Trade, error)
	RespondToTrade(context.Context, *api.RespondToTradeRequest) (*api.Trade, error)
	CancelTrade(context.Context, *api.TradeRequest) (*api.Trade, error)
	GetTrade(context.Context, *api.TradeRequest) (*api.Trade, error)
	ListTrades(context.Context, *api.ListTradesRequest) (*api.ListTradesResponse, error)
	IssueReward(context.Context, *api.IssueRewardRequest) (*api.IssueRewardResponse, error)
	ListRewards(context.Context, *api.ListRewardsRequest) (*api.ListRewardsResponse, error)
	Me(context.Context, *api.Empty) (*api.User, error)
	Collection(context.Context, *api.Empty) (*api.CollectionResponse, error)
	Leaderboard(context.Context, *api.LeaderboardRequest) (*api.LeaderboardResponse, error)
	Catalog(context.Context, *api.Empty) (*api.CatalogResponse, error)
	ListPacks(context.Context, *api.Empty) (*api.PacksResponse, error)
	ListEvents(context.Context, *api.Empty) (*api.EventsResponse, error)
	RegisterStudent(context.Context, *api.RegisterStudentRequest) (*api.User, error)
	CreateStaff(context.Context, *api.CreateStaffRequest) (*api.User, error)
	UpsertCard(context.Context, *api.Card) (*api.Card, error)
	CreatePack(context.Context, *api.Pack) (*api.Pack, error)
	CreateEvent(context.Context, *api.Event) (*api.Event, error)
}

// unary builds a method descriptor that decodes Req and dispatches through the interceptor chain.
func unary[Req, Resp any](method string, call func(EconomyServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(EconomyServer)
			if ic == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// EconomyServiceDesc describes ifcoins.v1.Economy for grpc.Server.RegisterService.
var EconomyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EconomyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPurchasePack, EconomyServer.PurchasePack),
		unary(MethodProposeTrade, EconomyServer.ProposeTrade),
		unary(MethodRespondToTrade, EconomyServer.RespondToTrade),
		unary(MethodCancelTrade, EconomyServer.CancelTrade),
		unary(MethodGetTrade, EconomyServer.GetTrade),
		unary(MethodListTrades, EconomyServer.ListTrades),
		unary(MethodIssueReward, EconomyServer.IssueReward),
		unary(MethodListRewards, EconomyServer.ListRewards),
		unary(MethodMe, EconomyServer.Me),
		unary(MethodCollection, EconomyServer.Collection),
		unary(MethodLeaderboard, EconomyServer.Leaderboard),
		unary(MethodCatalog, EconomyServer.Catalog),
		unary(MethodListPacks, EconomyServer.ListPacks),
		unary(MethodListEvents, EconomyServer.ListEvents),
		unary(MethodRegisterStudent, EconomyServer.RegisterStudent),
		unary(MethodCreateStaff, EconomyServer.CreateStaff),
		unary(MethodUpsertCard, EconomyServer.UpsertCard),
		unary(MethodCreatePack, EconomyServer.CreatePack),
		unary(MethodCreateEvent, EconomyServer.CreateEvent),
	},
	Metadata: "ifcoins/v1/economy",
}

// RegisterEconomyServer registers srv on s.
func RegisterEconomyServer(s grpc.ServiceRegistrar, srv EconomyServer) {
	s.RegisterService(&EconomyServiceDesc, srv)
}

// Mutating reports whether a full method changes economy state. Rate limits apply to these only.
func Mutating(fullMethod string) bool {
	return mutating[fullMethod]
}

// Public reports whether a full method may be called without a token.
func Public(fullMethod string) bool {
	return public[fullMethod]
}

var mutating = set(
	MethodPurchasePack, MethodProposeTrade, MethodRespondToTrade, MethodCancelTrade, MethodIssueReward,
	MethodRegisterStudent, MethodCreateStaff, MethodUpsertCard, MethodCreatePack, MethodCreateEvent,
)

var public = set(MethodLeaderboard, MethodCatalog, MethodListPacks, MethodListEvents)

func set(methods ...string) map[string]bool {
	m := make(map[string]bool, len(methods))
	for _, name := range methods {
		m[FullMethod(name)] = true
	}
	return m
}
