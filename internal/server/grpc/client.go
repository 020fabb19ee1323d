package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/ifcoins/internal/api"
)

// Client is a typed client for ifcoins.v1.Economy. Errors wrap the matching errs sentinel.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewClient wraps a connection. token, if non-empty, is sent as a bearer token on every call.
func NewClient(cc grpc.ClientConnInterface, token string) *Client {
	return &Client{cc: cc, token: token}
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, in *Req) (*Resp, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(Resp)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

func (c *Client) PurchasePack(ctx context.Context, packID string) (*api.PurchasePackResponse, error) {
	return invoke[api.PurchasePackRequest, api.PurchasePackResponse](ctx, c, MethodPurchasePack, &api.PurchasePackRequest{PackID: packID})
}

func (c *Client) ProposeTrade(ctx context.Context, in *api.ProposeTradeRequest) (*api.Trade, error) {
	return invoke[api.ProposeTradeRequest, api.Trade](ctx, c, MethodProposeTrade, in)
}

func (c *Client) RespondToTrade(ctx context.Context, tradeID, decision string) (*api.Trade, error) {
	return invoke[api.RespondToTradeRequest, api.Trade](ctx, c, MethodRespondToTrade,
		&api.RespondToTradeRequest{TradeID: tradeID, Decision: decision})
}

func (c *Client) CancelTrade(ctx context.Context, tradeID string) (*api.Trade, error) {
	return invoke[api.TradeRequest, api.Trade](ctx, c, MethodCancelTrade, &api.TradeRequest{TradeID: tradeID})
}

func (c *Client) GetTrade(ctx context.Context, tradeID string) (*api.Trade, error) {
	return invoke[api.TradeRequest, api.Trade](ctx, c, MethodGetTrade, &api.TradeRequest{TradeID: tradeID})
}

func (c *Client) ListTrades(ctx context.Context, in *api.ListTradesRequest) (*api.ListTradesResponse, error) {
	return invoke[api.ListTradesRequest, api.ListTradesResponse](ctx, c, MethodListTrades, in)
}

func (c *Client) IssueReward(ctx context.Context, in *api.IssueRewardRequest) (*api.IssueRewardResponse, error) {
	return invoke[api.IssueRewardRequest, api.IssueRewardResponse](ctx, c, MethodIssueReward, in)
}

func (c *Client) ListRewards(ctx context.Context, studentID string) (*api.ListRewardsResponse, error) {
	return invoke[api.ListRewardsRequest, api.ListRewardsResponse](ctx, c, MethodListRewards, &api.ListRewardsRequest{StudentID: studentID})
}

func (c *Client) Me(ctx context.Context) (*api.User, error) {
	return invoke[api.Empty, api.User](ctx, c, MethodMe, &api.Empty{})
}

func (c *Client) Collection(ctx context.Context) (*api.CollectionResponse, error) {
	return invoke[api.Empty, api.CollectionResponse](ctx, c, MethodCollection, &api.Empty{})
}

func (c *Client) Leaderboard(ctx context.Context, kind string, limit int) (*api.LeaderboardResponse, error) {
	return invoke[api.LeaderboardRequest, api.LeaderboardResponse](ctx, c, MethodLeaderboard, &api.LeaderboardRequest{Kind: kind, Limit: limit})
}

func (c *Client) Catalog(ctx context.Context) (*api.CatalogResponse, error) {
	return invoke[api.Empty, api.CatalogResponse](ctx, c, MethodCatalog, &api.Empty{})
}

func (c *Client) ListPacks(ctx context.Context) (*api.PacksResponse, error) {
	return invoke[api.Empty, api.PacksResponse](ctx, c, MethodListPacks, &api.Empty{})
}

func (c *Client) ListEvents(ctx context.Context) (*api.EventsResponse, error) {
	return invoke[api.Empty, api.EventsResponse](ctx, c, MethodListEvents, &api.Empty{})
}

func (c *Client) RegisterStudent(ctx context.Context, in *api.RegisterStudentRequest) (*api.User, error) {
	return invoke[api.RegisterStudentRequest, api.User](ctx, c, MethodRegisterStudent, in)
}

func (c *Client) CreateStaff(ctx context.Context, in *api.CreateStaffRequest) (*api.User, error) {
	return invoke[api.CreateStaffRequest, api.User](ctx, c, MethodCreateStaff, in)
}

func (c *Client) UpsertCard(ctx context.Context, in *api.Card) (*api.Card, error) {
	return invoke[api.Card, api.Card](ctx, c, MethodUpsertCard, in)
}

func (c *Client) CreatePack(ctx context.Context, in *api.Pack) (*api.Pack, error) {
	return invoke[api.Pack, api.Pack](ctx, c, MethodCreatePack, in)
}

func (c *Client) CreateEvent(ctx context.Context, in *api.Event) (*api.Event, error) {
	return invoke[api.Event, api.Event](ctx, c, MethodCreateEvent, in)
}
