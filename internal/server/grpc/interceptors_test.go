package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	ic := LoggingUnary(zaptest.NewLogger(t))
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodMe)}

	resp, err := ic(ctx, "req", info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	wantErr := errors.New("boom")
	_, err = ic(ctx, "req", info, func(context.Context, any) (any, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodPurchasePack)}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { panic("oh no") })
	require.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func withBearer(tok string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+tok))
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	ic := AuthUnary(tokens)
	good, _, err := tokens.Issue(auth.Principal{ID: "u1"})
	require.NoError(t, err)
	bad, _, err := auth.NewTokens([]byte("other"), time.Hour).Issue(auth.Principal{ID: "u1"})
	require.NoError(t, err)

	var seen auth.Principal
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = auth.FromContext(ctx)
		return "ok", nil
	}
	private := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodMe)}
	public := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodCatalog)}

	_, err = ic(withBearer(good), nil, private, h)
	require.NoError(t, err)
	require.Equal(t, "u1", seen.ID)

	_, err = ic(context.Background(), nil, private, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	require.ErrorIs(t, FromStatus(err), errs.ErrUnauthorized)

	_, err = ic(withBearer(bad), nil, private, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	seen = auth.Principal{}
	_, err = ic(context.Background(), nil, public, h)
	require.NoError(t, err)
	require.Empty(t, seen.ID)

	_, err = ic(withBearer(bad), nil, public, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allow, 10 * time.Second, s.err
}

func TestRateLimitUnary(t *testing.T) {
	t.Parallel()

	h := func(context.Context, any) (any, error) { return "ok", nil }
	ctx := auth.WithPrincipal(context.Background(), auth.Principal{ID: "u1"})
	buy := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodPurchasePack)}
	read := &grpc.UnaryServerInfo{FullMethod: FullMethod(MethodCatalog)}

	deny := &stubLimiter{}
	ic := RateLimitUnary(deny, zaptest.NewLogger(t))
	_, err := ic(ctx, nil, buy, h)
	require.Equal(t, codes.ResourceExhausted, status.Code(err))
	require.ErrorIs(t, FromStatus(err), errs.ErrRateLimited)
	require.Equal(t, []string{"u1"}, deny.keys)

	_, err = ic(ctx, nil, read, h)
	require.NoError(t, err)
	require.Len(t, deny.keys, 1)

	broken := &stubLimiter{err: errors.New("redis down")}
	_, err = RateLimitUnary(broken, zaptest.NewLogger(t))(ctx, nil, buy, h)
	require.NoError(t, err)

	_, err = RateLimitUnary(nil, zaptest.NewLogger(t))(ctx, nil, buy, h)
	require.NoError(t, err)
}
