package grpcserver

import (
	"context"
	"runtime/debug"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/ifcoins/internal/auth"
	"github.com/and161185/ifcoins/internal/errs"
	"github.com/and161185/ifcoins/internal/limiter"
)

func remoteAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remoteAddr(ctx)),
		}
		if p, ok := auth.FromContext(ctx); ok {
			fields = append(fields, zap.String("user", p.ID))
		}
		// metadata only, never payloads
		if code == codes.Internal || code == codes.Unknown {
			log.Error("grpc", fields...)
		} else {
			log.Info("grpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

func bearerFromMD(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, v := range md.Get("authorization") {
		if tok, ok := auth.BearerToken(v); ok {
			return tok, true
		}
	}
	return "", false
}

// AuthUnary verifies "authorization: Bearer <jwt>" and stores the principal in the context.
// Public methods accept anonymous callers but still reject a bad token.
func AuthUnary(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if info.FullMethod == "/grpc.health.v1.Health/Check" || info.FullMethod == "/grpc.health.v1.Health/List" {
			return next(ctx, req)
		}
		tok, ok := bearerFromMD(ctx)
		if !ok {
			if Public(info.FullMethod) {
				return next(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, errs.Code(errs.ErrUnauthorized)+": no bearer token")
		}
		p, err := tokens.Verify(tok)
		if err != nil {
			return nil, toStatus(err)
		}
		return next(auth.WithPrincipal(ctx, p), req)
	}
}

// RateLimitUnary applies lim to mutating methods, keyed by principal or peer address. Limiter
// failures are logged and the call proceeds.
func RateLimitUnary(lim limiter.Limiter, log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if lim == nil || !Mutating(info.FullMethod) {
			return next(ctx, req)
		}
		key := remoteAddr(ctx)
		if p, ok := auth.FromContext(ctx); ok {
			key = p.ID
		}
		allowed, wait, err := lim.Allow(ctx, key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err), zap.String("method", info.FullMethod))
			return next(ctx, req)
		}
		if !allowed {
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", strconv.Itoa(int(wait.Seconds()))))
			return nil, toStatus(errs.ErrRateLimited)
		}
		return next(ctx, req)
	}
}
