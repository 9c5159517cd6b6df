package grpc

import (
	"context"
	"runtime/debug"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/netx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const (
	sessionKey ctxKey = "session"
	clientKey  ctxKey = "client"
)

func sessionFrom(ctx context.Context) *services.SessionContext {
	sc, _ := ctx.Value(sessionKey).(*services.SessionContext)
	return sc
}

func clientFrom(ctx context.Context) models.ClientMeta {
	c, _ := ctx.Value(clientKey).(models.ClientMeta)
	return c
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// clientMeta reads the caller address and user agent from the transport.
func clientMeta(ctx context.Context) models.ClientMeta {
	md, _ := metadata.FromIncomingContext(ctx)
	var meta models.ClientMeta
	if p, ok := peer.FromContext(ctx); ok {
		meta.IP = netx.ClientIP(p.Addr, firstValue(md, "x-forwarded-for"))
	} else {
		meta.IP = netx.ClientIP(nil, firstValue(md, "x-forwarded-for"))
	}
	meta.UserAgent = firstValue(md, "user-agent")
	return meta
}

func (s *GRPCServer) sessionInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	meta := clientMeta(ctx)
	ctx = context.WithValue(ctx, clientKey, meta)

	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	bearer := firstValue(md, common.SessionTokenHeaderName)
	if bearer == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	sc, err := s.sessions.Validate(ctx, bearer, meta)
	if err != nil {
		return nil, s.toStatus(ctx, info.FullMethod, err)
	}
	ctx = context.WithValue(ctx, sessionKey, sc)

	resp, err := handler(ctx, req)
	if err != nil || sc.Legacy || info.FullMethod == FullMethod("Logout") {
		return resp, err
	}

	refreshed, rerr := s.sessions.Refresh(ctx, sc)
	if rerr != nil {
		s.logger.Debug(ctx, "session refresh skipped", "method", info.FullMethod, "error", rerr)
		return resp, nil
	}
	if err := grpc.SetHeader(ctx, metadata.Pairs(common.RefreshedTokenHeaderName, refreshed)); err != nil {
		s.logger.Debug(ctx, "unable to set refresh header", "error", err)
	}
	return resp, nil
}

// recoverInterceptor turns handler panics into internal errors.
func (s *GRPCServer) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "panic in handler", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			resp, err = nil, status.Error(codes.Internal, common.ErrorInternal.Error())
		}
	}()
	return handler(ctx, req)
}
