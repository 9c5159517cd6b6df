package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "cipherdrop.v1.CipherDrop"

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// cipherDropServer is the handler type recorded in the service descriptor.
type cipherDropServer interface {
	Ping(context.Context, *Empty) (*PingResponse, error)
}

// unary adapts a typed handler method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(*GRPCServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*cipherDropServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", (*GRPCServer).Ping),
		unary("Register", (*GRPCServer).Register),
		unary("Login", (*GRPCServer).Login),
		unary("VerifyMFA", (*GRPCServer).VerifyMFA),
		unary("Logout", (*GRPCServer).Logout),
		unary("RequestPasswordReset", (*GRPCServer).RequestPasswordReset),
		unary("ResetPassword", (*GRPCServer).ResetPassword),
		unary("ChangePassword", (*GRPCServer).ChangePassword),
		unary("BeginMFAEnrollment", (*GRPCServer).BeginMFAEnrollment),
		unary("ConfirmMFA", (*GRPCServer).ConfirmMFA),
		unary("DisableMFA", (*GRPCServer).DisableMFA),
		unary("Profile", (*GRPCServer).Profile),
		unary("ListSessions", (*GRPCServer).ListSessions),
		unary("RevokeSession", (*GRPCServer).RevokeSession),
		unary("RevokeOtherSessions", (*GRPCServer).RevokeOtherSessions),
		unary("TopUp", (*GRPCServer).TopUp),
		unary("CreateDrop", (*GRPCServer).CreateDrop),
		unary("UnlockDrop", (*GRPCServer).UnlockDrop),
		unary("GetDropMeta", (*GRPCServer).GetDropMeta),
		unary("ListDrops", (*GRPCServer).ListDrops),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cipherdrop.v1",
}

// publicMethods run without a session bearer.
var publicMethods = map[string]bool{
	FullMethod("Ping"):                 true,
	FullMethod("Register"):             true,
	FullMethod("Login"):                true,
	FullMethod("VerifyMFA"):            true,
	FullMethod("RequestPasswordReset"): true,
	FullMethod("ResetPassword"):        true,
	FullMethod("GetDropMeta"):          true,
}
