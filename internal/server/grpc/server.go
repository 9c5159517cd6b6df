// Package grpc exposes the CipherDrop services over gRPC. Messages are plain
// Go structs carried by a JSON codec; the service descriptor is declared by
// hand in service.go.
package grpc

import (
	"context"
	"net"

	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/services"
	"google.golang.org/grpc"
)

type sessionService interface {
	Validate(ctx context.Context, bearer string, meta models.ClientMeta) (*services.SessionContext, error)
	Refresh(ctx context.Context, sc *services.SessionContext) (string, error)
	List(ctx context.Context, sc *services.SessionContext) ([]*models.Session, error)
	Revoke(ctx context.Context, sc *services.SessionContext, sessionID string) error
	RevokeAllExcept(ctx context.Context, sc *services.SessionContext) (int64, error)
}

type authService interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	VerifyMFA(ctx context.Context, pendingRef, code string, client models.ClientMeta) (*services.LoginResult, error)
	Logout(ctx context.Context, sc *services.SessionContext) error
}

type accountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	ChangePassword(ctx context.Context, sc *services.SessionContext, current, next string) error
	RequestPasswordReset(ctx context.Context, email string, client models.ClientMeta) error
	ResetPassword(ctx context.Context, token, next string, client models.ClientMeta) error
	BeginMFAEnrollment(ctx context.Context, sc *services.SessionContext) (*services.Enrollment, error)
	ConfirmMFA(ctx context.Context, sc *services.SessionContext, code string) error
	DisableMFA(ctx context.Context, sc *services.SessionContext, code string) error
	Profile(ctx context.Context, sc *services.SessionContext) (*models.User, error)
}

type ledgerService interface {
	TopUp(ctx context.Context, sc *services.SessionContext, amountCents int64) (int64, error)
}

type escrowService interface {
	CreateDrop(ctx context.Context, sc *services.SessionContext, req services.CreateDropRequest) (*models.Drop, error)
	Unlock(ctx context.Context, sc *services.SessionContext, dropID string) ([]byte, error)
	GetDropMeta(ctx context.Context, dropID string) (*models.DropMeta, error)
	ListDrops(ctx context.Context, sc *services.SessionContext) ([]*models.DropMeta, error)
}

// Services groups the business services the server dispatches to.
type Services struct {
	Sessions sessionService
	Auth     authService
	Accounts accountService
	Ledger   ledgerService
	Escrow   escrowService
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	sessions sessionService
	auth     authService
	accounts accountService
	ledger   ledgerService
	escrow   escrowService
}

func NewGRPCServer(address string, l logging.Logger, svc Services) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		sessions: svc.Sessions,
		auth:     svc.Auth,
		accounts: svc.Accounts,
		ledger:   svc.Ledger,
		escrow:   svc.Escrow,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.sessionInterceptor),
	)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on an existing listener until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())
	return srv.Serve(listen)
}
