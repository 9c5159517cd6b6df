// Package client is the gRPC client of the CipherDrop server. It keeps the
// current session bearer and swaps in the refreshed one the server returns
// after each authenticated call.
package client

import (
	"context"
	"sync"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	api "github.com/abhidhakal/cipher-drop/internal/server/grpc"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu           sync.Mutex
	sessionToken string
}

func withSessionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.SessionTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// SessionToken returns the current bearer, if any.
func (s *GRPCClient) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionToken
}

// SetSessionToken replaces the bearer sent with every call.
func (s *GRPCClient) SetSessionToken(token string) {
	s.mu.Lock()
	s.sessionToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) sessionTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withSessionToken(ctx, s.SessionToken())

	var header metadata.MD
	opts = append(opts, grpc.Header(&header))
	if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
		return err
	}

	if refreshed := header.Get(common.RefreshedTokenHeaderName); len(refreshed) > 0 && refreshed[0] != "" {
		s.SetSessionToken(refreshed[0])
	}
	return nil
}

func NewCipherDropClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

// InitGRPCClient dials lazily; extra options are appended to the defaults.
func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.sessionTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	if err := s.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return s.mapError(err)
	}
	return nil
}

// mapError turns transport statuses into client errors. Server messages are
// kept because they are already safe to show.
func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Unauthenticated:
		if st.Message() == common.ErrorUnauthorized.Error() || st.Message() == "missing token" {
			return ErrUnauthorized
		}
	}
	return &ServerError{Code: st.Code(), Message: st.Message()}
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	var resp api.PingResponse
	if err := s.call(ctx, "Ping", &api.Empty{}, &resp); err != nil {
		return err
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, email, password, captchaToken string) (string, error) {
	var resp api.RegisterResponse
	err := s.call(ctx, "Register", &api.RegisterRequest{Email: email, Password: password, CaptchaToken: captchaToken}, &resp)
	return resp.UserID, err
}

// Login starts authentication. When the returned state is "awaiting_mfa" the
// caller must follow up with VerifyMFA.
func (s *GRPCClient) Login(ctx context.Context, email, password, captchaToken string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := s.call(ctx, "Login", &api.LoginRequest{Email: email, Password: password, CaptchaToken: captchaToken}, &resp); err != nil {
		return nil, err
	}
	s.keepSession(&resp)
	return &resp, nil
}

func (s *GRPCClient) VerifyMFA(ctx context.Context, pendingRef, code string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := s.call(ctx, "VerifyMFA", &api.VerifyMFARequest{PendingRef: pendingRef, Code: code}, &resp); err != nil {
		return nil, err
	}
	s.keepSession(&resp)
	return &resp, nil
}

func (s *GRPCClient) keepSession(resp *api.LoginResponse) {
	if resp.SessionToken != "" {
		s.SetSessionToken(resp.SessionToken)
	}
}

func (s *GRPCClient) Logout(ctx context.Context) error {
	var resp api.MessageResponse
	err := s.call(ctx, "Logout", &api.Empty{}, &resp)
	s.SetSessionToken("")
	return err
}

func (s *GRPCClient) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var resp api.MessageResponse
	err := s.call(ctx, "RequestPasswordReset", &api.PasswordResetRequest{Email: email}, &resp)
	return resp.Message, err
}

func (s *GRPCClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	var resp api.MessageResponse
	return s.call(ctx, "ResetPassword", &api.ResetPasswordRequest{Token: token, NewPassword: newPassword}, &resp)
}

func (s *GRPCClient) ChangePassword(ctx context.Context, current, next string) error {
	var resp api.MessageResponse
	return s.call(ctx, "ChangePassword", &api.ChangePasswordRequest{CurrentPassword: current, NewPassword: next}, &resp)
}

func (s *GRPCClient) BeginMFAEnrollment(ctx context.Context) (*api.MFAEnrollmentResponse, error) {
	var resp api.MFAEnrollmentResponse
	if err := s.call(ctx, "BeginMFAEnrollment", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) ConfirmMFA(ctx context.Context, code string) error {
	var resp api.MessageResponse
	return s.call(ctx, "ConfirmMFA", &api.MFACodeRequest{Code: code}, &resp)
}

func (s *GRPCClient) DisableMFA(ctx context.Context, code string) error {
	var resp api.MessageResponse
	return s.call(ctx, "DisableMFA", &api.MFACodeRequest{Code: code}, &resp)
}

func (s *GRPCClient) Profile(ctx context.Context) (*api.ProfileResponse, error) {
	var resp api.ProfileResponse
	if err := s.call(ctx, "Profile", &api.Empty{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) ListSessions(ctx context.Context) ([]api.SessionInfo, error) {
	var resp api.ListSessionsResponse
	err := s.call(ctx, "ListSessions", &api.Empty{}, &resp)
	return resp.Sessions, err
}

func (s *GRPCClient) RevokeSession(ctx context.Context, sessionID string) error {
	var resp api.MessageResponse
	return s.call(ctx, "RevokeSession", &api.RevokeSessionRequest{SessionID: sessionID}, &resp)
}

func (s *GRPCClient) RevokeOtherSessions(ctx context.Context) (int64, error) {
	var resp api.RevokeOtherSessionsResponse
	err := s.call(ctx, "RevokeOtherSessions", &api.Empty{}, &resp)
	return resp.Revoked, err
}

func (s *GRPCClient) TopUp(ctx context.Context, amountCents int64) (int64, error) {
	var resp api.BalanceResponse
	err := s.call(ctx, "TopUp", &api.TopUpRequest{AmountCents: amountCents}, &resp)
	return resp.BalanceCents, err
}

func (s *GRPCClient) CreateDrop(ctx context.Context, req *api.CreateDropRequest) (*api.CreateDropResponse, error) {
	var resp api.CreateDropResponse
	if err := s.call(ctx, "CreateDrop", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UnlockDrop pays for the drop if needed and returns its plaintext.
func (s *GRPCClient) UnlockDrop(ctx context.Context, dropID string) ([]byte, error) {
	var resp api.UnlockDropResponse
	err := s.call(ctx, "UnlockDrop", &api.DropRequest{DropID: dropID}, &resp)
	return resp.Content, err
}

func (s *GRPCClient) GetDropMeta(ctx context.Context, dropID string) (*api.DropInfo, error) {
	var resp api.DropInfo
	if err := s.call(ctx, "GetDropMeta", &api.DropRequest{DropID: dropID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *GRPCClient) ListDrops(ctx context.Context) ([]api.DropInfo, error) {
	var resp api.ListDropsResponse
	err := s.call(ctx, "ListDrops", &api.Empty{}, &resp)
	return resp.Drops, err
}
