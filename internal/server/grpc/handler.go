package grpc

import (
	"context"

	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/services"
)

// resetAcknowledgement is returned for every reset request, known email or not.
const resetAcknowledgement = "if an account exists for this email, a reset link has been sent"

func (s *GRPCServer) Ping(ctx context.Context, req *Empty) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	s.logger.Info(ctx, "Registration request")

	user, err := s.accounts.Register(ctx, services.RegisterRequest{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		Client:       clientFrom(ctx),
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	s.logger.Info(ctx, "Registered", "user_id", user.ID)
	return &RegisterResponse{UserID: user.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	res, err := s.auth.Login(ctx, services.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		Client:       clientFrom(ctx),
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}
	return loginResponse(res), nil
}

func (s *GRPCServer) VerifyMFA(ctx context.Context, req *VerifyMFARequest) (*LoginResponse, error) {
	res, err := s.auth.VerifyMFA(ctx, req.PendingRef, req.Code, clientFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "VerifyMFA", err)
	}
	return loginResponse(res), nil
}

func loginResponse(res *services.LoginResult) *LoginResponse {
	out := &LoginResponse{State: res.State.String(), PendingRef: res.PendingRef}
	if res.Session != nil {
		out.SessionToken = res.Session.Bearer
		out.ExpiresAt = res.Session.Session.ExpiresAt
	}
	return out
}

func (s *GRPCServer) Logout(ctx context.Context, req *Empty) (*MessageResponse, error) {
	if err := s.auth.Logout(ctx, sessionFrom(ctx)); err != nil {
		return nil, s.toStatus(ctx, "Logout", err)
	}
	return &MessageResponse{Message: "logged out"}, nil
}

func (s *GRPCServer) RequestPasswordReset(ctx context.Context, req *PasswordResetRequest) (*MessageResponse, error) {
	if err := s.accounts.RequestPasswordReset(ctx, req.Email, clientFrom(ctx)); err != nil {
		return nil, s.toStatus(ctx, "RequestPasswordReset", err)
	}
	return &MessageResponse{Message: resetAcknowledgement}, nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*MessageResponse, error) {
	if err := s.accounts.ResetPassword(ctx, req.Token, req.NewPassword, clientFrom(ctx)); err != nil {
		return nil, s.toStatus(ctx, "ResetPassword", err)
	}
	return &MessageResponse{Message: "password updated"}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*MessageResponse, error) {
	err := s.accounts.ChangePassword(ctx, sessionFrom(ctx), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return nil, s.toStatus(ctx, "ChangePassword", err)
	}
	return &MessageResponse{Message: "password updated"}, nil
}

func (s *GRPCServer) BeginMFAEnrollment(ctx context.Context, req *Empty) (*MFAEnrollmentResponse, error) {
	enr, err := s.accounts.BeginMFAEnrollment(ctx, sessionFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "BeginMFAEnrollment", err)
	}
	return &MFAEnrollmentResponse{Secret: enr.Secret, ProvisioningURI: enr.ProvisioningURI}, nil
}

func (s *GRPCServer) ConfirmMFA(ctx context.Context, req *MFACodeRequest) (*MessageResponse, error) {
	if err := s.accounts.ConfirmMFA(ctx, sessionFrom(ctx), req.Code); err != nil {
		return nil, s.toStatus(ctx, "ConfirmMFA", err)
	}
	return &MessageResponse{Message: "mfa enabled"}, nil
}

func (s *GRPCServer) DisableMFA(ctx context.Context, req *MFACodeRequest) (*MessageResponse, error) {
	if err := s.accounts.DisableMFA(ctx, sessionFrom(ctx), req.Code); err != nil {
		return nil, s.toStatus(ctx, "DisableMFA", err)
	}
	return &MessageResponse{Message: "mfa disabled"}, nil
}

func (s *GRPCServer) Profile(ctx context.Context, req *Empty) (*ProfileResponse, error) {
	u, err := s.accounts.Profile(ctx, sessionFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "Profile", err)
	}
	return &ProfileResponse{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		MFAEnabled:   u.MFAEnabled,
		BalanceCents: u.BalanceCents,
	}, nil
}

func (s *GRPCServer) ListSessions(ctx context.Context, req *Empty) (*ListSessionsResponse, error) {
	sc := sessionFrom(ctx)
	list, err := s.sessions.List(ctx, sc)
	if err != nil {
		return nil, s.toStatus(ctx, "ListSessions", err)
	}

	out := &ListSessionsResponse{Sessions: make([]SessionInfo, 0, len(list))}
	for _, rec := range list {
		out.Sessions = append(out.Sessions, SessionInfo{
			ID:         rec.ID,
			Device:     rec.DeviceName,
			IP:         rec.IP,
			CreatedAt:  rec.CreatedAt,
			LastActive: rec.LastActive,
			ExpiresAt:  rec.ExpiresAt,
			Current:    sc != nil && rec.ID == sc.SessionID,
		})
	}
	return out, nil
}

func (s *GRPCServer) RevokeSession(ctx context.Context, req *RevokeSessionRequest) (*MessageResponse, error) {
	if err := s.sessions.Revoke(ctx, sessionFrom(ctx), req.SessionID); err != nil {
		return nil, s.toStatus(ctx, "RevokeSession", err)
	}
	return &MessageResponse{Message: "session revoked"}, nil
}

func (s *GRPCServer) RevokeOtherSessions(ctx context.Context, req *Empty) (*RevokeOtherSessionsResponse, error) {
	n, err := s.sessions.RevokeAllExcept(ctx, sessionFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "RevokeOtherSessions", err)
	}
	return &RevokeOtherSessionsResponse{Revoked: n}, nil
}

func (s *GRPCServer) TopUp(ctx context.Context, req *TopUpRequest) (*BalanceResponse, error) {
	balance, err := s.ledger.TopUp(ctx, sessionFrom(ctx), req.AmountCents)
	if err != nil {
		return nil, s.toStatus(ctx, "TopUp", err)
	}
	return &BalanceResponse{BalanceCents: balance}, nil
}

func (s *GRPCServer) CreateDrop(ctx context.Context, req *CreateDropRequest) (*CreateDropResponse, error) {
	d, err := s.escrow.CreateDrop(ctx, sessionFrom(ctx), services.CreateDropRequest{
		Title:          req.Title,
		Content:        req.Content,
		PriceCents:     req.PriceCents,
		RecipientEmail: req.RecipientEmail,
		OneTimeView:    req.OneTimeView,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "CreateDrop", err)
	}
	return &CreateDropResponse{DropID: d.ID, Status: string(d.Status)}, nil
}

func (s *GRPCServer) UnlockDrop(ctx context.Context, req *DropRequest) (*UnlockDropResponse, error) {
	content, err := s.escrow.Unlock(ctx, sessionFrom(ctx), req.DropID)
	if err != nil {
		return nil, s.toStatus(ctx, "UnlockDrop", err)
	}
	return &UnlockDropResponse{Content: content}, nil
}

func (s *GRPCServer) GetDropMeta(ctx context.Context, req *DropRequest) (*DropInfo, error) {
	m, err := s.escrow.GetDropMeta(ctx, req.DropID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetDropMeta", err)
	}
	info := dropInfo(m)
	return &info, nil
}

func (s *GRPCServer) ListDrops(ctx context.Context, req *Empty) (*ListDropsResponse, error) {
	list, err := s.escrow.ListDrops(ctx, sessionFrom(ctx))
	if err != nil {
		return nil, s.toStatus(ctx, "ListDrops", err)
	}
	out := &ListDropsResponse{Drops: make([]DropInfo, 0, len(list))}
	for _, m := range list {
		out.Drops = append(out.Drops, dropInfo(m))
	}
	return out, nil
}

func dropInfo(m *models.DropMeta) DropInfo {
	info := DropInfo{
		ID:          m.ID,
		Title:       m.Title,
		PriceCents:  m.PriceCents,
		Status:      string(m.Status),
		SenderEmail: m.SenderEmail,
		OneTimeView: m.OneTimeView,
		CreatedAt:   m.CreatedAt,
	}
	if m.ReceiverID != nil {
		info.ReceiverID = *m.ReceiverID
	}
	return info
}
