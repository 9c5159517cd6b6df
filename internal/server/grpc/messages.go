package grpc

import "time"

// Wire messages. Byte slices travel base64-encoded.

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type VerifyMFARequest struct {
	PendingRef string `json:"pending_ref"`
	Code       string `json:"code"`
}

// LoginResponse carries a pending reference while State is "awaiting_mfa"
// and a session bearer once it is "authenticated".
type LoginResponse struct {
	State        string    `json:"state"`
	PendingRef   string    `json:"pending_ref,omitempty"`
	SessionToken string    `json:"session_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type MFAEnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

type MFACodeRequest struct {
	Code string `json:"code"`
}

type ProfileResponse struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	MFAEnabled   bool   `json:"mfa_enabled"`
	BalanceCents int64  `json:"balance_cents"`
}

type SessionInfo struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

type RevokeOtherSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}

type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type BalanceResponse struct {
	BalanceCents int64 `json:"balance_cents"`
}

type CreateDropRequest struct {
	Title          string `json:"title"`
	Content        []byte `json:"content"`
	PriceCents     int64  `json:"price_cents"`
	RecipientEmail string `json:"recipient_email,omitempty"`
	OneTimeView    bool   `json:"one_time_view"`
}

type CreateDropResponse struct {
	DropID string `json:"drop_id"`
	Status string `json:"status"`
}

type DropRequest struct {
	DropID string `json:"drop_id"`
}

type UnlockDropResponse struct {
	Content []byte `json:"content"`
}

type DropInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PriceCents  int64     `json:"price_cents"`
	Status      string    `json:"status"`
	SenderEmail string    `json:"sender_email"`
	ReceiverID  string    `json:"receiver_id,omitempty"`
	OneTimeView bool      `json:"one_time_view"`
	CreatedAt   time.Time `json:"created_at"`
}

type ListDropsResponse struct {
	Drops []DropInfo `json:"drops"`
}
