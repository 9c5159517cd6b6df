package models

import "time"

type AuditAction string

const (
	AuditRegister             AuditAction = "REGISTER"
	AuditLogin                AuditAction = "LOGIN"
	AuditFailedLogin          AuditAction = "FAILED_LOGIN"
	AuditLogout               AuditAction = "LOGOUT"
	AuditMFAVerified          AuditAction = "MFA_VERIFIED"
	AuditFailedMFA            AuditAction = "FAILED_MFA"
	AuditMFAEnabled           AuditAction = "MFA_ENABLED"
	AuditMFADisabled          AuditAction = "MFA_DISABLED"
	AuditPasswordChanged      AuditAction = "PASSWORD_CHANGED"
	AuditPasswordResetRequest AuditAction = "PASSWORD_RESET_REQUESTED"
	AuditPasswordReset        AuditAction = "PASSWORD_RESET"
	AuditSessionRevoked       AuditAction = "SESSION_REVOKED"
	AuditSessionsRevoked      AuditAction = "OTHER_SESSIONS_REVOKED"
	AuditCreateDrop           AuditAction = "CREATE_DROP"
	AuditPaymentSuccess       AuditAction = "SECURE_TRANSACTION_SUCCESS"
	AuditDropDecrypted        AuditAction = "FILE_DECRYPTED"
	AuditDropDestroyed        AuditAction = "FILE_DECRYPTED_AND_DESTROYED"
	AuditWalletTopUp          AuditAction = "WALLET_TOPUP"
)

// AuditEvent is write-once.
type AuditEvent struct {
	ID        string
	Action    AuditAction
	ActorID   *string
	IP        string
	Metadata  map[string]any
	CreatedAt time.Time
}
