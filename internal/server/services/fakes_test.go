package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/auditevents"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/drops"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/passwordhistory"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/sessions"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/users"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for Postgres. Transactions are
// serialized by txMu, which plays the role of the row locks, and a failed
// transaction restores the snapshot taken when it began.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users    map[string]models.User
	history  map[string][]string
	sessions map[string]models.Session
	drops    map[string]models.Drop
	audit    []models.AuditEvent

	failAudit error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]models.User{},
		history:  map[string][]string{},
		sessions: map[string]models.Session{},
		drops:    map[string]models.Drop{},
	}
}

type snapshot struct {
	users    map[string]models.User
	history  map[string][]string
	sessions map[string]models.Session
	drops    map[string]models.Drop
	audit    []models.AuditEvent
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := snapshot{
		users:    make(map[string]models.User, len(m.users)),
		history:  make(map[string][]string, len(m.history)),
		sessions: make(map[string]models.Session, len(m.sessions)),
		drops:    make(map[string]models.Drop, len(m.drops)),
		audit:    append([]models.AuditEvent(nil), m.audit...),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.history {
		s.history[k] = append([]string(nil), v...)
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	for k, v := range m.drops {
		s.drops[k] = v
	}
	return s
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users, m.history, m.sessions, m.drops, m.audit = s.users, s.history, s.sessions, s.drops, s.audit
}

func (m *memStore) Conn() dbx.DBTX { return nil }

func (m *memStore) InTx(ctx context.Context, fn dbx.TxFunc) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := m.snapshot()
	err := fn(ctx, nil)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.restore(snap)
	}
	return err
}

// --- inspection helpers ---

func (m *memStore) addUser(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	m.users[u.ID] = u
	return &u
}

func (m *memStore) user(id string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memStore) drop(id string) (models.Drop, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drops[id]
	return d, ok
}

func (m *memStore) session(id string) models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) actions() []models.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditAction, 0, len(m.audit))
	for _, e := range m.audit {
		out = append(out, e.Action)
	}
	return out
}

func (m *memStore) countAction(a models.AuditAction) int {
	n := 0
	for _, got := range m.actions() {
		if got == a {
			n++
		}
	}
	return n
}

// --- repository manager ---

type fakeManager struct{ m *memStore }

func (f fakeManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (f fakeManager) Users(dbx.DBTX) users.Repository                     { return memUsers{f.m} }
func (f fakeManager) PasswordHistory(dbx.DBTX) passwordhistory.Repository { return memHistory{f.m} }
func (f fakeManager) Sessions(dbx.DBTX) sessions.Repository               { return memSessions{f.m} }
func (f fakeManager) Drops(dbx.DBTX) drops.Repository                     { return memDrops{f.m} }
func (f fakeManager) Audit(dbx.DBTX) auditevents.Repository               { return memAudit{f.m} }

// --- users ---

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	c := *u
	c.ID = uuid.NewString()
	r.m.users[c.ID] = c
	return &c, nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByResetTokenHash(_ context.Context, hash string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) update(id string, fn func(u *models.User) error) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	r.m.users[id] = u
	return nil
}

func (r memUsers) RegisterFailedLogin(_ context.Context, id string, threshold int, lockUntil time.Time) (*time.Time, error) {
	var locked *time.Time
	err := r.update(id, func(u *models.User) error {
		u.FailedAttempts++
		if u.FailedAttempts >= threshold {
			u.FailedAttempts = 0
			t := lockUntil
			u.LockedUntil = &t
			locked = &t
		}
		return nil
	})
	return locked, err
}

func (r memUsers) ResetFailedLogins(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) error {
		u.FailedAttempts = 0
		u.LockedUntil = nil
		return nil
	})
}

func (r memUsers) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.PasswordHash = hash
		u.PasswordLastChanged = changedAt
		u.ResetTokenHash, u.ResetTokenExpires = nil, nil
		u.FailedAttempts, u.LockedUntil = 0, nil
		return nil
	})
}

func (r memUsers) ResetPassword(_ context.Context, id, tokenHash, hash string, changedAt time.Time) error {
	return r.update(id, func(u *models.User) error {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash ||
			u.ResetTokenExpires == nil || !u.ResetTokenExpires.After(changedAt) {
			return common.ErrorNotFound
		}
		u.PasswordHash = hash
		u.PasswordLastChanged = changedAt
		u.ResetTokenHash, u.ResetTokenExpires = nil, nil
		u.FailedAttempts, u.LockedUntil = 0, nil
		return nil
	})
}

func (r memUsers) SetResetToken(_ context.Context, id, hash string, expires time.Time) error {
	return r.update(id, func(u *models.User) error {
		u.ResetTokenHash, u.ResetTokenExpires = &hash, &expires
		return nil
	})
}

func (r memUsers) SetMFA(_ context.Context, id string, secret *string, enabled bool) error {
	return r.update(id, func(u *models.User) error {
		u.MFASecret, u.MFAEnabled = secret, enabled
		return nil
	})
}

func (r memUsers) AdjustBalance(_ context.Context, id string, delta int64) (int64, error) {
	var balance int64
	err := r.update(id, func(u *models.User) error {
		if u.BalanceCents+delta < 0 {
			return common.ErrNegativeBalance
		}
		u.BalanceCents += delta
		balance = u.BalanceCents
		return nil
	})
	return balance, err
}

// --- password history ---

type memHistory struct{ m *memStore }

func (r memHistory) Append(_ context.Context, userID, hash string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.history[userID] = append([]string{hash}, r.m.history[userID]...)
	return nil
}

func (r memHistory) Recent(_ context.Context, userID string, n int) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h := r.m.history[userID]
	if len(h) > n {
		h = h[:n]
	}
	return append([]string(nil), h...), nil
}

func (r memHistory) Prune(_ context.Context, userID string, keep int) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h := r.m.history[userID]
	if len(h) <= keep {
		return 0, nil
	}
	r.m.history[userID] = h[:keep]
	return int64(len(h) - keep), nil
}

// --- sessions ---

type memSessions struct{ m *memStore }

func (r memSessions) Create(_ context.Context, s *models.Session) (*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *s
	c.ID = uuid.NewString()
	c.LastActive = c.CreatedAt
	r.m.sessions[c.ID] = c
	return &c, nil
}

func (r memSessions) GetByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sessions {
		if s.TokenHash == hash {
			return &s, nil
		}
	}
	return nil, common.ErrSessionNotFound
}

func (r memSessions) Touch(_ context.Context, id string, lastActive, expiresAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.Revoked {
		return common.ErrSessionNotFound
	}
	s.LastActive, s.ExpiresAt = lastActive, expiresAt
	r.m.sessions[id] = s
	return nil
}

func (r memSessions) Revoke(_ context.Context, userID, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || s.UserID != userID {
		return common.ErrSessionNotFound
	}
	s.Revoked = true
	r.m.sessions[id] = s
	return nil
}

func (r memSessions) revokeWhere(userID string, skip string) int64 {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for id, s := range r.m.sessions {
		if s.UserID == userID && id != skip && !s.Revoked {
			s.Revoked = true
			r.m.sessions[id] = s
			n++
		}
	}
	return n
}

func (r memSessions) RevokeAllExcept(_ context.Context, userID, exceptID string) (int64, error) {
	return r.revokeWhere(userID, exceptID), nil
}

func (r memSessions) RevokeAll(_ context.Context, userID string) (int64, error) {
	return r.revokeWhere(userID, ""), nil
}

func (r memSessions) ListActive(_ context.Context, userID string, now time.Time) ([]*models.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Session
	for _, s := range r.m.sessions {
		if s.UserID == userID && s.Active(now) {
			c := s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

// --- drops ---

type memDrops struct{ m *memStore }

func (r memDrops) Create(_ context.Context, d *models.Drop) (*models.Drop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c := *d
	c.ID = uuid.NewString()
	r.m.drops[c.ID] = c
	return &c, nil
}

func (r memDrops) GetForUpdate(_ context.Context, id string) (*models.Drop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.drops[id]
	if !ok {
		return nil, common.ErrDropNotFound
	}
	return &d, nil
}

func (r memDrops) meta(d models.Drop) *models.DropMeta {
	return &models.DropMeta{
		ID:          d.ID,
		Title:       d.Title,
		PriceCents:  d.PriceCents,
		Status:      d.Status,
		SenderEmail: r.m.users[d.SenderID].Email,
		ReceiverID:  d.ReceiverID,
		OneTimeView: d.OneTimeView,
		CreatedAt:   d.CreatedAt,
	}
}

func (r memDrops) GetMeta(_ context.Context, id string) (*models.DropMeta, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.drops[id]
	if !ok {
		return nil, common.ErrDropNotFound
	}
	return r.meta(d), nil
}

func (r memDrops) MarkPaid(_ context.Context, id, receiverID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.drops[id]
	if !ok || d.Status != models.DropPending {
		return drops.ErrNotPending
	}
	d.Status = models.DropPaid
	if d.ReceiverID == nil {
		rid := receiverID
		d.ReceiverID = &rid
	}
	r.m.drops[id] = d
	return nil
}

func (r memDrops) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.drops[id]; !ok {
		return common.ErrDropNotFound
	}
	delete(r.m.drops, id)
	return nil
}

func (r memDrops) ListForUser(_ context.Context, userID string) ([]*models.DropMeta, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.DropMeta
	for _, d := range r.m.drops {
		if d.SenderID == userID || (d.ReceiverID != nil && *d.ReceiverID == userID) {
			out = append(out, r.meta(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- audit ---

type memAudit struct{ m *memStore }

func (r memAudit) Append(_ context.Context, e *models.AuditEvent) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.failAudit != nil {
		return r.m.failAudit
	}
	c := *e
	c.ID = uuid.NewString()
	r.m.audit = append(r.m.audit, c)
	return nil
}

func (r memAudit) ListBetween(_ context.Context, from, to time.Time, limit int) ([]*models.AuditEvent, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range r.m.audit {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) && len(out) < limit {
			c := e
			out = append(out, &c)
		}
	}
	return out, nil
}
