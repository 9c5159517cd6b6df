package repomanager

import (
	"context"
	"database/sql"

	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/auditevents"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/drops"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/passwordhistory"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/sessions"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a plain connection or to an
// open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	PasswordHistory(db dbx.DBTX) passwordhistory.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Drops(db dbx.DBTX) drops.Repository
	Audit(db dbx.DBTX) auditevents.Repository
}
