// Package server initializes and runs the CipherDrop server: it opens the
// database, applies migrations, builds the services and serves gRPC until the
// process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/cryptox"
	"github.com/abhidhakal/cipher-drop/internal/dbx"
	"github.com/abhidhakal/cipher-drop/internal/logging"
	"github.com/abhidhakal/cipher-drop/internal/server/captcha"
	"github.com/abhidhakal/cipher-drop/internal/server/config"
	"github.com/abhidhakal/cipher-drop/internal/server/notify"
	"github.com/abhidhakal/cipher-drop/internal/server/ratelimit"
	"github.com/abhidhakal/cipher-drop/internal/server/repositories/repomanager"
	"github.com/abhidhakal/cipher-drop/internal/server/services"

	gs "github.com/abhidhakal/cipher-drop/internal/server/grpc"
)

const limiterSweepInterval = time.Minute

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	limiter  *ratelimit.Limiter
	services gs.Services
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	vault, err := cryptox.NewVault(c.VaultKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	var verifier captcha.Verifier = captcha.Disabled{}
	if c.CaptchaSecret != "" {
		verifier = captcha.NewRecaptcha(c.CaptchaSecret, c.CaptchaVerifyURL)
	} else {
		logger.Warn(ctx, "captcha secret not set, verification disabled")
	}

	tx := dbx.NewSQLTransactor(db)
	limiter := ratelimit.New()
	notifier := notify.NewLogNotifier(logger)

	sessions := services.NewSessionService(tx, rm, c, logger.With("service", "sessions"))
	ledger := services.NewLedgerService(tx, rm, c, logger.With("service", "ledger"))

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		limiter: limiter,
		services: gs.Services{
			Sessions: sessions,
			Auth:     services.NewAuthService(tx, rm, sessions, limiter, verifier, c, logger.With("service", "auth")),
			Accounts: services.NewAccountService(tx, rm, limiter, verifier, notifier, c, logger.With("service", "accounts")),
			Ledger:   ledger,
			Escrow:   services.NewEscrowService(tx, rm, vault, ledger, logger.With("service", "escrow")),
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.services)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or the parent context is cancelled.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.limiter.Run(ctx, limiterSweepInterval)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
