// Package cli provides the interactive CipherDrop command-line client: account
// management, sessions, wallet top-ups and escrow drops over gRPC.
//
// The REPL is started via App.Run, which blocks until the user exits.
package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/abhidhakal/cipher-drop/internal/client/client"
	"github.com/abhidhakal/cipher-drop/internal/client/config"

	api "github.com/abhidhakal/cipher-drop/internal/server/grpc"
)

// apiClient is the server surface the commands use. *client.GRPCClient
// implements it.
type apiClient interface {
	SessionToken() string
	Ping(ctx context.Context) error
	Register(ctx context.Context, email, password, captchaToken string) (string, error)
	Login(ctx context.Context, email, password, captchaToken string) (*api.LoginResponse, error)
	VerifyMFA(ctx context.Context, pendingRef, code string) (*api.LoginResponse, error)
	Logout(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, current, next string) error
	BeginMFAEnrollment(ctx context.Context) (*api.MFAEnrollmentResponse, error)
	ConfirmMFA(ctx context.Context, code string) error
	DisableMFA(ctx context.Context, code string) error
	Profile(ctx context.Context) (*api.ProfileResponse, error)
	ListSessions(ctx context.Context) ([]api.SessionInfo, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeOtherSessions(ctx context.Context) (int64, error)
	TopUp(ctx context.Context, amountCents int64) (int64, error)
	CreateDrop(ctx context.Context, req *api.CreateDropRequest) (*api.CreateDropResponse, error)
	UnlockDrop(ctx context.Context, dropID string) ([]byte, error)
	GetDropMeta(ctx context.Context, dropID string) (*api.DropInfo, error)
	ListDrops(ctx context.Context) ([]api.DropInfo, error)
	Close() error
}

type App struct {
	config *config.Config
	api    apiClient
	reader *bufio.Reader
	out    io.Writer
	email  string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewCipherDropClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return newApp(c, apiClient, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, api apiClient, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, reader: bufio.NewReader(in), out: out}
}

func (a *App) isLoggedIn() bool {
	return a.api.SessionToken() != ""
}

// requestContext bounds a single server call.
func (a *App) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) Run(ctx context.Context) {
	defer a.api.Close()
	a.Root(ctx)
}
