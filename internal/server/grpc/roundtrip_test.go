package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/common"
	"github.com/abhidhakal/cipher-drop/internal/server/models"
	"github.com/abhidhakal/cipher-drop/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

func dialBuffered(t *testing.T, s *GRPCServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return conn
}

func TestRoundTrip_Ping(t *testing.T) {
	s, _ := newFakeServer()
	conn := dialBuffered(t, s)

	var out PingResponse
	require.NoError(t, conn.Invoke(context.Background(), FullMethod("Ping"), &Empty{}, &out))
	assert.Equal(t, "OK", out.Status)
}

func TestRoundTrip_AuthenticatedCallRefreshesBearer(t *testing.T) {
	s, f := newFakeServer()
	f.sessions.validated = &services.SessionContext{SessionID: "s1", UserID: "u1"}
	f.sessions.refreshed = "refreshed-bearer"
	f.escrow.content = []byte("top secret")
	conn := dialBuffered(t, s)

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.SessionTokenHeaderName, "bearer")
	var header metadata.MD
	var out UnlockDropResponse
	err := conn.Invoke(ctx, FullMethod("UnlockDrop"), &DropRequest{DropID: "d1"}, &out, grpc.Header(&header))
	require.NoError(t, err)

	assert.Equal(t, []byte("top secret"), out.Content)
	assert.Equal(t, []string{"refreshed-bearer"}, header.Get(common.RefreshedTokenHeaderName))
	assert.Equal(t, "bearer", f.sessions.gotBearer)
	assert.NotEmpty(t, f.sessions.gotMeta.IP)
}

func TestRoundTrip_ErrorsBecomeStatuses(t *testing.T) {
	s, f := newFakeServer()
	f.auth.loginErr = &common.LockedError{Remaining: 3 * time.Minute}
	conn := dialBuffered(t, s)

	var out LoginResponse
	err := conn.Invoke(context.Background(), FullMethod("Login"), &LoginRequest{Email: "a@example.com"}, &out)
	st := requireCode(t, err, codes.PermissionDenied)
	assert.Equal(t, "account locked, try again in 3 minutes", st.Message())

	var meta DropInfo
	err = conn.Invoke(context.Background(), FullMethod("ListDrops"), &Empty{}, &meta)
	requireCode(t, err, codes.Unauthenticated)
}

func TestRoundTrip_GetDropMetaIsPublic(t *testing.T) {
	s, f := newFakeServer()
	f.escrow.meta = &models.DropMeta{ID: "d1", Title: "report", PriceCents: 1000, Status: models.DropPending}
	conn := dialBuffered(t, s)

	var out DropInfo
	require.NoError(t, conn.Invoke(context.Background(), FullMethod("GetDropMeta"), &DropRequest{DropID: "d1"}, &out))
	assert.Equal(t, "report", out.Title)
	assert.Equal(t, int64(1000), out.PriceCents)
}
