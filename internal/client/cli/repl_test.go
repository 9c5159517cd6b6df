package cli

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/abhidhakal/cipher-drop/internal/client/client"
	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }

func (f *fakeExec) commands() map[string]command {
	track := func(name string, err error) handler {
		return func(ctx context.Context, args []string) error {
			f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
			return err
		}
	}
	return map[string]command{
		"login": {run: func(ctx context.Context, args []string) error {
			f.calls = append(f.calls, "login")
			f.loggedIn = true
			return nil
		}, usage: "login"},
		"info":    {run: track("info", nil), usage: "info <drop-id>"},
		"unlock":  {run: track("unlock", nil), usage: "unlock <drop-id>", needAuth: true},
		"topup":   {run: track("topup", errUsage), usage: "topup <dollars>", needAuth: true},
		"profile": {run: track("profile", client.ErrUnauthorized), usage: "profile", needAuth: true},
	}
}

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	out := captureOutput(t)
	input := strings.Join([]string{
		"help",
		"unlock d1",
		"login",
		"help",
		"unlock d1",
		"",
		"topup",
		"profile",
		"foobar",
		"exit",
		"unlock never",
	}, "\n")

	f := &fakeExec{}
	runREPL(context.Background(), f, func() string { return "" }, rdr(input))

	assert.Equal(t, []string{"login", "unlock d1", "topup", "profile"}, f.calls)

	text := strings.Join(*out, "\n")
	assert.Contains(t, text, "Available commands: info <drop-id>, login, exit")
	assert.Contains(t, text, "Available commands: info <drop-id>, profile, topup <dollars>, unlock <drop-id>, exit")
	assert.Contains(t, text, "Please log in first")
	assert.Contains(t, text, "Usage: topup <dollars>")
	assert.Contains(t, text, "Session expired or revoked")
	assert.Contains(t, text, "Unknown command: foobar")
	assert.Contains(t, text, "Bye!")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	captureOutput(t)
	f := &fakeExec{loggedIn: true}
	runREPL(context.Background(), f, func() string { return "" }, rdr("unlock d9"))
	assert.Equal(t, []string{"unlock d9"}, f.calls)
}
