package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/abhidhakal/cipher-drop/internal/client/client"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

type handler func(ctx context.Context, args []string) error

type command struct {
	run      handler
	usage    string
	needAuth bool
}

// execIface is what the REPL needs from the application.
type execIface interface {
	isLoggedIn() bool
	commands() map[string]command
}

func (a *App) commands() map[string]command {
	return map[string]command{
		"register":      {run: a.Register, usage: "register"},
		"login":         {run: a.Login, usage: "login"},
		"forgot":        {run: a.ForgotPassword, usage: "forgot"},
		"reset":         {run: a.ResetPassword, usage: "reset"},
		"info":          {run: a.DropInfo, usage: "info <drop-id>"},
		"logout":        {run: a.Logout, usage: "logout", needAuth: true},
		"profile":       {run: a.Profile, usage: "profile", needAuth: true},
		"passwd":        {run: a.ChangePassword, usage: "passwd", needAuth: true},
		"mfa-on":        {run: a.EnableMFA, usage: "mfa-on", needAuth: true},
		"mfa-off":       {run: a.DisableMFA, usage: "mfa-off", needAuth: true},
		"sessions":      {run: a.Sessions, usage: "sessions", needAuth: true},
		"revoke":        {run: a.Revoke, usage: "revoke <session-id>", needAuth: true},
		"revoke-others": {run: a.RevokeOthers, usage: "revoke-others", needAuth: true},
		"topup":         {run: a.TopUp, usage: "topup <dollars>", needAuth: true},
		"drop":          {run: a.CreateDrop, usage: "drop", needAuth: true},
		"unlock":        {run: a.Unlock, usage: "unlock <drop-id> [output-file]", needAuth: true},
		"drops":         {run: a.Drops, usage: "drops", needAuth: true},
	}
}

// helpText lists the commands usable in the current state. Account entry
// commands are hidden once logged in.
func helpText(cmds map[string]command, loggedIn bool) string {
	var usages []string
	for name, c := range cmds {
		switch {
		case loggedIn && (c.needAuth || name == "info"):
		case !loggedIn && !c.needAuth:
		default:
			continue
		}
		usages = append(usages, c.usage)
	}
	sort.Strings(usages)
	return "Available commands: " + strings.Join(usages, ", ") + ", exit"
}

// describe turns a command error into a line for the user.
func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrUnavailable):
		return "Server unavailable, try again later"
	case errors.Is(err, client.ErrUnauthorized):
		return "Session expired or revoked, please log in again"
	case errors.Is(err, errUsage):
		return "Wrong arguments"
	}
	return "Error: " + err.Error()
}

// runREPL reads a command per line and dispatches it until EOF or exit.
// Handler errors are reported and the loop continues.
//
// Commands prompt through the same reader, so the loop never reads ahead.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	cmds := a.commands()
	for {
		printlnFn(fmt.Sprintf("cipherdrop%s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			printlnFn(helpText(cmds, a.isLoggedIn()))
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		c, ok := cmds[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}
		if c.needAuth && !a.isLoggedIn() {
			printlnFn("Please log in first")
			continue
		}
		if err := c.run(ctx, args); err != nil {
			printlnFn(describe(err))
			if errors.Is(err, errUsage) {
				printlnFn("Usage:", c.usage)
			}
		}
	}
}
