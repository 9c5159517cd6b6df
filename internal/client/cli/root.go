package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return ""
	}
	if a.email == "" {
		return " (logged in)"
	}
	return fmt.Sprintf(" (%s)", a.email)
}

func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to CipherDrop CLI (type 'help' for commands)")

	pctx, cancel := a.requestContext(ctx)
	if err := a.api.Ping(pctx); err != nil {
		fmt.Fprintln(a.out, describe(err))
	}
	cancel()

	runREPL(ctx, a, a.getStatus, a.reader)
}
