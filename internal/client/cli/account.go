package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

var errUsage = errors.New("wrong number of arguments")

// formatCents renders an amount of cents as dollars.
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}

// parseCents accepts "12", "12.5" or "12.50" dollars.
func parseCents(s string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(strings.TrimPrefix(s, "$"), ".")
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || dollars < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := int64(0)
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}
	return dollars*100 + cents, nil
}

func (a *App) Profile(ctx context.Context, args []string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	p, err := a.api.Profile(ctx)
	if err != nil {
		return err
	}
	mfa := "off"
	if p.MFAEnabled {
		mfa = "on"
	}
	fmt.Fprintf(a.out, "%s (%s)\n  balance: %s\n  2fa:     %s\n", p.Email, p.Role, formatCents(p.BalanceCents), mfa)
	return nil
}

func (a *App) TopUp(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	amount, err := parseCents(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	balance, err := a.api.TopUp(ctx, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Balance: %s\n", formatCents(balance))
	return nil
}

func (a *App) Sessions(ctx context.Context, args []string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	list, err := a.api.ListSessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEVICE\tIP\tLAST ACTIVE\t")
	for _, s := range list {
		marker := ""
		if s.Current {
			marker = "(this session)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Device, s.IP, s.LastActive.Local().Format("2006-01-02 15:04"), marker)
	}
	return w.Flush()
}

func (a *App) Revoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := a.api.RevokeSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Session revoked")
	return nil
}

func (a *App) RevokeOthers(ctx context.Context, args []string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	n, err := a.api.RevokeOtherSessions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Revoked %d other session(s)\n", n)
	return nil
}
