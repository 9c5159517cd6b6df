package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/abhidhakal/cipher-drop/internal/filex"

	api "github.com/abhidhakal/cipher-drop/internal/server/grpc"
)

// readContent takes the drop body either from a file ("@path") or typed text.
func (a *App) readContent() ([]byte, error) {
	text, err := GetMultiline(a.reader, "Content (or @path to read a file)", a.out)
	if err != nil {
		return nil, err
	}
	if path, ok := strings.CutPrefix(text, "@"); ok && !strings.Contains(path, "\n") {
		return filex.ReadLimited(path, maxDropBytes)
	}
	return []byte(text), nil
}

const maxDropBytes = 1 << 20

func (a *App) CreateDrop(ctx context.Context, args []string) error {
	title, err := GetSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	content, err := a.readContent()
	if err != nil {
		return err
	}
	priceText, err := GetSimpleText(a.reader, "Price in dollars (0 for free)", a.out)
	if err != nil {
		return err
	}
	price, err := parseCents(priceText)
	if err != nil {
		return err
	}
	recipient, err := GetSimpleText(a.reader, "Recipient email (empty for anyone)", a.out)
	if err != nil {
		return err
	}
	once, err := GetSimpleText(a.reader, "Destroy after first view? [y/N]", a.out)
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	resp, err := a.api.CreateDrop(ctx, &api.CreateDropRequest{
		Title:          title,
		Content:        content,
		PriceCents:     price,
		RecipientEmail: recipient,
		OneTimeView:    strings.EqualFold(once, "y") || strings.EqualFold(once, "yes"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Drop %s created (%s)\n", resp.DropID, resp.Status)
	return nil
}

// Unlock prints the drop, or writes it to the file given as second argument.
func (a *App) Unlock(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	rctx, cancel := a.requestContext(ctx)
	meta, err := a.api.GetDropMeta(rctx, args[0])
	cancel()
	if err != nil {
		return err
	}

	if meta.PriceCents > 0 && meta.Status == "PENDING" && meta.SenderEmail != a.email {
		answer, err := GetSimpleText(a.reader, fmt.Sprintf("Pay %s to unlock %q? [y/N]", formatCents(meta.PriceCents), meta.Title), a.out)
		if err != nil {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Fprintln(a.out, "Cancelled")
			return nil
		}
	}

	rctx, cancel = a.requestContext(ctx)
	defer cancel()
	content, err := a.api.UnlockDrop(rctx, args[0])
	if err != nil {
		return err
	}
	defer clear(content)

	if len(args) == 2 {
		if err := os.WriteFile(args[1], content, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved %d bytes to %s\n", len(content), args[1])
	} else {
		fmt.Fprintln(a.out, string(content))
	}
	if meta.OneTimeView {
		fmt.Fprintln(a.out, "This drop was destroyed after viewing")
	}
	return nil
}

func (a *App) DropInfo(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	m, err := a.api.GetDropMeta(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n  from:   %s\n  price:  %s\n  status: %s\n", m.Title, m.SenderEmail, formatCents(m.PriceCents), m.Status)
	return nil
}

func (a *App) Drops(ctx context.Context, args []string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	list, err := a.api.ListDrops(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tSTATUS\tFROM\t")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", d.ID, d.Title, formatCents(d.PriceCents), d.Status, d.SenderEmail)
	}
	return w.Flush()
}
