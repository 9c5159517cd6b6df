package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhidhakal/cipher-drop/internal/client/client"
	"github.com/abhidhakal/cipher-drop/internal/common"
)

var errPasswordMismatch = errors.New("passwords do not match")

func (a *App) readSecret(prompt string) (string, error) {
	pw, err := GetPassword(a.out, prompt)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// readNewPassword asks twice and requires both entries to agree.
func (a *App) readNewPassword() (string, error) {
	first, err := a.readSecret("New password")
	if err != nil {
		return "", err
	}
	second, err := a.readSecret("Repeat new password")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	return first, nil
}

func (a *App) Register(ctx context.Context, args []string) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	pw, err := a.readNewPassword()
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	if _, err := a.api.Register(ctx, email, pw, ""); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account created, you can log in now")
	return nil
}

func (a *App) Login(ctx context.Context, args []string) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	pw, err := a.readSecret("Password")
	if err != nil {
		return err
	}

	rctx, cancel := a.requestContext(ctx)
	resp, err := a.api.Login(rctx, email, pw, "")
	cancel()
	if err != nil {
		return err
	}

	for resp.State == "awaiting_mfa" {
		code, err := GetSimpleText(a.reader, "Authenticator code", a.out)
		if err != nil {
			return err
		}
		rctx, cancel := a.requestContext(ctx)
		next, err := a.api.VerifyMFA(rctx, resp.PendingRef, code)
		cancel()
		var se *client.ServerError
		if errors.As(err, &se) && se.Message == common.ErrInvalidMFACode.Error() {
			fmt.Fprintln(a.out, "Invalid code, try again")
			continue
		}
		if err != nil {
			return err
		}
		resp = next
	}

	a.email = email
	fmt.Fprintf(a.out, "Logged in, session valid until %s\n", resp.ExpiresAt.Local().Format("15:04"))
	return nil
}

func (a *App) Logout(ctx context.Context, args []string) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	err := a.api.Logout(ctx)
	a.email = ""
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) ChangePassword(ctx context.Context, args []string) error {
	current, err := a.readSecret("Current password")
	if err != nil {
		return err
	}
	next, err := a.readNewPassword()
	if err != nil {
		return err
	}

	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := a.api.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed, other sessions were signed out")
	return nil
}

func (a *App) ForgotPassword(ctx context.Context, args []string) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	msg, err := a.api.RequestPasswordReset(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) ResetPassword(ctx context.Context, args []string) error {
	token, err := GetSimpleText(a.reader, "Reset token", a.out)
	if err != nil {
		return err
	}
	pw, err := a.readNewPassword()
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := a.api.ResetPassword(ctx, token, pw); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password reset, log in with the new password")
	return nil
}

func (a *App) EnableMFA(ctx context.Context, args []string) error {
	rctx, cancel := a.requestContext(ctx)
	enr, err := a.api.BeginMFAEnrollment(rctx)
	cancel()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Add this account to your authenticator app:\n  secret: %s\n  uri:    %s\n", enr.Secret, enr.ProvisioningURI)

	code, err := GetSimpleText(a.reader, "Code shown by the app", a.out)
	if err != nil {
		return err
	}
	rctx, cancel = a.requestContext(ctx)
	defer cancel()
	if err := a.api.ConfirmMFA(rctx, code); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Two-factor authentication enabled")
	return nil
}

func (a *App) DisableMFA(ctx context.Context, args []string) error {
	code, err := GetSimpleText(a.reader, "Authenticator code", a.out)
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(ctx)
	defer cancel()
	if err := a.api.DisableMFA(ctx, code); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Two-factor authentication disabled")
	return nil
}
