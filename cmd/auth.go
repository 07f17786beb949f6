package main

import (
	"context"
	"time"

	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/desertthunder/spotctl/internal/ui"
	"github.com/urfave/cli/v3"
)

type authStatus struct {
	Authenticated bool      `json:"authenticated"`
	Expired       bool      `json:"expired"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	Token         string    `json:"token,omitempty"`
}

// AuthLogin returns stored credentials when still valid and runs the browser flow otherwise.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	authorizer, err := r.authorizerFor(cmd)
	if err != nil {
		return err
	}

	token, err := authorizer.Authorize(ctx)
	if err != nil {
		return err
	}

	values := token.Values()
	r.logger.Debug("authorized", "token", shared.RedactToken(values.Token))
	return r.writePlain("%s Authenticated until %s\n", ui.Styles.OK("✓"), values.ExpiresAt.Format(time.Kitchen))
}

// AuthStatus reports the stored credentials without opening a browser.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	authorizer, err := r.authorizerFor(cmd)
	if err != nil {
		return err
	}

	status := authStatus{}
	if values, ok := authorizer.Persisted(ctx); ok {
		status = authStatus{
			Authenticated: true,
			Expired:       values.Expired(time.Now()),
			ExpiresAt:     values.ExpiresAt,
			Token:         shared.RedactToken(values.Token),
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	switch {
	case !status.Authenticated:
		return r.writePlain("%s Not authenticated\n%s\n", ui.Styles.Err("✗"), ui.Styles.Help("Run 'spotctl auth login'"))
	case status.Expired:
		return r.writePlain("%s Token expired at %s\n%s\n",
			ui.Styles.Warn("!"), status.ExpiresAt.Format(time.Kitchen), ui.Styles.Help("It is renewed on next use"))
	default:
		return r.writePlain("%s Authenticated until %s (%s)\n",
			ui.Styles.OK("✓"), status.ExpiresAt.Format(time.Kitchen), status.Token)
	}
}

// AuthRefresh forces a new browser authorization regardless of the stored expiry.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	authorizer, err := r.authorizerFor(cmd)
	if err != nil {
		return err
	}

	token, err := authorizer.Reauthorize(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("%s Re-authorized until %s\n", ui.Styles.OK("✓"), token.Values().ExpiresAt.Format(time.Kitchen))
}

// AuthLogout removes stored credentials.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	authorizer, err := r.authorizerFor(cmd)
	if err != nil {
		return err
	}

	if err := authorizer.Logout(ctx); err != nil {
		return err
	}
	return r.writePlain("%s Logged out\n", ui.Styles.OK("✓"))
}
