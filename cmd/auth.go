package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/ytup/internal/auth"
	"github.com/desertthunder/ytup/internal/shared"
	"github.com/desertthunder/ytup/internal/ui"
	"github.com/urfave/cli/v3"
)

// accountStatus is one row of `auth status`.
type accountStatus struct {
	User            string    `json:"user"`
	TokenPath       string    `json:"token_path"`
	TokenPresent    bool      `json:"token_present"`
	Expiry          time.Time `json:"expiry,omitzero"`
	Scopes          []string  `json:"scopes"`
	AuthenticatedAt time.Time `json:"authenticated_at,omitzero"`
}

// AuthLogin runs the authorization flow for --user and stores the credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	cred, err := r.authenticate(ctx, cmd)
	if err != nil {
		return err
	}
	r.logger.Info("authenticated", "user", cred.User, "path", cred.Path())

	r.writePlain("%s Authenticated %s\n", ui.Success("✓"), cred.User)
	r.writePlain("Credential: %s\n", cred.Path())
	r.writePlain("Scopes: %s\n", strings.Join(cred.Scopes, ", "))
	return nil
}

// AuthStatus lists recorded accounts and whether their credential files are present.
// Without history it reports the credential for --user only.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	m, err := r.manager()
	if err != nil {
		return err
	}

	var statuses []accountStatus
	if accounts := r.accounts(); accounts != nil {
		list, err := accounts.List()
		if err != nil {
			return err
		}
		for _, a := range list {
			statuses = append(statuses, accountStatus{
				User:            a.User(),
				TokenPath:       a.TokenPath(),
				Scopes:          a.Scopes(),
				AuthenticatedAt: a.AuthenticatedAt(),
			})
		}
	}
	if len(statuses) == 0 {
		user := cmd.String("user")
		if user == "" {
			user = auth.DefaultUser
		}
		statuses = append(statuses, accountStatus{User: user, TokenPath: m.Store().ResolvePath(user)})
	}

	for i := range statuses {
		s := &statuses[i]
		cred, err := m.Store().Load(s.TokenPath)
		switch {
		case err == nil:
			s.TokenPresent = true
			s.Scopes = cred.Scopes
			if cred.Token != nil {
				s.Expiry = cred.Token.Expiry
			}
		case !errors.Is(err, auth.ErrCredentialNotFound):
			r.logger.Warn("unreadable credential", "path", s.TokenPath, "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Accounts")
	for _, s := range statuses {
		mark := ui.Success("✓")
		if !s.TokenPresent {
			mark = ui.Failure("✗")
		}
		r.writePlain("%s %s\n", mark, s.User)
		r.writePlain("  Credential: %s\n", s.TokenPath)
		if !s.Expiry.IsZero() {
			r.writePlain("  Access token expires: %s\n", s.Expiry.Format(time.RFC3339))
		}
		if len(s.Scopes) > 0 {
			r.writePlain("  Scopes: %s\n", strings.Join(s.Scopes, ", "))
		}
	}
	return nil
}

// AuthLogout removes the credential file and account record for --user.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	user := cmd.String("user")
	if user == "" {
		return fmt.Errorf("%w: --user", shared.ErrMissingArgument)
	}

	m, err := r.manager()
	if err != nil {
		return err
	}
	path, err := m.Logout(user)
	if err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	if accounts := r.accounts(); accounts != nil {
		if err := accounts.DeleteByUser(user); err != nil && !errors.Is(err, shared.ErrAccountNotFound) {
			return err
		}
	}

	r.logger.Info("logged out", "user", user, "path", path)
	return r.writePlain("%s Removed credential for %s (%s)\n", ui.Success("✓"), user, path)
}
