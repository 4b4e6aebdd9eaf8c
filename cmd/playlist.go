package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/ytup/internal/services"
	"github.com/desertthunder/ytup/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistFind looks up a playlist by exact title across all pages.
func (r *Runner) PlaylistFind(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(cmd.StringArg("name"))
	if name == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	up, err := r.uploader(ctx, cmd)
	if err != nil {
		return err
	}
	p, err := up.FindPlaylistByName(ctx, name)
	if err != nil {
		return err
	}
	return r.writePlaylist(cmd, p)
}

// PlaylistCreate creates a playlist, reusing an existing one unless --find-existing=false.
func (r *Runner) PlaylistCreate(ctx context.Context, cmd *cli.Command) error {
	name := strings.TrimSpace(cmd.StringArg("name"))
	if name == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}
	privacy, err := r.privacy(cmd.String("privacy"))
	if err != nil {
		return err
	}

	up, err := r.uploader(ctx, cmd)
	if err != nil {
		return err
	}

	var p *services.Playlist
	if cmd.Bool("find-existing") {
		p, err = up.FindOrCreatePlaylist(ctx, name, privacy)
	} else {
		p, err = up.CreatePlaylist(ctx, name, privacy)
	}
	if err != nil {
		return err
	}
	return r.writePlaylist(cmd, p)
}

func (r *Runner) writePlaylist(cmd *cli.Command, p *services.Playlist) error {
	if cmd.Bool("json") {
		return r.writeJSON(p, cmd.Bool("pretty"))
	}
	return r.writePlain("%s\t%s\t%s\t%d items\n", p.ID, p.Title, p.Privacy, p.ItemCount)
}

// privacy parses a flag value, falling back to upload.privacy when empty.
func (r *Runner) privacy(v string) (services.PrivacyStatus, error) {
	if v == "" {
		v = r.config.Upload.Privacy
	}
	p, err := services.ParsePrivacy(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidFlag, err)
	}
	return p, nil
}
