// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/ytup/internal/formatter"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

// app builds the root command with global flags and lifecycle hooks.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "ytup",
		Usage:   "Authenticate YouTube accounts and publish videos to their channels",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Account name used to select the stored credential",
				Sources: cli.EnvVars("YTUP_USER"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.Before,
		After:    r.After,
		Commands: r.register(),
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

func secretFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "secret",
		Usage: "Client secret JSON (overrides auth.secret_path)",
	}
}

func privacyFlag(name, usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  name,
		Usage: usage + " (public, unlisted, private)",
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage account credentials",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize an account and store its credential",
				Flags:  []cli.Flag{secretFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "List authorized accounts and their credential files",
				Flags:  jsonFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Delete the stored credential for an account",
				Action: r.AuthLogout,
			},
		},
	}
}

// callbackCommand runs the redirect receiver for headless logins
func callbackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "callback",
		Usage: "OAuth redirect receiver",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the redirect URI and write received codes to the auth code file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default: server.host:server.port)",
					},
					&cli.StringFlag{
						Name:  "code-path",
						Usage: "Auth code file (default: auth.path_auth_code)",
					},
				},
				Action: r.CallbackServe,
			},
		},
	}
}

// playlistCommand handles playlist lookups
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "find",
				Usage: "Find a playlist by exact title",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags:  append(jsonFlags(), secretFlag()),
				Action: r.PlaylistFind,
			},
			{
				Name:  "create",
				Usage: "Create a playlist, or return the existing one with --find-existing",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: append(jsonFlags(),
					secretFlag(),
					privacyFlag("privacy", "Playlist privacy"),
					&cli.BoolFlag{
						Name:  "find-existing",
						Usage: "Reuse a playlist with the same title",
						Value: true,
					},
				),
				Action: r.PlaylistCreate,
			},
		},
	}
}

func uploadFlags() []cli.Flag {
	return []cli.Flag{
		secretFlag(),
		&cli.StringFlag{
			Name:    "description",
			Aliases: []string{"d"},
			Usage:   "Video description",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Video tag (repeatable)",
		},
		privacyFlag("privacy", "Video privacy, defaults to upload.privacy"),
		&cli.StringFlag{
			Name:    "playlist",
			Aliases: []string{"p"},
			Usage:   "Playlist title to add the video to; created when missing",
		},
		privacyFlag("playlist-privacy", "Privacy for a newly created playlist"),
	}
}

// uploadCommand handles publishing videos
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a video file",
		ArgsUsage: "<file>",
		Flags: append(uploadFlags(),
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Video title (default: file name)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		),
		Action: r.Upload,
		Commands: []*cli.Command{
			{
				Name:      "batch",
				Usage:     "Upload several files concurrently",
				ArgsUsage: "<file>...",
				Flags: append(uploadFlags(),
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent uploads (default: upload.workers)",
					},
					&cli.FloatFlag{
						Name:  "rate-limit",
						Usage: "Uploads started per second",
						Value: 1,
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Show an interactive progress view",
					},
				),
				Action: r.UploadBatch,
			},
		},
	}
}

// uploadsCommand reads the upload history
func uploadsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "uploads",
		Usage: "Upload history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded uploads",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, csv, markdown, txt",
						Value:   formatter.Text,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only uploads with this status (pending, uploaded, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of uploads to return",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.UploadsList,
			},
		},
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Destination path (default: --config)",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}
