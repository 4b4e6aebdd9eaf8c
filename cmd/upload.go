package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/ytup/internal/auth"
	"github.com/desertthunder/ytup/internal/formatter"
	"github.com/desertthunder/ytup/internal/models"
	"github.com/desertthunder/ytup/internal/repositories"
	"github.com/desertthunder/ytup/internal/shared"
	"github.com/desertthunder/ytup/internal/tasks"
	"github.com/desertthunder/ytup/internal/ui"
	"github.com/urfave/cli/v3"
)

// publisher authenticates --user and wires the upload history when the database is available.
func (r *Runner) publisher(ctx context.Context, cmd *cli.Command) (*tasks.Publisher, error) {
	up, err := r.uploader(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var records tasks.UploadRecorder
	if db, err := r.database(); err != nil {
		r.logger.Warn("upload history disabled", "error", err)
	} else {
		records = repositories.NewUploadRepository(db)
	}
	return tasks.NewPublisher(up, records, r.logger), nil
}

// requestTemplate reads the flags shared by single and batch uploads.
func (r *Runner) requestTemplate(cmd *cli.Command) (tasks.PublishRequest, error) {
	privacy, err := r.privacy(cmd.String("privacy"))
	if err != nil {
		return tasks.PublishRequest{}, err
	}
	req := tasks.PublishRequest{
		User:        cmd.String("user"),
		Description: cmd.String("description"),
		Tags:        cmd.StringSlice("tag"),
		Privacy:     privacy,
		Playlist:    strings.TrimSpace(cmd.String("playlist")),
	}
	if req.User == "" {
		req.User = auth.DefaultUser
	}
	if v := cmd.String("playlist-privacy"); v != "" {
		if req.PlaylistPrivacy, err = r.privacy(v); err != nil {
			return req, err
		}
	}
	return req, nil
}

// Upload publishes one file and optionally places it in a playlist.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("%w: file to upload", shared.ErrMissingArgument)
	}
	if cmd.Args().Len() > 1 {
		return fmt.Errorf("%w: upload takes one file, use `upload batch` for more", shared.ErrInvalidInput)
	}

	req, err := r.requestTemplate(cmd)
	if err != nil {
		return err
	}
	req.Path = path
	req.Title = cmd.String("title")
	if req, err = req.Normalize(); err != nil {
		return err
	}

	pub, err := r.publisher(ctx, cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			switch {
			case u.Phase == tasks.UploadVideo && u.Data != nil:
				// byte counts are too chatty for plain output
			case u.Phase == tasks.UploadVideo, u.Phase == tasks.FindPlaylist, u.Phase == tasks.AddToPlaylist:
				r.writePlain("→ %s\n", u.Message)
			}
		}
	}()

	res, err := pub.Publish(ctx, progress, req)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(res.Video, true)
	}
	r.writePlain("%s Uploaded %q as %s\n", ui.Success("✓"), res.Video.Title, res.Video.ID)
	r.writePlain("https://www.youtube.com/watch?v=%s\n", res.Video.ID)
	if res.Playlist != nil {
		r.writePlain("Playlist: %s (%s)\n", res.Playlist.Title, res.Playlist.ID)
	}
	return nil
}

// UploadBatch publishes every file argument with a worker pool.
func (r *Runner) UploadBatch(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one file", shared.ErrMissingArgument)
	}

	tmpl, err := r.requestTemplate(cmd)
	if err != nil {
		return err
	}
	reqs := make([]tasks.PublishRequest, 0, len(paths))
	for _, p := range paths {
		req := tmpl
		req.Path = p
		normalized, err := req.Normalize()
		if err != nil {
			return err
		}
		reqs = append(reqs, normalized)
	}

	opts := tasks.BatchOpts{
		Workers:   int(cmd.Int("workers")),
		RateLimit: cmd.Float("rate-limit"),
	}
	if opts.Workers <= 0 {
		opts.Workers = r.config.Upload.Workers
	}

	useTUI := cmd.Bool("tui")
	if useTUI {
		// Logs would tear the full-screen view; keep only the file sink.
		logger, closer, err := shared.NewFileLogger(r.config.Log, nil)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.closers = append(r.closers, closer)
		r.SetLogger(logger)
	}

	pub, err := r.publisher(ctx, cmd)
	if err != nil {
		return err
	}

	var result *tasks.BatchResult
	if useTUI {
		result, err = ui.Run(ctx, pub, reqs, opts)
	} else {
		result, err = r.runBatchPlain(ctx, pub, reqs, opts)
	}
	if result == nil {
		return err
	}

	r.writePlainln("%d uploaded, %d failed (%s)", result.Succeeded, result.Failed, result.Duration.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d uploads failed: %w", result.Failed, result.Total, result.Err())
	}
	return nil
}

func (r *Runner) runBatchPlain(ctx context.Context, pub *tasks.Publisher, reqs []tasks.PublishRequest, opts tasks.BatchOpts) (*tasks.BatchResult, error) {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			switch u.Phase {
			case tasks.Completed:
				r.writePlain("%s %s\n", ui.Success("✓"), filepath.Base(u.Item))
			case tasks.Failed:
				r.writePlain("%s %s\n", ui.Failure("✗"), strings.TrimPrefix(u.Message, "✗ "))
			case tasks.Queued:
				r.writePlain("%s\n", ui.Hint(u.Message))
			}
		}
	}()

	result, err := pub.PublishBatch(ctx, progress, reqs, opts)
	close(progress)
	<-done
	return result, err
}

// UploadsList prints the upload history in the requested format.
func (r *Runner) UploadsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	repo := repositories.NewUploadRepository(db)

	criteria := map[string]any{}
	if user := cmd.String("user"); user != "" {
		criteria["user"] = user
	}
	if status := cmd.String("status"); status != "" {
		s := models.UploadStatus(strings.ToLower(status))
		switch s {
		case models.UploadPending, models.UploadUploaded, models.UploadFailed:
		default:
			return fmt.Errorf("%w: status %q", shared.ErrInvalidFlag, status)
		}
		criteria["status"] = s
	}
	if limit := int(cmd.Int("limit")); limit > 0 {
		criteria["limit"] = limit
	}

	uploads, err := repo.List(criteria)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if out := cmd.String("output"); out != "" {
		path, err := formatter.WriteExport(uploads, format, out)
		if err != nil {
			return err
		}
		return r.writePlain("%s Wrote %d uploads to %s\n", ui.Success("✓"), len(uploads), path)
	}

	data, err := formatter.Render(format, uploads)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}
