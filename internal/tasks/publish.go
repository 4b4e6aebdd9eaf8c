package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/models"
	"github.com/desertthunder/ytup/internal/services"
	"github.com/desertthunder/ytup/internal/shared"
)

// UploadRecorder persists the upload history.
// [repositories.UploadRepository] satisfies it.
type UploadRecorder interface {
	Create(upload *models.Upload) error
	Update(upload *models.Upload) error
}

// PublishRequest describes one file to publish.
type PublishRequest struct {
	User        string
	Path        string
	Title       string // Defaults to the file name without extension
	Description string
	Tags        []string
	Privacy     services.PrivacyStatus
	Playlist    string // Optional playlist title; created when missing
	// PlaylistPrivacy is used when the playlist has to be created. Defaults to Privacy.
	PlaylistPrivacy services.PrivacyStatus
}

// PublishResult is the outcome of publishing one file.
type PublishResult struct {
	Request  PublishRequest
	Video    *services.Video    // Nil when the upload itself failed
	Playlist *services.Playlist // Nil when no playlist was requested or lookup failed
	Record   *models.Upload     // Nil when no recorder is configured
	Error    error
}

// Succeeded reports whether the video was uploaded and placed.
func (r *PublishResult) Succeeded() bool { return r.Error == nil }

// Publisher uploads videos and places them in playlists.
type Publisher struct {
	uploader services.Uploader
	records  UploadRecorder
	logger   *log.Logger
}

// NewPublisher creates a Publisher. records may be nil.
func NewPublisher(uploader services.Uploader, records UploadRecorder, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{uploader: uploader, records: records, logger: logger}
}

// Normalize fills defaults and validates the request.
func (r PublishRequest) Normalize() (PublishRequest, error) {
	if strings.TrimSpace(r.Path) == "" {
		return r, fmt.Errorf("%w: file path", shared.ErrMissingArgument)
	}
	info, err := os.Stat(r.Path)
	if err != nil {
		return r, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	if info.IsDir() {
		return r, fmt.Errorf("%w: %s is a directory", shared.ErrInvalidInput, r.Path)
	}
	if r.Title == "" {
		base := filepath.Base(r.Path)
		r.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if r.PlaylistPrivacy == "" {
		r.PlaylistPrivacy = r.Privacy
	}
	return r, nil
}

// Publish uploads one file and, when a playlist is named, adds the video to it.
//
// The returned result is never nil. Its Error matches the returned error.
func (p *Publisher) Publish(ctx context.Context, progress chan<- ProgressUpdate, req PublishRequest) (*PublishResult, error) {
	res := &PublishResult{Request: req}
	logger := shared.WithLogger(p.logger, "file", req.Path)

	normalized, err := req.Normalize()
	if err != nil {
		return p.fail(progress, logger, res, err)
	}
	req = normalized
	res.Request = req

	if p.records != nil {
		record := models.NewUpload(req.User, req.Path, req.Title, string(req.Privacy), req.Playlist)
		if err := p.records.Create(record); err != nil {
			return p.fail(progress, logger, res, fmt.Errorf("record upload: %w", err))
		}
		record.IncrementAttempts()
		res.Record = record
	}

	sendProgress(progress, uploadStartedUpdate(req.Path, req.Title))
	video, err := p.uploader.UploadVideo(ctx, services.VideoUpload{
		Path:        req.Path,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Privacy:     req.Privacy,
		Progress: func(current, total int64) {
			sendProgress(progress, uploadBytesUpdate(req.Path, current, total))
		},
	})
	if err != nil {
		return p.fail(progress, logger, res, err)
	}
	res.Video = video
	if res.Record != nil {
		res.Record.MarkUploaded(video.ID)
	}
	logger.Info("video uploaded", "video", video.ID)

	if req.Playlist != "" {
		if err := p.place(ctx, progress, res); err != nil {
			return p.fail(progress, logger, res, err)
		}
	}

	if res.Record != nil {
		if err := p.records.Update(res.Record); err != nil {
			logger.Warn("could not update upload record", "err", err)
		}
	}
	sendProgress(progress, completedUpdate(res))
	return res, nil
}

func (p *Publisher) place(ctx context.Context, progress chan<- ProgressUpdate, res *PublishResult) error {
	req := res.Request
	sendProgress(progress, findPlaylistUpdate(req.Path, req.Playlist))
	pl, err := p.uploader.FindOrCreatePlaylist(ctx, req.Playlist, req.PlaylistPrivacy)
	if err != nil {
		return fmt.Errorf("playlist %q: %w", req.Playlist, err)
	}
	res.Playlist = pl
	if res.Record != nil {
		res.Record.SetPlaylistID(pl.ID)
	}

	sendProgress(progress, addToPlaylistUpdate(req.Path, res.Video.ID, pl.ID))
	return p.uploader.AddVideoToPlaylist(ctx, res.Video.ID, pl.ID)
}

func (p *Publisher) fail(progress chan<- ProgressUpdate, logger *log.Logger, res *PublishResult, err error) (*PublishResult, error) {
	res.Error = err
	logger.Error("publish failed", "err", err)
	if res.Record != nil {
		res.Record.MarkFailed(err)
		if uerr := p.records.Update(res.Record); uerr != nil {
			logger.Warn("could not update upload record", "err", uerr)
		}
	}
	sendProgress(progress, failedUpdate(res))
	return res, err
}
