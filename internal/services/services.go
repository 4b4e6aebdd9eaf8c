package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/ytup/internal/shared"
)

// PrivacyStatus is the visibility of a video or playlist.
type PrivacyStatus string

const (
	Public   PrivacyStatus = "public"
	Unlisted PrivacyStatus = "unlisted"
	Private  PrivacyStatus = "private"
)

// ParsePrivacy accepts public, unlisted or private in any case.
func ParsePrivacy(s string) (PrivacyStatus, error) {
	switch p := PrivacyStatus(strings.ToLower(strings.TrimSpace(s))); p {
	case Public, Unlisted, Private:
		return p, nil
	default:
		return "", fmt.Errorf("%w: privacy %q (want public, unlisted or private)", shared.ErrInvalidInput, s)
	}
}

// Uploader publishes videos and arranges them in playlists on one channel.
type Uploader interface {
	// FindPlaylistByName returns the first playlist owned by the channel whose title equals name,
	// or [shared.ErrPlaylistNotFound].
	FindPlaylistByName(ctx context.Context, name string) (*Playlist, error)

	// FindOrCreatePlaylist returns the named playlist, creating it with privacy when absent.
	FindOrCreatePlaylist(ctx context.Context, name string, privacy PrivacyStatus) (*Playlist, error)

	// CreatePlaylist creates a playlist unconditionally.
	CreatePlaylist(ctx context.Context, name string, privacy PrivacyStatus) (*Playlist, error)

	// AddVideoToPlaylist appends a video to a playlist.
	AddVideoToPlaylist(ctx context.Context, videoID, playlistID string) error

	// UploadVideo sends the file described by upload and returns the created video.
	UploadVideo(ctx context.Context, upload VideoUpload) (*Video, error)
}

// Playlist is a playlist owned by the authenticated channel.
type Playlist struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Privacy     PrivacyStatus `json:"privacy"`
	ItemCount   int64         `json:"item_count"`
}

// Video is an uploaded video.
type Video struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Privacy PrivacyStatus `json:"privacy"`
}

// VideoUpload describes a local file to publish.
type VideoUpload struct {
	Path        string
	Title       string
	Description string
	Tags        []string
	Privacy     PrivacyStatus
	// CategoryID defaults to upload.category_id.
	CategoryID string
	// Progress receives bytes sent so far and the total, when known.
	Progress func(current, total int64)
}
