package models

import (
	"fmt"
	"time"
)

// UploadStatus is the lifecycle state of an [Upload].
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadUploaded UploadStatus = "uploaded"
	UploadFailed   UploadStatus = "failed"
)

// Upload records one publish of a local file.
type Upload struct {
	id         string
	sequence   int
	user       string
	filePath   string
	title      string
	privacy    string
	playlist   string
	videoID    string
	playlistID string
	status     UploadStatus
	errMsg     string
	attempts   int
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewUpload returns a pending upload.
func NewUpload(user, filePath, title, privacy, playlist string) *Upload {
	now := time.Now()
	return &Upload{
		user:      user,
		filePath:  filePath,
		title:     title,
		privacy:   privacy,
		playlist:  playlist,
		status:    UploadPending,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreUpload rebuilds an upload from stored columns.
func RestoreUpload(
	id string, sequence int, user, filePath, title, privacy, playlist, videoID, playlistID string,
	status UploadStatus, errMsg string, attempts int, createdAt, updatedAt time.Time, deletedAt *time.Time,
) *Upload {
	return &Upload{
		id: id, sequence: sequence, user: user, filePath: filePath, title: title, privacy: privacy,
		playlist: playlist, videoID: videoID, playlistID: playlistID, status: status, errMsg: errMsg,
		attempts: attempts, createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt,
	}
}

func (u *Upload) ID() string            { return u.id }
func (u *Upload) Sequence() int         { return u.sequence }
func (u *Upload) User() string          { return u.user }
func (u *Upload) FilePath() string      { return u.filePath }
func (u *Upload) Title() string         { return u.title }
func (u *Upload) Privacy() string       { return u.privacy }
func (u *Upload) Playlist() string      { return u.playlist }
func (u *Upload) VideoID() string       { return u.videoID }
func (u *Upload) PlaylistID() string    { return u.playlistID }
func (u *Upload) Status() UploadStatus  { return u.status }
func (u *Upload) Error() string         { return u.errMsg }
func (u *Upload) Attempts() int         { return u.attempts }
func (u *Upload) CreatedAt() time.Time  { return u.createdAt }
func (u *Upload) UpdatedAt() time.Time  { return u.updatedAt }
func (u *Upload) DeletedAt() *time.Time { return u.deletedAt }

func (u *Upload) SetID(id string)          { u.id = id }
func (u *Upload) SetSequence(seq int)      { u.sequence = seq }
func (u *Upload) SetUpdatedAt(t time.Time) { u.updatedAt = t }
func (u *Upload) SetPlaylistID(id string)  { u.playlistID = id }
func (u *Upload) IncrementAttempts()       { u.attempts++ }

// MarkUploaded records the created video id.
func (u *Upload) MarkUploaded(videoID string) {
	u.videoID = videoID
	u.status = UploadUploaded
	u.errMsg = ""
}

// MarkFailed records err as the failure reason.
func (u *Upload) MarkFailed(err error) {
	u.status = UploadFailed
	if err != nil {
		u.errMsg = err.Error()
	}
}

func (u *Upload) Validate() error {
	if u.filePath == "" {
		return fmt.Errorf("file path is required")
	}
	if u.title == "" {
		return fmt.Errorf("title is required")
	}
	if u.user == "" {
		return fmt.Errorf("user is required")
	}
	switch u.status {
	case UploadPending, UploadFailed:
	case UploadUploaded:
		if u.videoID == "" {
			return fmt.Errorf("uploaded record needs a video id")
		}
	default:
		return fmt.Errorf("invalid status %q", u.status)
	}
	return nil
}
