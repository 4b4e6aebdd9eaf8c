package tasks

import (
	"fmt"
	"path/filepath"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Item    string // File the update belongs to
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Percent returns Step/Total in [0, 1], or 0 when Total is unknown.
func (u ProgressUpdate) Percent() float64 {
	if u.Total <= 0 {
		return 0
	}
	p := float64(u.Step) / float64(u.Total)
	if p > 1 {
		return 1
	}
	return p
}

// Operation phase enumeration
type Phase int

const (
	Queued Phase = iota
	UploadVideo
	FindPlaylist
	AddToPlaylist
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Queued:
		return "queued"
	case UploadVideo:
		return "upload_video"
	case FindPlaylist:
		return "find_playlist"
	case AddToPlaylist:
		return "add_to_playlist"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Done reports whether no further updates follow for the item.
func (p Phase) Done() bool { return p == Completed || p == Failed }

// ByteProgress is attached to [UploadVideo] updates.
type ByteProgress struct {
	Current int64
	Total   int64
}

const percentScale = 1000

func queuedUpdate(path string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Queued,
		Item:    path,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Queued %s", step, total, filepath.Base(path)),
	}
}

func uploadStartedUpdate(path, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadVideo,
		Item:    path,
		Total:   percentScale,
		Message: fmt.Sprintf("Uploading %q...", title),
	}
}

// uploadBytesUpdate scales byte counts so Step/Total stay within int on 32-bit platforms.
func uploadBytesUpdate(path string, current, total int64) ProgressUpdate {
	step := 0
	if total > 0 {
		step = int(current * percentScale / total)
	}
	return ProgressUpdate{
		Phase:   UploadVideo,
		Item:    path,
		Step:    step,
		Total:   percentScale,
		Message: fmt.Sprintf("Uploading %s (%s / %s)", filepath.Base(path), humanBytes(current), humanBytes(total)),
		Data:    ByteProgress{Current: current, Total: total},
	}
}

func findPlaylistUpdate(path, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FindPlaylist,
		Item:    path,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Looking up playlist %q...", name),
	}
}

func addToPlaylistUpdate(path, videoID, playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AddToPlaylist,
		Item:    path,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Adding %s to playlist %s...", videoID, playlistID),
	}
}

func completedUpdate(res *PublishResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Completed,
		Item:    res.Request.Path,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ %s (video %s)", res.Request.Title, res.Video.ID),
		Data:    res,
	}
}

func failedUpdate(res *PublishResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		Item:    res.Request.Path,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ %s: %v", filepath.Base(res.Request.Path), res.Error),
		Data:    res,
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
