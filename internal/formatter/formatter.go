// package formatter renders upload history in various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytup/internal/models"
	"github.com/desertthunder/ytup/internal/shared"
)

// Format names accepted by [Render].
const (
	JSON     = "json"
	CSV      = "csv"
	Markdown = "markdown"
	Text     = "txt"
)

// Formats lists every supported format.
var Formats = []string{JSON, CSV, Markdown, Text}

const timeLayout = time.RFC3339

// UploadView is the serialized form of an upload record.
type UploadView struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	User       string    `json:"user"`
	FilePath   string    `json:"file_path"`
	Title      string    `json:"title"`
	Privacy    string    `json:"privacy"`
	Playlist   string    `json:"playlist,omitempty"`
	VideoID    string    `json:"video_id,omitempty"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewUploadView copies the exported fields of u.
func NewUploadView(u *models.Upload) UploadView {
	return UploadView{
		ID:         u.ID(),
		Sequence:   u.Sequence(),
		User:       u.User(),
		FilePath:   u.FilePath(),
		Title:      u.Title(),
		Privacy:    u.Privacy(),
		Playlist:   u.Playlist(),
		VideoID:    u.VideoID(),
		PlaylistID: u.PlaylistID(),
		Status:     string(u.Status()),
		Error:      u.Error(),
		Attempts:   u.Attempts(),
		CreatedAt:  u.CreatedAt(),
		UpdatedAt:  u.UpdatedAt(),
	}
}

// VideoURL returns the watch URL, or "" when the video was never uploaded.
func (v UploadView) VideoURL() string {
	if v.VideoID == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + v.VideoID
}

func views(uploads []*models.Upload) []UploadView {
	out := make([]UploadView, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, NewUploadView(u))
	}
	return out
}

// Render converts uploads to the named format.
func Render(format string, uploads []*models.Upload) ([]byte, error) {
	switch strings.ToLower(format) {
	case JSON, "":
		return ExportToJSON(uploads)
	case CSV:
		return ExportToCSV(uploads)
	case Markdown, "md":
		return ExportToMarkdown(uploads)
	case Text, "text":
		return ExportToText(uploads)
	default:
		return nil, fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidFlag, format, strings.Join(Formats, ", "))
	}
}

// ExportToJSON converts uploads to an indented JSON array
func ExportToJSON(uploads []*models.Upload) ([]byte, error) {
	data, err := json.MarshalIndent(views(uploads), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal uploads: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts uploads to CSV format with columns: Sequence, User, Title, File, Privacy, Playlist, Video ID, Status, Attempts, Error, Updated
func ExportToCSV(uploads []*models.Upload) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "User", "Title", "File", "Privacy", "Playlist", "Video ID", "Status", "Attempts", "Error", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range views(uploads) {
		record := []string{
			strconv.Itoa(v.Sequence),
			v.User,
			v.Title,
			v.FilePath,
			v.Privacy,
			v.Playlist,
			v.VideoID,
			v.Status,
			strconv.Itoa(v.Attempts),
			v.Error,
			v.UpdatedAt.UTC().Format(timeLayout),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts uploads to a Markdown table grouped under a summary line
func ExportToMarkdown(uploads []*models.Upload) ([]byte, error) {
	var buf bytes.Buffer
	vs := views(uploads)

	buf.WriteString("# Uploads\n\n")
	buf.WriteString(summary(vs) + "\n\n")
	if len(vs) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | User | Title | Status | Playlist | Video |\n")
	buf.WriteString("|---|------|-------|--------|----------|-------|\n")
	for _, v := range vs {
		video := "-"
		if url := v.VideoURL(); url != "" {
			video = fmt.Sprintf("[%s](%s)", v.VideoID, url)
		}
		playlist := v.Playlist
		if playlist == "" {
			playlist = "-"
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			v.Sequence, mdEscape(v.User), mdEscape(v.Title), v.Status, mdEscape(playlist), video)
	}

	var failed []UploadView
	for _, v := range vs {
		if v.Error != "" {
			failed = append(failed, v)
		}
	}
	if len(failed) > 0 {
		buf.WriteString("\n## Errors\n\n")
		for _, v := range failed {
			fmt.Fprintf(&buf, "- **%s**: %s\n", mdEscape(v.Title), v.Error)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts uploads to plain text format
func ExportToText(uploads []*models.Upload) ([]byte, error) {
	var buf bytes.Buffer
	vs := views(uploads)

	buf.WriteString(summary(vs) + "\n\n")
	for _, v := range vs {
		fmt.Fprintf(&buf, "%d. [%s] %s (%s)", v.Sequence, v.Status, v.Title, v.User)
		if url := v.VideoURL(); url != "" {
			fmt.Fprintf(&buf, " %s", url)
		}
		if v.Error != "" {
			fmt.Fprintf(&buf, " error: %s", v.Error)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func summary(vs []UploadView) string {
	counts := map[string]int{}
	for _, v := range vs {
		counts[v.Status]++
	}
	return fmt.Sprintf("Uploads: %d (%d uploaded, %d failed, %d pending)",
		len(vs), counts[string(models.UploadUploaded)], counts[string(models.UploadFailed)], counts[string(models.UploadPending)])
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// WriteExport renders uploads and writes them to path, creating parent directories.
func WriteExport(uploads []*models.Upload, format, path string) (string, error) {
	data, err := Render(format, uploads)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
