// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/ytup/internal/services"
	"github.com/desertthunder/ytup/internal/shared"
)

// MockUploader is an in-memory test double for [services.Uploader].
//
// Set the *Err fields to force failures. FailPaths fails uploads of specific files.
type MockUploader struct {
	mu sync.Mutex

	Playlists []services.Playlist
	Items     map[string][]string // playlist ID -> video IDs
	Uploaded  []services.VideoUpload

	FindErr   error
	CreateErr error
	AddErr    error
	UploadErr error
	FailPaths map[string]error

	nextID int
}

func (m *MockUploader) FindPlaylistByName(_ context.Context, name string) (*services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(name)
}

func (m *MockUploader) find(name string) (*services.Playlist, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for i := range m.Playlists {
		if m.Playlists[i].Title == name {
			p := m.Playlists[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", shared.ErrPlaylistNotFound, name)
}

func (m *MockUploader) FindOrCreatePlaylist(ctx context.Context, name string, privacy services.PrivacyStatus) (*services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.find(name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, err
	}
	return m.create(name, privacy)
}

func (m *MockUploader) CreatePlaylist(_ context.Context, name string, privacy services.PrivacyStatus) (*services.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(name, privacy)
}

func (m *MockUploader) create(name string, privacy services.PrivacyStatus) (*services.Playlist, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.nextID++
	p := services.Playlist{ID: fmt.Sprintf("PL%d", m.nextID), Title: name, Privacy: privacy}
	m.Playlists = append(m.Playlists, p)
	return &p, nil
}

func (m *MockUploader) AddVideoToPlaylist(_ context.Context, videoID, playlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	if m.Items == nil {
		m.Items = make(map[string][]string)
	}
	m.Items[playlistID] = append(m.Items[playlistID], videoID)
	return nil
}

func (m *MockUploader) UploadVideo(_ context.Context, up services.VideoUpload) (*services.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	if err, ok := m.FailPaths[up.Path]; ok {
		return nil, err
	}
	if up.Progress != nil {
		up.Progress(50, 100)
		up.Progress(100, 100)
	}
	m.nextID++
	m.Uploaded = append(m.Uploaded, up)
	return &services.Video{ID: fmt.Sprintf("vid%d", m.nextID), Title: up.Title, Privacy: up.Privacy}, nil
}

// UploadCount returns the number of successful uploads.
func (m *MockUploader) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Uploaded)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// WriteVideo creates a small placeholder file named name under dir.
func WriteVideo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not really a video"), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
