package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/ytup/internal/backoff"
	"github.com/desertthunder/ytup/internal/shared"
	"google.golang.org/api/option"
)

func fastPolicy() *backoff.Policy {
	return &backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *YouTubeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewYouTubeClient(context.Background(), nil, YouTubeOptions{
		Policy: fastPolicy(),
		Upload: shared.DefaultConfig().Upload,
		Logger: shared.NewLogger(io.Discard),
		ClientOptions: []option.ClientOption{
			option.WithHTTPClient(srv.Client()),
			option.WithEndpoint(srv.URL + "/"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]any{{"reason": reason, "message": reason}},
		},
	})
}

func playlist(id, title string) map[string]any {
	return map[string]any{
		"id":      id,
		"snippet": map[string]any{"title": title},
		"status":  map[string]any{"privacyStatus": "private"},
	}
}

func TestFindPlaylistByName(t *testing.T) {
	ctx := context.Background()

	t.Run("searches every page", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if !strings.HasSuffix(r.URL.Path, "/playlists") || r.Method != http.MethodGet {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.URL.Query().Get("mine") != "true" {
				t.Errorf("expected mine=true, got %q", r.URL.RawQuery)
			}
			switch r.URL.Query().Get("pageToken") {
			case "":
				writeJSON(w, 200, map[string]any{
					"items":         []any{playlist("PL1", "Other")},
					"nextPageToken": "p2",
				})
			case "p2":
				writeJSON(w, 200, map[string]any{"items": []any{playlist("PL2", "Streams")}})
			}
		})

		p, err := c.FindPlaylistByName(ctx, "Streams")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ID != "PL2" || p.Privacy != Private {
			t.Errorf("unexpected playlist %+v", p)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"items": []any{playlist("PL1", "streams")}})
		})
		_, err := c.FindPlaylistByName(ctx, "Streams")
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				apiError(w, http.StatusServiceUnavailable, "backendError")
				return
			}
			writeJSON(w, 200, map[string]any{"items": []any{playlist("PL1", "Streams")}})
		})
		if _, err := c.FindPlaylistByName(ctx, "Streams"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			apiError(w, http.StatusBadRequest, "invalidParameter")
		})
		_, err := c.FindPlaylistByName(ctx, "Streams")
		if err == nil || errors.Is(err, backoff.ErrRetriesExhausted) {
			t.Errorf("expected a fatal error, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			apiError(w, http.StatusTooManyRequests, "rateLimitExceeded")
		})
		_, err := c.FindPlaylistByName(ctx, "Streams")
		if !errors.Is(err, backoff.ErrRetriesExhausted) {
			t.Errorf("expected exhaustion, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
	})
}

func TestFindOrCreatePlaylist(t *testing.T) {
	var created map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, 200, map[string]any{"items": []any{}})
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Errorf("bad body: %v", err)
			}
			writeJSON(w, 200, map[string]any{
				"id":      "PLNEW",
				"snippet": created["snippet"],
				"status":  created["status"],
			})
		}
	})

	p, err := c.FindOrCreatePlaylist(context.Background(), "Streams", Unlisted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "PLNEW" || p.Title != "Streams" || p.Privacy != Unlisted {
		t.Errorf("unexpected playlist %+v", p)
	}
	status, _ := created["status"].(map[string]any)
	if status["privacyStatus"] != "unlisted" {
		t.Errorf("expected unlisted privacy in request, got %v", created)
	}
}

func TestAddVideoToPlaylist(t *testing.T) {
	var body struct {
		Snippet struct {
			PlaylistID string `json:"playlistId"`
			ResourceID struct {
				Kind    string `json:"kind"`
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/playlistItems") || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad body: %v", err)
		}
		writeJSON(w, 200, map[string]any{"id": "item1"})
	})

	if err := c.AddVideoToPlaylist(context.Background(), "vid1", "PL1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Snippet.PlaylistID != "PL1" || body.Snippet.ResourceID.VideoID != "vid1" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Snippet.ResourceID.Kind != "youtube#video" {
		t.Errorf("unexpected kind %q", body.Snippet.ResourceID.Kind)
	}
}

func TestUploadVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("sends metadata and media", func(t *testing.T) {
		var uploaded atomic.Value
		var srvURL string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			switch {
			case r.URL.Query().Get("uploadType") == "resumable":
				uploaded.Store(string(data))
				w.Header().Set("Location", srvURL+"/upload/session")
				w.WriteHeader(http.StatusOK)
				return
			case strings.HasSuffix(r.URL.Path, "/upload/session"):
			default:
				uploaded.Store(string(data))
				if got := r.URL.Query().Get("part"); got != "snippet,status" {
					t.Errorf("unexpected part %q", got)
				}
			}
			writeJSON(w, 200, map[string]any{
				"id":      "vid42",
				"snippet": map[string]any{"title": "My clip"},
			})
		})
		srvURL = strings.TrimSuffix(c.svc.BasePath, "/")

		v, err := c.UploadVideo(context.Background(), VideoUpload{
			Path:    path,
			Title:   "My clip",
			Tags:    []string{"a"},
			Privacy: Public,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.ID != "vid42" || v.Title != "My clip" || v.Privacy != Public {
			t.Errorf("unexpected video %+v", v)
		}

		body, _ := uploaded.Load().(string)
		for _, want := range []string{
			`"categoryId":"20"`,
			`"selfDeclaredMadeForKids":false`,
			`"embeddable":true`,
			`"publicStatsViewable":true`,
			`"privacyStatus":"public"`,
		} {
			if !strings.Contains(body, want) {
				t.Errorf("upload metadata missing %s", want)
			}
		}
	})

	t.Run("missing file is fatal", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})
		_, err := c.UploadVideo(context.Background(), VideoUpload{Path: filepath.Join(t.TempDir(), "nope.mp4"), Title: "x"})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
		if calls.Load() != 0 {
			t.Error("no request should be made")
		}
	})

	t.Run("defaults privacy from config", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, map[string]any{"id": "vid1"})
		})
		v, err := c.UploadVideo(context.Background(), VideoUpload{Path: path, Title: "t"})
		if err != nil {
			t.Fatal(err)
		}
		if v.Privacy != Private {
			t.Errorf("expected private, got %s", v.Privacy)
		}
	})
}

func TestParsePrivacy(t *testing.T) {
	tests := []struct {
		in      string
		want    PrivacyStatus
		wantErr bool
	}{
		{"public", Public, false},
		{" Unlisted ", Unlisted, false},
		{"PRIVATE", Private, false},
		{"secret", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrivacy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if tt.wantErr && !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
