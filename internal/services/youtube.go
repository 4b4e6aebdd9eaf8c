package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/ytup/internal/auth"
	"github.com/desertthunder/ytup/internal/backoff"
	"github.com/desertthunder/ytup/internal/shared"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const videoKind = "youtube#video"

var _ Uploader = (*YouTubeClient)(nil)

// YouTubeOptions configures a [YouTubeClient].
type YouTubeOptions struct {
	Policy *backoff.Policy
	Upload shared.UploadConfig
	Logger *log.Logger
	// ClientOptions are appended after the credential's token source.
	ClientOptions []option.ClientOption
}

// YouTubeClient implements [Uploader] with the YouTube Data API v3.
type YouTubeClient struct {
	svc    *youtube.Service
	policy *backoff.Policy
	upload shared.UploadConfig
	logger *log.Logger
}

// NewYouTubeClient builds a client authorized by cred. A nil cred is allowed when
// ClientOptions supply their own transport.
func NewYouTubeClient(ctx context.Context, cred *auth.Credential, opts YouTubeOptions) (*YouTubeClient, error) {
	var clientOpts []option.ClientOption
	if cred != nil {
		clientOpts = append(clientOpts, option.WithTokenSource(cred.TokenSource(ctx)))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	policy := opts.Policy
	if policy == nil {
		policy = backoff.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	upload := opts.Upload
	if upload.CategoryID == "" {
		upload.CategoryID = shared.DefaultConfig().Upload.CategoryID
	}
	if upload.ContentType == "" {
		upload.ContentType = "video/mp4"
	}

	return &YouTubeClient{svc: svc, policy: policy, upload: upload, logger: logger}, nil
}

func (c *YouTubeClient) FindPlaylistByName(ctx context.Context, name string) (*Playlist, error) {
	pageToken := ""
	for {
		resp, err := backoff.Execute(ctx, c.policy, c.svc, pageToken,
			func(ctx context.Context, svc *youtube.Service, token string) (*youtube.PlaylistListResponse, error) {
				call := svc.Playlists.List([]string{"snippet", "status", "contentDetails"}).
					Mine(true).
					MaxResults(50).
					Context(ctx)
				if token != "" {
					call = call.PageToken(token)
				}
				resp, err := call.Do()
				if err != nil {
					return nil, err
				}
				return resp, backoff.CheckStatus(resp.HTTPStatusCode, resp.Header)
			})
		if err != nil {
			return nil, fmt.Errorf("list playlists: %w", err)
		}

		for _, item := range resp.Items {
			if item.Snippet != nil && item.Snippet.Title == name {
				return toPlaylist(item), nil
			}
		}

		if resp.NextPageToken == "" {
			return nil, fmt.Errorf("%w: %q", shared.ErrPlaylistNotFound, name)
		}
		pageToken = resp.NextPageToken
	}
}

func (c *YouTubeClient) FindOrCreatePlaylist(ctx context.Context, name string, privacy PrivacyStatus) (*Playlist, error) {
	p, err := c.FindPlaylistByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, err
	}

	c.logger.Info("creating playlist", "title", name, "privacy", privacy)
	return c.CreatePlaylist(ctx, name, privacy)
}

func (c *YouTubeClient) CreatePlaylist(ctx context.Context, name string, privacy PrivacyStatus) (*Playlist, error) {
	body := &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: name},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: string(privacy)},
	}

	created, err := backoff.Execute(ctx, c.policy, c.svc, body,
		func(ctx context.Context, svc *youtube.Service, body *youtube.Playlist) (*youtube.Playlist, error) {
			resp, err := svc.Playlists.Insert([]string{"snippet", "status"}, body).Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			return resp, backoff.CheckStatus(resp.HTTPStatusCode, resp.Header)
		})
	if err != nil {
		return nil, fmt.Errorf("create playlist %q: %w", name, err)
	}
	return toPlaylist(created), nil
}

func (c *YouTubeClient) AddVideoToPlaylist(ctx context.Context, videoID, playlistID string) error {
	item := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: videoKind, VideoId: videoID},
		},
	}

	_, err := backoff.Execute(ctx, c.policy, c.svc, item,
		func(ctx context.Context, svc *youtube.Service, item *youtube.PlaylistItem) (*youtube.PlaylistItem, error) {
			resp, err := svc.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			return resp, backoff.CheckStatus(resp.HTTPStatusCode, resp.Header)
		})
	if err != nil {
		return fmt.Errorf("add video %s to playlist %s: %w", videoID, playlistID, err)
	}
	return nil
}

func (c *YouTubeClient) UploadVideo(ctx context.Context, up VideoUpload) (*Video, error) {
	if up.Privacy == "" {
		up.Privacy = PrivacyStatus(c.upload.Privacy)
	}
	if up.CategoryID == "" {
		up.CategoryID = c.upload.CategoryID
	}

	// The file is reopened on every attempt so a retry starts from byte zero.
	video, err := backoff.Execute(ctx, c.policy, c.svc, up,
		func(ctx context.Context, svc *youtube.Service, up VideoUpload) (*youtube.Video, error) {
			f, err := os.Open(up.Path)
			if err != nil {
				return nil, err
			}
			defer f.Close()

			call := svc.Videos.Insert([]string{"snippet", "status"}, videoMetadata(up)).
				Media(f, googleapi.ContentType(c.upload.ContentType), googleapi.ChunkSize(c.upload.ChunkSize())).
				Context(ctx)
			if up.Progress != nil {
				call = call.ProgressUpdater(googleapi.ProgressUpdater(up.Progress))
			}

			resp, err := call.Do()
			if err != nil {
				return nil, err
			}
			return resp, backoff.CheckStatus(resp.HTTPStatusCode, resp.Header)
		})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", up.Path, err)
	}

	c.logger.Info("video uploaded", "id", video.Id, "title", up.Title)
	out := &Video{ID: video.Id, Title: up.Title, Privacy: up.Privacy}
	if video.Snippet != nil && video.Snippet.Title != "" {
		out.Title = video.Snippet.Title
	}
	return out, nil
}

// videoMetadata returns the insert body: stats public, embeddable, not made for kids.
func videoMetadata(up VideoUpload) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       up.Title,
			Description: up.Description,
			Tags:        up.Tags,
			CategoryId:  up.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           string(up.Privacy),
			PublicStatsViewable:     true,
			Embeddable:              true,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
}

func toPlaylist(p *youtube.Playlist) *Playlist {
	out := &Playlist{ID: p.Id}
	if p.Snippet != nil {
		out.Title = p.Snippet.Title
		out.Description = p.Snippet.Description
	}
	if p.Status != nil {
		out.Privacy = PrivacyStatus(p.Status.PrivacyStatus)
	}
	if p.ContentDetails != nil {
		out.ItemCount = p.ContentDetails.ItemCount
	}
	return out
}
