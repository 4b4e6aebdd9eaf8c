// Package services wraps the YouTube Data API behind the [Uploader] interface.
//
// # YouTube Client
//
// [YouTubeClient] is built from an [auth.Credential]; its token source refreshes
// and re-persists the token as needed. Every call (playlist listing, playlist
// creation, playlist item insertion, video upload) runs through [backoff.Execute]
// so rate limits and transient server errors are retried with the same policy.
//
// # Uploads
//
// Videos are sent with the resumable media protocol in chunks of
// upload.chunk_size_mb. Chunk-level retries belong to the client library; a
// failed upload as a whole is retried by re-opening the file and starting over.
//
// # Errors
//
//   - [shared.ErrPlaylistNotFound] : no playlist with the given title on the channel
//   - [backoff.ErrRetriesExhausted] : every attempt failed with a retryable error
//   - [*backoff.StatusError] : the API answered with a non-2xx status
package services
