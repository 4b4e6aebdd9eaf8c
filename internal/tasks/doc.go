// Package tasks publishes local video files to a channel with real-time progress reporting.
//
// # Core Operations
//
// [Publisher] wraps a [services.Uploader] and an optional upload history:
//
//  1. [Publisher.Publish] : upload one file, then place it in a playlist
//     - Records a pending upload before any API call
//     - Sends the file with a resumable upload, reporting bytes sent
//     - Finds the named playlist or creates it, then appends the video
//     - Marks the record uploaded or failed
//
//  2. [Publisher.PublishBatch] : publish many files concurrently
//     - Bounded worker pool with a shared rate limiter
//     - One failure does not stop the remaining files
//     - Results keep the order of the requests
//
// # Progress Reporting
//
// All operations accept a channel of [ProgressUpdate]. Sends use select with default,
// so a slow or absent reader never blocks an upload.
package tasks
