// Package ui implements a terminal progress view for batch uploads using bubbletea's Elm architecture.
//
// The TUI moves through three views:
//  1. [ConfirmView] : Review the queued files before anything is sent
//  2. [UploadView] : Watch per-file progress bars while workers upload
//  3. [ResultView] : Summary of uploaded and failed files
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.Publisher], so the UI never blocks an upload.
//
// Keyboard navigation uses vim-style bindings (j/k, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
