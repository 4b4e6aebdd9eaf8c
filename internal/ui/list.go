package ui

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ytup/internal/tasks"
)

var (
	_ list.Item = fileItem{}
)

// fileItem wraps [tasks.PublishRequest] to implement [list.Item].
type fileItem struct {
	req tasks.PublishRequest
}

func (i fileItem) FilterValue() string { return i.req.Path }
func (i fileItem) Title() string {
	if i.req.Title != "" {
		return i.req.Title
	}
	return filepath.Base(i.req.Path)
}
func (i fileItem) Description() string {
	desc := i.req.Path
	if i.req.Privacy != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.req.Privacy)
	}
	if i.req.Playlist != "" {
		desc = fmt.Sprintf("%s • playlist %q", desc, i.req.Playlist)
	}
	return desc
}
