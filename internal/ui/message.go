package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytup/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgBatchComplete
)

type batchComplete struct {
	result *tasks.BatchResult
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// batchCompleteMsg is the constructor for [MsgBatchComplete]
func batchCompleteMsg(result *tasks.BatchResult, err error) Msg {
	return Msg{kind: MsgBatchComplete, data: batchComplete{result, err}}
}
