package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytup/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	UploadView
	ResultView
)

// itemState tracks the latest update for one file.
type itemState struct {
	req    tasks.PublishRequest
	update tasks.ProgressUpdate
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	publisher    *tasks.Publisher
	reqs         []tasks.PublishRequest
	opts         tasks.BatchOpts
	width        int
	height       int
	fileList     list.Model
	items        []*itemState
	index        map[string]int
	bar          progress.Model
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	result       *tasks.BatchResult
	err          error
	aborted      bool
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model for publishing reqs.
func NewModel(ctx context.Context, publisher *tasks.Publisher, reqs []tasks.PublishRequest, opts tasks.BatchOpts) *Model {
	ctx, cancel := context.WithCancel(ctx)

	listItems := make([]list.Item, len(reqs))
	items := make([]*itemState, len(reqs))
	index := make(map[string]int, len(reqs))
	for i, r := range reqs {
		listItems[i] = fileItem{req: r}
		items[i] = &itemState{req: r}
		index[r.Path] = i
	}
	fileList := list.New(listItems, list.NewDefaultDelegate(), 0, 0)
	fileList.Title = fmt.Sprintf("Upload %d files?", len(reqs))
	fileList.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:       ctx,
		cancel:    cancel,
		view:      ConfirmView,
		publisher: publisher,
		reqs:      reqs,
		opts:      opts,
		fileList:  fileList,
		items:     items,
		index:     index,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:   sp,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, publisher *tasks.Publisher, reqs []tasks.PublishRequest, opts tasks.BatchOpts, progOpts ...tea.ProgramOption) (*tasks.BatchResult, error) {
	m := NewModel(ctx, publisher, reqs, opts)
	defer m.cancel()

	final, err := tea.NewProgram(m, progOpts...).Run()
	if err != nil {
		return nil, err
	}
	fm := final.(*Model)
	if fm.aborted && fm.result == nil {
		return nil, context.Canceled
	}
	return fm.result, fm.err
}

// Result returns the batch result once the upload finished.
func (m *Model) Result() (*tasks.BatchResult, error) { return m.result, m.err }

// Init implements [tea.Model].
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fileList.SetSize(msg.Width-4, msg.Height-6)
		if w := msg.Width - 30; w > 10 {
			m.bar.Width = min(w, 60)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case UploadView:
			return m.handleUploadKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != UploadView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.apply(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgBatchComplete:
			data := msg.data.(batchComplete)
			m.result = data.result
			m.err = data.err
			m.view = ResultView
			m.progressChan = nil
			if data.result != nil {
				for _, r := range data.result.Results {
					if r == nil {
						continue
					}
					if r.Succeeded() {
						m.set(r.Request.Path, tasks.ProgressUpdate{Phase: tasks.Completed, Item: r.Request.Path, Step: 1, Total: 1, Data: r})
					} else {
						m.set(r.Request.Path, tasks.ProgressUpdate{Phase: tasks.Failed, Item: r.Request.Path, Step: 1, Total: 1, Data: r})
					}
				}
			}
			return m, nil
		}
	}

	if m.view == ConfirmView {
		var cmd tea.Cmd
		m.fileList, cmd = m.fileList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(u tasks.ProgressUpdate) {
	if u.Item == "" {
		return
	}
	m.set(u.Item, u)
}

func (m *Model) set(path string, u tasks.ProgressUpdate) {
	i, ok := m.index[path]
	if !ok {
		return
	}
	prev := m.items[i].update
	// Late byte updates must not reopen a finished item.
	if prev.Phase.Done() && !u.Phase.Done() {
		return
	}
	m.items[i].update = u
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		m.aborted = true
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.yes):
		m.view = UploadView
		return m, tea.Batch(m.startUpload(), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.fileList, cmd = m.fileList.Update(msg)
	return m, cmd
}

func (m *Model) handleUploadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.aborted = true
		m.cancel()
	case key.Matches(msg, m.keys.quit):
		m.aborted = true
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) startUpload() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.done = make(chan Msg, 1)

	go func(progress chan tasks.ProgressUpdate, done chan<- Msg) {
		result, err := m.publisher.PublishBatch(m.ctx, progress, m.reqs, m.opts)
		done <- batchCompleteMsg(result, err)
		close(progress)
	}(m.progressChan, m.done)

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	return func() tea.Msg {
		if progress == nil {
			return nil
		}
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case UploadView:
		return m.renderUpload()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderConfirm() string {
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n\n%s", m.fileList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderUpload() string {
	var b strings.Builder
	title := "Uploading"
	if m.aborted {
		title = "Cancelling"
	}
	b.WriteString(styles.title.Render(fmt.Sprintf("%s %s %d files", m.spinner.View(), title, len(m.items))))
	b.WriteString("\n")
	for _, it := range m.items {
		b.WriteString(m.renderItem(it))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.cancel, m.keys.quit}))
	return b.String()
}

func (m *Model) renderItem(it *itemState) string {
	name := filepath.Base(it.req.Path)
	u := it.update
	switch u.Phase {
	case tasks.Completed:
		return fmt.Sprintf("%s %s", styles.ok.Render("✓"), name)
	case tasks.Failed:
		msg := "failed"
		if r, ok := u.Data.(*tasks.PublishResult); ok && r.Error != nil {
			msg = r.Error.Error()
		}
		return fmt.Sprintf("%s %s %s", styles.err.Render("✗"), name, styles.help.Render(msg))
	case tasks.UploadVideo:
		return fmt.Sprintf("  %s %s", m.bar.ViewAs(u.Percent()), name)
	case tasks.FindPlaylist, tasks.AddToPlaylist:
		return fmt.Sprintf("  %s %s %s", m.bar.ViewAs(1), name, styles.help.Render(u.Message))
	default:
		return fmt.Sprintf("  %s %s", styles.help.Render("waiting"), name)
	}
}

func (m *Model) renderResult() string {
	var b strings.Builder
	if m.result == nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Upload failed: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
		return b.String()
	}

	if m.result.Failed == 0 {
		b.WriteString(styles.ok.Render(fmt.Sprintf("✓ Uploaded %d/%d files", m.result.Succeeded, m.result.Total)))
	} else {
		b.WriteString(styles.warn.Render(fmt.Sprintf("Uploaded %d/%d files, %d failed", m.result.Succeeded, m.result.Total, m.result.Failed)))
	}
	b.WriteString(fmt.Sprintf("\nDuration: %s\n", m.result.Duration.Round(time.Millisecond)))

	for _, r := range m.result.Results {
		if r == nil {
			continue
		}
		name := filepath.Base(r.Request.Path)
		if r.Succeeded() {
			fmt.Fprintf(&b, "\n  %s %s → %s", styles.ok.Render("✓"), name, r.Video.ID)
		} else {
			fmt.Fprintf(&b, "\n  %s %s: %v", styles.err.Render("✗"), name, r.Error)
		}
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n\n%s", styles.warn.Render(m.err.Error()))
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}
