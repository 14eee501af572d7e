package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/repositories"
	"github.com/groupmix/smartsort/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	GroupListView ViewState = iota
	ConfirmView
	SortView
	ResultView
)

// GroupSource lists the groups available for sorting.
type GroupSource interface {
	Groups() ([]repositories.GroupInfo, error)
}

// SortRunner executes one sort run with progress reporting.
type SortRunner interface {
	Run(ctx context.Context, req models.SortRequest, progress chan<- tasks.ProgressUpdate) (*models.SortResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx           context.Context
	view          ViewState
	source        GroupSource
	engine        SortRunner
	width         int
	height        int
	groupList     list.Model
	groups        []repositories.GroupInfo
	selectedGroup repositories.GroupInfo
	mode          models.SortMode
	skipAI        bool
	progressChan  chan tasks.ProgressUpdate
	progress      tasks.ProgressUpdate
	spin          spinner.Model
	runResult     *models.SortResult
	runErr        error
	result        *models.SortResult
	err           error
	help          help.Model
	keys          keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, source GroupSource, engine SortRunner) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		ctx:    ctx,
		view:   GroupListView,
		source: source,
		engine: engine,
		mode:   models.ModeAll,
		spin:   sp,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init initializes the TUI by loading the group listing.
func (m *Model) Init() tea.Cmd {
	return m.fetchGroups()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.groupList.Width() == 0 {
			m.groupList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case GroupListView:
			return m.handleGroupListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case groupsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.groups = msg.groups
		items := make([]list.Item, len(msg.groups))
		for i, g := range msg.groups {
			items[i] = groupItem{group: g}
		}
		m.groupList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.groupList.Title = "Groups"
		m.groupList.SetSize(m.width-4, m.height-8)
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case sortCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case GroupListView:
		return m.renderGroupList()
	case ConfirmView:
		return m.renderConfirm()
	case SortView:
		return m.renderSort()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleGroupListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		selected := m.groupList.SelectedItem()
		if selected != nil {
			if g, ok := selected.(groupItem); ok {
				m.selectedGroup = g.group
				m.view = ConfirmView
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.groupList, cmd = m.groupList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "n":
		m.view = GroupListView
		return m, nil
	case "m":
		if m.mode == models.ModeAll {
			m.mode = models.ModePlaylist
		} else {
			m.mode = models.ModeAll
		}
		return m, nil
	case "a":
		m.skipAI = !m.skipAI
		return m, nil
	case "y", "enter":
		m.view = SortView
		return m, tea.Batch(m.spin.Tick, m.startSort())
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = GroupListView
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.view == GroupListView {
		m.groupList, cmd = m.groupList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchGroups() tea.Cmd {
	return func() tea.Msg {
		groups, err := m.source.Groups()
		return groupsFetchedMsg{groups: groups, err: err}
	}
}

func (m *Model) startSort() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	req := models.SortRequest{
		GroupID:     m.selectedGroup.GroupID,
		Mode:        m.mode,
		SkipAI:      m.skipAI,
		SubmittedAt: time.Now(),
	}

	progress := m.progressChan
	go func() {
		result, err := m.engine.Run(m.ctx, req, progress)
		m.runResult = result
		m.runErr = err
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return sortCompleteMsg{result: m.runResult, err: m.runErr}
		}

		update, ok := <-m.progressChan
		if !ok {
			return sortCompleteMsg{result: m.runResult, err: m.runErr}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderGroupList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.groupList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Sort group '%s'?", m.selectedGroup.GroupID))

	scope := "one unified order"
	if m.mode == models.ModePlaylist {
		scope = "one order per playlist"
	}
	refine := "model refinement on"
	if m.skipAI {
		refine = "heuristic only"
	}
	info := fmt.Sprintf(
		"\nPlaylists: %d\nSongs: %d\nScope: %s\nRefinement: %s\n",
		m.selectedGroup.PlaylistCount,
		m.selectedGroup.SongCount,
		scope,
		refine,
	)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.mode, m.keys.ai, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderSort() string {
	title := styles.title.Render("Sorting")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchMetadata:
		phase = "Fetching song metadata..."
	case tasks.HeuristicSort:
		phase = "Ordering songs..."
	case tasks.VerifyOrder:
		phase = "Refining order with the model..."
	case tasks.Persist:
		phase = "Saving sorted order..."
	default:
		phase = "Processing..."
	}

	step := ""
	if m.progress.Total > 0 {
		step = fmt.Sprintf(" (%d/%d)", m.progress.Step, m.progress.Total)
	}

	return fmt.Sprintf("%s\n\n%s %s%s\n%s", title, m.spin.View(), phase, step, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sort failed: %v\n\nPress r to retry, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to retry, q to quit")
	}

	title := styles.ok.Render("✓ Sort Complete!")
	summary := m.result.Summary
	info := fmt.Sprintf(
		"\nGroup: %s\nMethod: %s\nSongs: %d\nDuration: %s",
		m.result.GroupID,
		m.result.Method,
		summary.SongsProcessed,
		summary.TotalDuration.Round(time.Millisecond),
	)

	var notes []string
	if m.result.FallbackUsed() {
		notes = append(notes, styles.warn.Render("Model refinement unavailable, heuristic order kept"))
	}
	if len(summary.SkippedSources) > 0 {
		notes = append(notes, styles.warn.Render(fmt.Sprintf("Skipped slow sources: %s", strings.Join(summary.SkippedSources, ", "))))
	}
	if !summary.LastWriteWins {
		notes = append(notes, styles.warn.Render("A newer sort finished first, stored order unchanged"))
	}

	extra := ""
	if len(notes) > 0 {
		extra = "\n\n" + strings.Join(notes, "\n")
	}

	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, extra, helpView)
}
