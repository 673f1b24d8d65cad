package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/homeqa/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// DefaultPollInterval is how often the view reads progress.
const DefaultPollInterval = 200 * time.Millisecond

const maxBarWidth = 60

type (
	tickMsg     struct{}
	progressMsg struct {
		progress domain.SyncProgress
		err      error
	}
)

// SyncModel renders the progress of one running sync until it finishes
// or the user stops watching.
type SyncModel struct {
	src      ProgressSource
	sourceID string
	title    string
	interval time.Duration

	styles *styles.Styles
	keys   *keymap.KeyMap
	bar    progress.Model
	help   help.Model

	last     domain.SyncProgress
	err      error
	done     bool
	detached bool
}

// NewSyncModel creates a view of sourceID's progress.
func NewSyncModel(src ProgressSource, sourceID, title string, s *styles.Styles) *SyncModel {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if title == "" {
		title = sourceID
	}
	theme := s.Theme()
	return &SyncModel{
		src:      src,
		sourceID: sourceID,
		title:    title,
		interval: DefaultPollInterval,
		styles:   s,
		keys:     keymap.DefaultKeyMap(),
		bar:      progress.New(progress.WithGradient(theme.ProgressFrom, theme.ProgressTo), progress.WithWidth(40)),
		help:     help.New(),
	}
}

// Init reads the first snapshot.
func (m *SyncModel) Init() tea.Cmd {
	return m.poll
}

func (m *SyncModel) poll() tea.Msg {
	p, err := m.src.GetProgress(m.sourceID)
	return progressMsg{progress: p, err: err}
}

func (m *SyncModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update implements tea.Model.
func (m *SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.detached = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, m.poll

	case progressMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		m.last = msg.progress
		if m.last.Idle() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m *SyncModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Syncing "+m.title) + "\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render("Error: "+m.err.Error()) + "\n")
		return b.String()
	}

	b.WriteString(m.bar.ViewAs(float64(m.last.Percent)/100) + "\n\n")

	status := m.last.StatusMessage
	switch {
	case m.last.Failed():
		status = m.styles.Error.Render(status)
	case m.done:
		status = m.styles.Success.Render(status)
	default:
		status = m.styles.Normal.Render(status)
	}
	b.WriteString(status + "\n")

	if m.last.MessagesTotal > 0 {
		b.WriteString(m.styles.Muted.Render(
			fmt.Sprintf("%d fetched, %d new", m.last.MessagesTotal, m.last.MessagesSeen)) + "\n")
	}
	if !m.done {
		b.WriteString("\n" + m.help.View(m.keys) + "\n")
	}
	return b.String()
}

// Result returns the last snapshot seen.
func (m *SyncModel) Result() (domain.SyncProgress, error) {
	return m.last, m.err
}

// Detached reports whether the user stopped watching before the sync ended.
func (m *SyncModel) Detached() bool {
	return m.detached
}

// RunSyncView runs the progress view until the sync of sourceID finishes,
// the user quits or ctx is cancelled.
func RunSyncView(
	ctx context.Context,
	src ProgressSource,
	sourceID, title string,
	in io.Reader,
	out io.Writer,
) (domain.SyncProgress, bool, error) {
	model := NewSyncModel(src, sourceID, title, nil)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return domain.SyncProgress{}, false, fmt.Errorf("running sync view: %w", err)
	}
	p, err := model.Result()
	return p, model.Detached(), err
}
