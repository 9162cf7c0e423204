package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/tui/styles"
)

// Importer stores the listings read from r, updating stats as it goes.
type Importer func(ctx context.Context, r io.Reader, stats *search.ImportStats) error

// sharedState holds data shared between the import goroutine and the TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	stats  search.ImportStats
	read   atomic.Int64 // bytes consumed
	size   atomic.Int64
}

// ProgressModel runs an import and shows its progress.
type ProgressModel struct {
	path        string
	importer    Importer
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	shared      *sharedState
}

type progressTickMsg time.Time

type importCompleteMsg struct {
	Err error
}

func NewProgressModel(path string, importer Importer) ProgressModel {
	return ProgressModel{
		path:      path,
		importer:  importer,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		startTime: time.Now(),
		shared:    &sharedState{},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.startImport(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

// countingReader tracks how many bytes the decoder consumed.
type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (m ProgressModel) startImport() tea.Cmd {
	shared := m.shared
	path := m.path
	importer := m.importer

	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return importCompleteMsg{Err: err}
		}
		defer f.Close()
		if fi, err := f.Stat(); err == nil {
			shared.size.Store(fi.Size())
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		shared.mu.Lock()
		shared.cancel = cancel
		shared.mu.Unlock()

		err = importer(ctx, countingReader{r: f, n: &shared.read}, &shared.stats)
		return importCompleteMsg{Err: err}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.shared.stop()
			return m, tea.Quit
		case "esc":
			if m.done {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				m.shared.stop()
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done && m.err == nil {
				return m, func() tea.Msg { return NavigateToBrowse{} }
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case importCompleteMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}

	pModel, cmd := m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Importing %s", filepath.Base(m.path))))
	b.WriteString("\n\n")

	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(m.renderStats())
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.shared.fraction(m.done)))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil && !errors.Is(m.err, context.Canceled):
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
	case m.done:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
			Render(fmt.Sprintf("Complete! %d listings stored", m.shared.stats.Stored.Load())))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter browse • esc back"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the import and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	st := &m.shared.stats
	elapsed := time.Since(m.startTime).Truncate(time.Second)

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)
	row := func(label, value string, style lipgloss.Style) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(style.Render(value))
		sb.WriteString("\n")
	}

	row("Read:", fmt.Sprintf("%d", st.Read.Load()), statVal)
	row("Stored:", fmt.Sprintf("%d", st.Stored.Load()), statVal)
	row("Skipped:", fmt.Sprintf("%d", st.Skipped.Load()), statVal)
	row("Batches:", fmt.Sprintf("%d", st.Batches.Load()), statVal)
	if n := st.Failures.Load(); n > 0 {
		row("Failures:", fmt.Sprintf("%d", n), lipgloss.NewStyle().Foreground(styles.Error).Bold(true))
	}
	row("Elapsed:", elapsed.String(), statVal)
	return sb.String()
}

func (s *sharedState) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *sharedState) fraction(done bool) float64 {
	if done {
		return 1
	}
	size := s.size.Load()
	if size <= 0 {
		return 0
	}
	return min(float64(s.read.Load())/float64(size), 1)
}
