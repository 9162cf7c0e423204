package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/model"
	"github.com/rendis/geodir/internal/tui/styles"
)

// CategoryLister lists categories with their listing counts.
type CategoryLister interface {
	Categories(ctx context.Context) ([]model.FacetValue, error)
}

type CategoriesModel struct {
	lister  CategoryLister
	all     []model.FacetValue
	shown   []model.FacetValue
	filter  textinput.Model
	spinner spinner.Model
	cursor  int
	loading bool
	err     error
}

type categoriesLoadedMsg struct {
	values []model.FacetValue
	err    error
}

func NewCategoriesModel(lister CategoryLister) CategoriesModel {
	filter := textinput.New()
	filter.Placeholder = "type to filter..."
	filter.CharLimit = 40
	filter.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Secondary)

	return CategoriesModel{lister: lister, filter: filter, spinner: sp, loading: true}
}

func (m CategoriesModel) Init() tea.Cmd {
	lister := m.lister
	return tea.Batch(m.spinner.Tick, textinput.Blink, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		vals, err := lister.Categories(ctx)
		return categoriesLoadedMsg{values: vals, err: err}
	})
}

func (m CategoriesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case categoriesLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.all = msg.values
		m.applyFilter()
		return m, nil
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		case "up", "ctrl+k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+j":
			if m.cursor < len(m.shown)-1 {
				m.cursor++
			}
			return m, nil
		case "enter":
			if m.cursor < len(m.shown) {
				slug := m.shown[m.cursor].Slug
				return m, func() tea.Msg { return NavigateToBrowse{Slug: slug} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *CategoriesModel) applyFilter() {
	q := search.Normalize(strings.TrimSpace(m.filter.Value()))
	m.shown = m.shown[:0]
	for _, v := range m.all {
		if q == "" || strings.Contains(search.Normalize(v.Value), q) {
			m.shown = append(m.shown, v)
		}
	}
	if m.cursor >= len(m.shown) {
		m.cursor = max(len(m.shown)-1, 0)
	}
}

func (m CategoriesModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Categories"))
	b.WriteString("\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " loading categories")
	case m.err != nil:
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
	case len(m.shown) == 0:
		b.WriteString(styles.Hint.Render("No categories match"))
	}

	// Show max 15 items
	start := 0
	if m.cursor > 12 {
		start = m.cursor - 12
	}
	end := min(start+15, len(m.shown))
	count := lipgloss.NewStyle().Foreground(styles.Muted)
	for i := start; i < end; i++ {
		v := m.shown[i]
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, style.Render(v.Value), count.Render(fmt.Sprintf("(%d)", v.Count))))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter browse • esc back"))

	return styles.Border.Render(b.String())
}
