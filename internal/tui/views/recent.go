package views

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/rendis/geodir/internal/tui/styles"
)

type RecentEntry struct {
	Slug     string
	Name     string
	OpenedAt time.Time
}

type RecentModel struct {
	entries []RecentEntry
	cursor  int
	now     func() time.Time
}

func NewRecentModel(entries []RecentEntry) RecentModel {
	return RecentModel{entries: entries, now: time.Now}
}

func (m RecentModel) Init() tea.Cmd {
	return nil
}

func (m RecentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.entries) {
				slug := m.entries[m.cursor].Slug
				return m, func() tea.Msg { return NavigateToBrowse{Slug: slug} }
			}
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		}
	}
	return m, nil
}

func (m RecentModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Recent Categories"))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(styles.Hint.Render("Nothing browsed yet"))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
		return styles.Border.Render(b.String())
	}

	for i, entry := range m.entries {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		name := entry.Name
		if name == "" {
			name = "All"
		}
		slug := entry.Slug
		if slug == "" {
			slug = "all"
		}
		opened := humanize.RelTime(entry.OpenedAt, m.now(), "ago", "from now")
		detail := styles.Hint.Render(fmt.Sprintf("  /%s  %s", slug, opened))

		b.WriteString(fmt.Sprintf("%s%s\n%s\n", cursor, style.Render(name), detail))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("enter browse • esc back"))

	return styles.Border.Render(b.String())
}
