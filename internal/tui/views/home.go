package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodir/internal/tui/styles"
)

type menuItem struct {
	key    string
	label  string
	desc   string
	action func() tea.Msg
}

type HomeModel struct {
	items   []menuItem
	cursor  int
	version string
	backend string
}

// NewHomeModel builds the main menu. canImport adds the import entry, which
// only makes sense for a local index.
func NewHomeModel(version, backend string, canImport bool) HomeModel {
	items := []menuItem{
		{key: "b", label: "Browse", desc: "All listings near the default location",
			action: func() tea.Msg { return NavigateToBrowse{} }},
		{key: "c", label: "Categories", desc: "Pick a category to browse",
			action: func() tea.Msg { return NavigateToCategories{} }},
		{key: "r", label: "Recent", desc: "Categories you browsed lately",
			action: func() tea.Msg { return NavigateToRecent{} }},
	}
	if canImport {
		items = append(items, menuItem{key: "i", label: "Import", desc: "Load a listings file into the local index",
			action: func() tea.Msg { return NavigateToImport{} }})
	}
	items = append(items, menuItem{key: "q", label: "Quit", desc: "Exit geodir", action: func() tea.Msg { return tea.Quit() }})
	return HomeModel{items: items, version: version, backend: backend}
}

func (m HomeModel) Init() tea.Cmd {
	return nil
}

func (m HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		return m, m.items[m.cursor].action
	case "q":
		return m, tea.Quit
	default:
		for i, it := range m.items {
			if it.key == key.String() {
				m.cursor = i
				return m, it.action
			}
		}
	}
	return m, nil
}

func (m HomeModel) View() string {
	var b strings.Builder

	logo := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Render("  geodir")

	version := lipgloss.NewStyle().
		Foreground(styles.Muted).
		Render(" " + m.version)

	tagline := lipgloss.NewStyle().
		Foreground(styles.Secondary).
		Italic(true).
		Render("  Find services near you")

	b.WriteString(logo + version + "\n")
	b.WriteString(tagline + "\n")
	b.WriteString(styles.Hint.Render("  index: "+m.backend) + "\n\n")

	for i, item := range m.items {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		key := lipgloss.NewStyle().
			Foreground(styles.Secondary).
			Bold(true).
			Render(fmt.Sprintf("[%s]", item.key))

		label := style.Render(item.label)
		desc := lipgloss.NewStyle().
			Foreground(styles.Muted).
			Render(" - " + item.desc)

		b.WriteString(fmt.Sprintf("%s%s %s%s\n", cursor, key, label, desc))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter select • q quit"))

	return styles.Border.Render(b.String())
}

// Navigation messages
type NavigateToHome struct{}
type NavigateToCategories struct{}
type NavigateToRecent struct{}
type NavigateToImport struct{}

// NavigateToBrowse opens the browse view on a category. An empty Slug means
// all categories.
type NavigateToBrowse struct {
	Slug string
}
