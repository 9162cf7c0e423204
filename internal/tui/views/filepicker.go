package views

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/rendis/geodir/internal/tui/styles"
)

// importExts are the listing dump formats Import reads.
var importExts = []string{".json", ".jsonl", ".ndjson"}

const pickerRows = 15

type pickerEntry struct {
	name string
	dir  bool
	size int64
}

// FilePickerModel browses directories for a listings file to import.
// Directories are listed first; hidden entries are skipped.
type FilePickerModel struct {
	dir     string
	entries []pickerEntry
	cursor  int
	err     error
}

func NewFilePickerModel(dir string) FilePickerModel {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	m := FilePickerModel{dir: dir}
	m.readDir()
	return m
}

func importable(name string) bool {
	return slices.Contains(importExts, strings.ToLower(filepath.Ext(name)))
}

func (m *FilePickerModel) readDir() {
	des, err := os.ReadDir(m.dir)
	m.cursor = 0
	m.entries = nil
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") || (!de.IsDir() && !importable(name)) {
			continue
		}
		e := pickerEntry{name: name, dir: de.IsDir()}
		if !e.dir {
			if info, err := de.Info(); err == nil {
				e.size = info.Size()
			}
		}
		m.entries = append(m.entries, e)
	}
	slices.SortStableFunc(m.entries, func(a, b pickerEntry) int {
		if a.dir != b.dir {
			if a.dir {
				return -1
			}
			return 1
		}
		return cmp.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
	})
}

func (m *FilePickerModel) enter(dir string) {
	m.dir = dir
	m.readDir()
}

func (m FilePickerModel) Init() tea.Cmd {
	return nil
}

func (m FilePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.entries)-1), 0)
	case "enter":
		if m.cursor >= len(m.entries) {
			return m, nil
		}
		e := m.entries[m.cursor]
		path := filepath.Join(m.dir, e.name)
		if e.dir {
			m.enter(path)
			return m, nil
		}
		return m, func() tea.Msg { return StartImportMsg{Path: path} }
	case "backspace", "h":
		if parent := filepath.Dir(m.dir); parent != m.dir {
			m.enter(parent)
		}
	case "esc":
		return m, func() tea.Msg { return NavigateToHome{} }
	}
	return m, nil
}

func (m FilePickerModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Import Listings"))
	b.WriteString("\n")
	b.WriteString(styles.Hint.Render(m.dir))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		return styles.Border.Render(b.String())
	}
	if len(m.entries) == 0 {
		b.WriteString(styles.Hint.Render("Nothing to import here (.json, .jsonl, .ndjson)"))
		b.WriteString("\n")
	}

	start := max(m.cursor-(pickerRows-3), 0)
	end := min(start+pickerRows, len(m.entries))
	for i := start; i < end; i++ {
		e := m.entries[i]
		marker, style := "  ", styles.InactiveItem
		if i == m.cursor {
			marker, style = "> ", styles.ActiveItem
		}
		if e.dir {
			fmt.Fprintf(&b, "%s📁 %s\n", marker, style.Render(e.name+"/"))
			continue
		}
		fmt.Fprintf(&b, "%s📄 %s  %s\n", marker, style.Render(e.name), styles.Hint.Render(humanize.Bytes(uint64(e.size))))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("enter open/import • backspace parent dir • esc back"))

	return styles.Border.Render(b.String())
}

// StartImportMsg starts importing the file at Path.
type StartImportMsg struct {
	Path string
}
