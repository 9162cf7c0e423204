package tui

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/tui/views"
)

type viewID int

const (
	viewHome viewID = iota
	viewCategories
	viewRecent
	viewBrowse
	viewFilters
	viewFilePicker
	viewProgress
)

// Deps are what the TUI needs from the rest of geodir.
type Deps struct {
	Version    string
	Backend    string
	NewSession func(id string) *session.Session
	Categories views.CategoryLister
	// Importer is nil when the index is not local.
	Importer    views.Importer
	ServiceArea orb.MultiPolygon
	Recent      *RecentStore
	Logger      *slog.Logger
}

// App is the root bubbletea model. One browsing session lives for the
// whole run; views drive it.
type App struct {
	deps        Deps
	session     *session.Session
	currentView viewID
	width       int
	height      int
	home        views.HomeModel
	categories  views.CategoriesModel
	recent      views.RecentModel
	browse      views.BrowseModel
	browsing    bool
	filters     views.FiltersModel
	filePicker  views.FilePickerModel
	progress    views.ProgressModel
}

func NewApp(deps Deps) App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Recent == nil {
		deps.Recent = NewRecentStore(DefaultRecentPath())
	}
	return App{
		deps:        deps,
		session:     deps.NewSession(uuid.NewString()),
		currentView: viewHome,
		home:        views.NewHomeModel(deps.Version, deps.Backend, deps.Importer != nil),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && a.currentView != viewProgress {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.browsing && a.currentView != viewBrowse {
			// Keep the hidden browse view laid out for when it returns.
			m, _ := a.browse.Update(msg)
			a.browse = m.(views.BrowseModel)
		}
	case views.NavigateToHome:
		a.currentView = viewHome
		return a, nil
	case views.NavigateToCategories:
		a.currentView = viewCategories
		a.categories = views.NewCategoriesModel(a.deps.Categories)
		return a, a.categories.Init()
	case views.NavigateToRecent:
		a.currentView = viewRecent
		var entries []views.RecentEntry
		for _, e := range a.deps.Recent.Load() {
			entries = append(entries, views.RecentEntry{Slug: e.Slug, Name: e.Name, OpenedAt: e.OpenedAt})
		}
		a.recent = views.NewRecentModel(entries)
		return a, a.recent.Init()
	case views.NavigateToBrowse:
		a.currentView = viewBrowse
		a.browsing = true
		a.browse = views.NewBrowseModel(a.session, msg.Slug, a.deps.ServiceArea)
		return a, tea.Batch(a.browse.Init(), a.sizeCmd())
	case views.CategoryOpened:
		if msg.Category.Slug != "" {
			if err := a.deps.Recent.Save(msg.Category.Slug, msg.Category.Name, time.Now()); err != nil {
				a.deps.Logger.Warn("saving recent categories", "error", err)
			}
		}
		return a, nil
	case views.NavigateToFilters:
		a.currentView = viewFilters
		a.filters = views.NewFiltersModel(a.session, msg.Eligibilities)
		return a, a.filters.Init()
	case views.FiltersDone:
		a.currentView = viewBrowse
		m, cmd := a.browse.Update(msg)
		a.browse = m.(views.BrowseModel)
		return a, cmd
	case views.NavigateToImport:
		a.currentView = viewFilePicker
		a.filePicker = views.NewFilePickerModel("")
		return a, a.filePicker.Init()
	case views.StartImportMsg:
		a.currentView = viewProgress
		a.progress = views.NewProgressModel(msg.Path, a.deps.Importer)
		return a, tea.Batch(a.progress.Init(), a.sizeCmd())
	}

	var cmd tea.Cmd
	var m tea.Model
	switch a.currentView {
	case viewHome:
		m, cmd = a.home.Update(msg)
		a.home = m.(views.HomeModel)
	case viewCategories:
		m, cmd = a.categories.Update(msg)
		a.categories = m.(views.CategoriesModel)
	case viewRecent:
		m, cmd = a.recent.Update(msg)
		a.recent = m.(views.RecentModel)
	case viewBrowse:
		m, cmd = a.browse.Update(msg)
		a.browse = m.(views.BrowseModel)
	case viewFilters:
		m, cmd = a.filters.Update(msg)
		a.filters = m.(views.FiltersModel)
		// Results and category changes keep flowing to the browse view.
		if a.browsing && !isKey(msg) {
			var bcmd tea.Cmd
			m, bcmd = a.browse.Update(msg)
			a.browse = m.(views.BrowseModel)
			cmd = tea.Batch(cmd, bcmd)
		}
	case viewFilePicker:
		m, cmd = a.filePicker.Update(msg)
		a.filePicker = m.(views.FilePickerModel)
	case viewProgress:
		m, cmd = a.progress.Update(msg)
		a.progress = m.(views.ProgressModel)
	}

	return a, cmd
}

func isKey(msg tea.Msg) bool {
	_, ok := msg.(tea.KeyMsg)
	return ok
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewHome:
		content = a.home.View()
	case viewCategories:
		content = a.categories.View()
	case viewRecent:
		content = a.recent.View()
	case viewBrowse:
		content = a.browse.View()
	case viewFilters:
		content = a.filters.View()
	case viewFilePicker:
		content = a.filePicker.View()
	case viewProgress:
		content = a.progress.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run(deps Deps) error {
	p := tea.NewProgram(NewApp(deps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
