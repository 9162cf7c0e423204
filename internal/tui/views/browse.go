package views

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/engine/dispatch"
	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/model"
	"github.com/rendis/geodir/internal/tui/components"
	"github.com/rendis/geodir/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusQuery
	focusCard
	focusMap
)

const requestTimeout = 15 * time.Second

// BrowseModel shows the results of a session: a table of hits, a detail
// card and a map. Every change goes through the session, which owns the
// search configuration.
type BrowseModel struct {
	session *session.Session
	slug    string

	category  model.Category
	resolved  bool
	result    model.Result
	searchSeq int
	searching bool
	err       error
	status    string

	table    table.Model
	query    textinput.Model
	spinner  spinner.Model
	mapView  components.MapView
	focus    focusArea
	selected int
	width    int
	height   int

	cardScrollY int
	cardLines   []string
}

type categoryChangedMsg struct {
	slug     string
	category model.Category
	err      error
}

type searchResultMsg struct {
	seq int
	res *model.Response
	err error
}

func NewBrowseModel(s *session.Session, slug string, border orb.MultiPolygon) BrowseModel {
	query := textinput.New()
	query.Placeholder = "search listings..."
	query.CharLimit = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Secondary)

	mv := components.NewMapView(40, 10)
	mv.SetBorder(border)

	m := BrowseModel{
		session:  s,
		slug:     slug,
		query:    query,
		spinner:  sp,
		mapView:  mv,
		selected: -1,
	}
	m.buildTable(nil)
	return m
}

func (m BrowseModel) Init() tea.Cmd {
	s, slug := m.session, m.slug
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		cat, err := s.ChangeCategory(ctx, slug)
		return categoryChangedMsg{slug: slug, category: cat, err: err}
	})
}

// dispatch starts a search for the session's current configuration. Only
// the result of the latest dispatch is shown.
func (m *BrowseModel) dispatch() tea.Cmd {
	m.searchSeq++
	m.searching = true
	seq, s := m.searchSeq, m.session
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := s.Search(ctx)
		return searchResultMsg{seq: seq, res: res, err: err}
	})
}

func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil

	case spinner.TickMsg:
		if !m.searching && m.resolved {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case categoryChangedMsg:
		if msg.slug != m.slug {
			return m, nil
		}
		m.resolved = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.category = msg.category
		m.query.SetValue("")
		m.mapView.AutoFit()
		cat := msg.category
		return m, tea.Batch(m.dispatch(), func() tea.Msg { return CategoryOpened{Category: cat} })

	case searchResultMsg:
		if msg.seq != m.searchSeq {
			return m, nil
		}
		m.searching = false
		if errors.Is(msg.err, dispatch.ErrStaleContext) {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setResult(msg.res.Results[0])
		return m, nil

	case FiltersDone:
		if msg.Changed {
			return m, m.dispatch()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.routeInput(msg)
}

func (m BrowseModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.focus {
	case focusTable:
		switch key {
		case "esc", "q":
			return m, func() tea.Msg { return NavigateToHome{} }
		case "/", "tab":
			m.focus = focusQuery
			m.query.Focus()
			return m, textinput.Blink
		case "1":
			m.focus = focusCard
			m.table.SetStyles(unfocusedTableStyles())
			return m, nil
		case "2":
			m.focus = focusMap
			m.table.SetStyles(unfocusedTableStyles())
			return m, nil
		case "f":
			facets := facetValues(m.result, filters.AttrEligibilities)
			return m, func() tea.Msg { return NavigateToFilters{Eligibilities: facets} }
		case "x":
			m.session.ClearFilters()
			m.status = "Filters cleared"
			return m, m.dispatch()
		case "c":
			return m, func() tea.Msg { return NavigateToCategories{} }
		case "]", "n":
			if m.result.Page+1 < m.result.NbPages {
				m.session.SetPage(m.result.Page + 1)
				return m, m.dispatch()
			}
			return m, nil
		case "[", "p":
			if m.result.Page > 0 {
				m.session.SetPage(m.result.Page - 1)
				return m, m.dispatch()
			}
			return m, nil
		case "r":
			m.session.Refresh()
			return m, m.dispatch()
		case "e":
			m.exportCSV()
			return m, nil
		}

	case focusQuery:
		switch key {
		case "enter":
			m.focus = focusTable
			m.query.Blur()
			m.session.SetQuery(strings.TrimSpace(m.query.Value()))
			return m, m.dispatch()
		case "esc", "tab":
			m.focus = focusTable
			m.query.Blur()
			return m, nil
		}

	case focusCard:
		maxScroll := max(len(m.cardLines)-m.panelHeight(), 0)
		switch key {
		case "esc":
			m.focus = focusTable
			m.table.SetStyles(focusedTableStyles())
		case "up", "k":
			if m.cardScrollY > 0 {
				m.cardScrollY--
			}
		case "down", "j":
			if m.cardScrollY < maxScroll {
				m.cardScrollY++
			}
		}
		return m, nil

	case focusMap:
		switch key {
		case "esc":
			m.focus = focusTable
			m.table.SetStyles(focusedTableStyles())
		case "up", "k":
			m.mapView.Pan(1, 0)
		case "down", "j":
			m.mapView.Pan(-1, 0)
		case "left", "h":
			m.mapView.Pan(0, -1)
		case "right", "l":
			m.mapView.Pan(0, 1)
		case "+", "=":
			m.mapView.ZoomIn()
			m.session.SetZoom(m.session.Zoom() + 1)
		case "-":
			m.mapView.ZoomOut()
			m.session.SetZoom(m.session.Zoom() - 1)
		case "0":
			m.mapView.AutoFit()
		case "a":
			if m.mapView.Empty() {
				return m, nil
			}
			m.session.SearchThisArea(m.mapView)
			m.status = "Searching this area"
			return m, m.dispatch()
		}
		return m, nil
	}

	return m.routeInput(msg)
}

func (m BrowseModel) routeInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		if cursor := m.table.Cursor(); cursor != m.selected && cursor < len(m.result.Hits) {
			m.selected = cursor
			m.cardScrollY = 0
			m.mapView.SetSelected(cursor)
			m.cacheCard()
		}
	case focusQuery:
		m.query, cmd = m.query.Update(msg)
	}
	return m, cmd
}

func (m *BrowseModel) setResult(r model.Result) {
	m.result = r
	m.buildTable(r.Hits)

	points := make([]orb.Point, len(r.Hits))
	for i, h := range r.Hits {
		points[i] = orb.Point{h.GeoLoc.Lng, h.GeoLoc.Lat}
	}
	m.mapView.SetPoints(points)
	if c, ok := m.session.Config().Geo(); ok && c.Kind == geo.KindBoundingBox {
		m.mapView.Focus(c.Box)
	} else if b, ok := c.Bound(); ok && len(points) == 0 {
		m.mapView.Focus(b)
	}

	m.selected = -1
	if len(r.Hits) > 0 {
		m.selected = 0
		m.mapView.SetSelected(0)
	}
	m.cardScrollY = 0
	m.cacheCard()
}

func (m *BrowseModel) cacheCard() {
	if m.selected < 0 || m.selected >= len(m.result.Hits) {
		m.cardLines = nil
		return
	}
	m.cardLines = cardLines(m.result.Hits[m.selected])
}

func cardLines(h model.Hit) []string {
	var lines []string
	lines = append(lines, h.Name)
	if len(h.Categories) > 0 {
		lines = append(lines, strings.Join(h.Categories, " · "))
	}
	lines = append(lines, "")

	addRow := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}
	addRow("Address:", h.Address)
	if h.City != "" {
		addRow("City:", strings.Join(slices.DeleteFunc([]string{h.City, h.PostalCode}, func(s string) bool { return s == "" }), ", "))
	}
	addRow("Phone:", h.Phone)
	addRow("Website:", h.Website)
	addRow("Coords:", fmt.Sprintf("%.6f, %.6f", h.GeoLoc.Lat, h.GeoLoc.Lng))
	if h.RankingInfo != nil && h.RankingInfo.GeoDistance > 0 {
		addRow("Distance:", fmt.Sprintf("%.1f mi", float64(h.RankingInfo.GeoDistance)/model.MetersPerMile))
	}
	if len(h.Eligibilities) > 0 {
		addRow("For:", strings.Join(h.Eligibilities, ", "))
	}
	if len(h.Schedule) > 0 {
		lines = append(lines, "")
		for i, s := range h.Schedule {
			label := ""
			if i == 0 {
				label = "Hours:"
			}
			lines = append(lines, fmt.Sprintf("%-10s %s", label, s))
		}
	}
	if h.Description != "" {
		lines = append(lines, "", h.Description)
	}
	return lines
}

// facetValues returns the values of a facet in the last result, most
// frequent first.
func facetValues(r model.Result, attr string) []string {
	vals := search.FacetValues(r.Facets[attr])
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Value
	}
	return out
}

func (m *BrowseModel) buildTable(hits []model.Hit) {
	nameW, catW, cityW, distW, phoneW := 28, 22, 14, 8, 16
	if m.width > 120 {
		extra := m.width - 120
		nameW += extra * 3 / 10
		catW += extra * 3 / 10
		cityW += extra * 2 / 10
		phoneW += extra * 2 / 10
	}

	columns := []table.Column{
		{Title: "Name", Width: nameW},
		{Title: "Categories", Width: catW},
		{Title: "City", Width: cityW},
		{Title: "Dist", Width: distW},
		{Title: "Phone", Width: phoneW},
	}

	rows := make([]table.Row, len(hits))
	for i, h := range hits {
		dist := ""
		if h.RankingInfo != nil && h.RankingInfo.GeoDistance > 0 {
			dist = fmt.Sprintf("%.1f mi", float64(h.RankingInfo.GeoDistance)/model.MetersPerMile)
		}
		rows[i] = table.Row{
			truncate(h.Name, nameW),
			truncate(strings.Join(h.Categories, ", "), catW),
			truncate(h.City, cityW),
			dist,
			h.Phone,
		}
	}

	height := 10
	if m.height > 0 {
		height = max(m.height/2-6, 5)
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	if m.focus == focusTable || m.focus == focusQuery {
		t.SetStyles(focusedTableStyles())
	} else {
		t.SetStyles(unfocusedTableStyles())
	}
	m.table = t
}

func focusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func unfocusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	return s
}

func (m BrowseModel) panelHeight() int {
	return max(m.height/2-8, 6)
}

func (m *BrowseModel) updateLayout() {
	if m.width <= 0 {
		return
	}
	detailW := max(m.width-2, 40)
	mapOuterW := detailW - detailW*2/5 - 1
	m.mapView.SetSize(max(mapOuterW-4, 10), m.panelHeight())
	m.buildTable(m.result.Hits)
	if m.selected >= 0 {
		m.table.SetCursor(m.selected)
	}
}

func (m BrowseModel) header() string {
	var b strings.Builder
	name := m.category.Name
	switch {
	case !m.resolved:
		name = m.slug
	case name == "":
		name = "All"
	}
	b.WriteString(styles.Title.Render("Browse: " + name))

	if n := m.session.Filters().Applied().ChangeCount(); n > 0 {
		b.WriteString(" " + styles.Badge.Render(fmt.Sprintf("%d filters", n)))
	}
	muted := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.resolved && m.err == nil {
		b.WriteString(muted.Render(fmt.Sprintf("  %d results", m.result.NbHits)))
		if m.result.NbPages > 1 {
			b.WriteString(muted.Render(fmt.Sprintf(" · page %d/%d", m.result.Page+1, m.result.NbPages)))
		}
	}
	if loading := m.session.Loading(); loading != "" || m.searching {
		b.WriteString("  " + m.spinner.View())
	}
	return b.String()
}

func (m BrowseModel) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	queryStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusQuery {
		queryStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(queryStyle.Render("Search: "))
	b.WriteString(m.query.View())
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	detailW := max(m.width-2, 40)
	panelH := m.panelHeight()
	cardOuterW := detailW * 2 / 5
	mapOuterW := detailW - cardOuterW - 1

	cardBox := styles.Panel(m.focus == focusCard).
		Width(cardOuterW - 2).
		Height(panelH).
		Render(m.viewCardPanel(max(cardOuterW-4, 20), panelH))
	cardLabel := panelLabel("[1] Details", m.focus == focusCard)

	mapBox := styles.Panel(m.focus == focusMap).
		Width(mapOuterW - 2).
		Height(panelH).
		Render(m.mapView.View())
	mapLabel := panelLabel("[2] Map", m.focus == focusMap)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cardLabel+"\n"+cardBox, " ", mapLabel+"\n"+mapBox))
	b.WriteString("\n\n")

	if m.status != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.status))
		b.WriteString("\n")
	}

	var statusText string
	switch m.focus {
	case focusTable:
		statusText = "↑↓ navigate • / search • f filters • x clear • [ ] page • c category • 1 details • 2 map • e export • esc back"
	case focusQuery:
		statusText = "enter search • esc back"
	case focusCard:
		statusText = "↑↓ scroll • esc back to table"
	case focusMap:
		statusText = "↑↓←→ pan • +/- zoom • a search this area • 0 fit • esc back to table"
	}
	b.WriteString(styles.StatusBar.Render(statusText))

	return b.String()
}

func panelLabel(title string, focused bool) string {
	color := styles.Muted
	if focused {
		color = styles.Primary
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(title)
}

func (m BrowseModel) viewCardPanel(w, h int) string {
	if len(m.cardLines) == 0 {
		return styles.Hint.Render("Select a listing\nto view details")
	}

	lines := m.cardLines
	scrollY := max(min(m.cardScrollY, len(lines)-h), 0)
	end := min(scrollY+h, len(lines))
	visible := lines[scrollY:end]

	var sb strings.Builder
	label := lipgloss.NewStyle().Foreground(styles.Muted)
	valStyle := lipgloss.NewStyle().Foreground(styles.Text)

	for i, line := range visible {
		switch {
		case scrollY+i == 0:
			sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Text).Render(truncate(line, w)))
		case scrollY+i == 1:
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Secondary).Render(truncate(line, w)))
		case strings.HasPrefix(line, "Website:"):
			val := strings.TrimSpace(strings.TrimPrefix(line, "Website:"))
			sb.WriteString(label.Render(fmt.Sprintf("%-10s ", "Website:")))
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render(truncate(val, w-11)))
		default:
			sb.WriteString(valStyle.Render(truncate(line, w)))
		}
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	if scrollY > 0 {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▲ more above"))
	}
	if end < len(lines) {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▼ more below"))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// exportCSV writes the hits on screen next to the working directory.
func (m *BrowseModel) exportCSV() {
	slug := m.category.Slug
	if slug == "" {
		slug = "all"
	}
	path := fmt.Sprintf("geodir_%s_p%d.csv", slug, m.result.Page+1)

	f, err := os.Create(path)
	if err != nil {
		m.status = fmt.Sprintf("Export error: %v", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"object_id", "name", "categories", "address", "city", "phone", "website", "lat", "lng"})
	for _, h := range m.result.Hits {
		w.Write([]string{
			h.ObjectID,
			h.Name,
			strings.Join(h.Categories, ";"),
			h.Address,
			h.City,
			h.Phone,
			h.Website,
			fmt.Sprintf("%.6f", h.GeoLoc.Lat),
			fmt.Sprintf("%.6f", h.GeoLoc.Lng),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		m.status = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.status = fmt.Sprintf("Exported %d rows to %s", len(m.result.Hits), path)
}

// CategoryOpened reports a category whose results are on screen.
type CategoryOpened struct {
	Category model.Category
}

// NavigateToFilters opens the filter panel. Eligibilities are the choices
// the last result offered.
type NavigateToFilters struct {
	Eligibilities []string
}
