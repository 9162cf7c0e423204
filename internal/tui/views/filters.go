package views

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/model"
	"github.com/rendis/geodir/internal/tui/styles"
)

// Rows of the filter panel.
const (
	rowHours = iota
	rowLocation
	rowDistance
	rowEligibility
	rowApply
	rowClear
	rowCount
)

const predictDebounce = 250 * time.Millisecond

var hoursChoices = []filters.Hours{filters.HoursAny, filters.HoursOpenNow, filters.HoursOpenLate}

var hoursLabels = map[filters.Hours]string{
	filters.HoursAny:      "Any time",
	filters.HoursOpenNow:  "Open now",
	filters.HoursOpenLate: "Open late",
}

var distanceChoices = []model.Distance{
	model.DistanceAll, model.Miles(0.5), model.Miles(1), model.Miles(2), model.Miles(3),
}

// FiltersModel edits the pending filters of a session. Nothing reaches the
// search until Apply; leaving with esc reverts the pending edits.
type FiltersModel struct {
	session       *session.Session
	eligibilities []string
	row           int
	eligCursor    int

	location    textinput.Model
	typedSeq    int
	suggestions []geo.Prediction
	suggIdx     int
	resolving   bool
	err         string
}

type predictDueMsg struct{ seq int }

type predictionsMsg struct {
	seq   int
	preds []geo.Prediction
	ok    bool
}

type placeResolvedMsg struct {
	text string
	pt   *orb.Point
}

func NewFiltersModel(s *session.Session, eligibilities []string) FiltersModel {
	pending := s.Filters().Pending()
	// Selected values stay listed even when the last result lacks them.
	for _, e := range pending.Eligibilities() {
		if !slices.Contains(eligibilities, e) {
			eligibilities = append(eligibilities, e)
		}
	}

	loc := textinput.New()
	loc.Placeholder = "address, neighborhood or place"
	loc.CharLimit = 100
	loc.Width = 40
	loc.SetValue(pending.LocationSearchText)

	return FiltersModel{
		session:       s,
		eligibilities: eligibilities,
		location:      loc,
		suggIdx:       -1,
	}
}

func (m FiltersModel) Init() tea.Cmd {
	return nil
}

func (m FiltersModel) machine() *filters.Machine { return m.session.Filters() }

func (m FiltersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case predictDueMsg:
		if msg.seq != m.typedSeq {
			return m, nil
		}
		return m, m.predict(msg.seq)

	case predictionsMsg:
		if !msg.ok || msg.seq != m.typedSeq {
			return m, nil
		}
		m.suggestions = msg.preds
		m.suggIdx = -1
		if len(msg.preds) > 0 {
			m.suggIdx = 0
		}
		return m, nil

	case placeResolvedMsg:
		m.resolving = false
		if msg.pt == nil {
			m.err = fmt.Sprintf("Couldn't locate %q", msg.text)
			return m, nil
		}
		m.err = ""
		m.location.SetValue(msg.text)
		m.suggestions = nil
		m.suggIdx = -1
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m FiltersModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.machine().Revert()
		return m, func() tea.Msg { return FiltersDone{} }
	case "ctrl+s":
		return m, m.apply()
	case "tab":
		if m.row == rowLocation && m.suggIdx >= 0 {
			return m, m.choose()
		}
		return m, m.moveRow(1)
	case "shift+tab":
		return m, m.moveRow(-1)
	}

	switch m.row {
	case rowHours:
		switch key {
		case "left", "h":
			m.cycleHours(-1)
		case "right", "l", " ":
			m.cycleHours(1)
		case "up", "k":
			return m, m.moveRow(-1)
		case "down", "j", "enter":
			return m, m.moveRow(1)
		}
		return m, nil

	case rowLocation:
		switch key {
		case "up":
			if m.suggIdx > 0 {
				m.suggIdx--
				return m, nil
			}
			return m, m.moveRow(-1)
		case "down":
			if m.suggIdx >= 0 && m.suggIdx < len(m.suggestions)-1 {
				m.suggIdx++
				return m, nil
			}
			return m, m.moveRow(1)
		case "enter":
			if m.suggIdx >= 0 {
				return m, m.choose()
			}
			return m, m.moveRow(1)
		case "ctrl+u":
			m.location.SetValue("")
			m.machine().SetPendingLocation("", nil)
			m.suggestions = nil
			m.suggIdx = -1
			return m, nil
		}
		before := m.location.Value()
		var cmd tea.Cmd
		m.location, cmd = m.location.Update(msg)
		if text := m.location.Value(); text != before {
			// Typing over a chosen place drops its coordinates.
			m.machine().SetPendingLocation(text, nil)
			m.typedSeq++
			seq := m.typedSeq
			m.suggestions = nil
			m.suggIdx = -1
			if strings.TrimSpace(text) != "" {
				cmd = tea.Batch(cmd, tea.Tick(predictDebounce, func(time.Time) tea.Msg { return predictDueMsg{seq: seq} }))
			}
		}
		return m, cmd

	case rowDistance:
		switch key {
		case "left", "h":
			m.cycleDistance(-1)
		case "right", "l", " ":
			m.cycleDistance(1)
		case "up", "k":
			return m, m.moveRow(-1)
		case "down", "j", "enter":
			return m, m.moveRow(1)
		}
		return m, nil

	case rowEligibility:
		switch key {
		case "up", "k":
			if m.eligCursor > 0 {
				m.eligCursor--
				return m, nil
			}
			return m, m.moveRow(-1)
		case "down", "j":
			if m.eligCursor < len(m.eligibilities)-1 {
				m.eligCursor++
				return m, nil
			}
			return m, m.moveRow(1)
		case " ", "enter", "x":
			if m.eligCursor < len(m.eligibilities) {
				m.machine().TogglePendingEligibility(m.eligibilities[m.eligCursor])
			}
		}
		return m, nil

	case rowApply, rowClear:
		switch key {
		case "up", "k", "left":
			return m, m.moveRow(-1)
		case "down", "j", "right":
			return m, m.moveRow(1)
		case "enter", " ":
			if m.row == rowApply {
				return m, m.apply()
			}
			m.session.ClearFilters()
			return m, func() tea.Msg { return FiltersDone{Changed: true} }
		}
	}
	return m, nil
}

func (m *FiltersModel) moveRow(dir int) tea.Cmd {
	m.row = (m.row + dir + rowCount) % rowCount
	if m.row == rowEligibility && len(m.eligibilities) == 0 {
		m.row = (m.row + dir + rowCount) % rowCount
	}
	m.err = ""
	if m.row == rowLocation {
		m.location.Focus()
		return textinput.Blink
	}
	m.location.Blur()
	m.suggestions = nil
	m.suggIdx = -1
	return nil
}

func (m *FiltersModel) cycleHours(dir int) {
	cur := slices.Index(hoursChoices, m.machine().Pending().Hours)
	next := (max(cur, 0) + dir + len(hoursChoices)) % len(hoursChoices)
	m.machine().SetPendingHours(hoursChoices[next])
}

func (m *FiltersModel) cycleDistance(dir int) {
	cur := slices.Index(distanceChoices, m.machine().Pending().DistanceRadius)
	next := (max(cur, 0) + dir + len(distanceChoices)) % len(distanceChoices)
	m.machine().SetPendingDistance(distanceChoices[next])
}

func (m FiltersModel) predict(seq int) tea.Cmd {
	s, text := m.session, m.location.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		preds, ok := s.Predict(ctx, text)
		return predictionsMsg{seq: seq, preds: preds, ok: ok}
	}
}

// choose resolves the highlighted prediction into the pending location.
func (m *FiltersModel) choose() tea.Cmd {
	p := m.suggestions[m.suggIdx]
	m.resolving = true
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return placeResolvedMsg{text: p.Description, pt: s.SelectPlace(ctx, p.ID, p.Description)}
	}
}

func (m FiltersModel) apply() tea.Cmd {
	if m.resolving {
		return nil
	}
	pending := m.machine().Pending()
	if strings.TrimSpace(pending.LocationSearchText) != "" && pending.LocationCoords == nil {
		// Text without a chosen place does not constrain the search.
		m.machine().SetPendingLocation("", nil)
	}
	m.session.ApplyFilters()
	return func() tea.Msg { return FiltersDone{Changed: true} }
}

func (m FiltersModel) View() string {
	var b strings.Builder
	pending := m.machine().Pending()

	b.WriteString(styles.Title.Render("Filters"))
	b.WriteString("\n\n")

	b.WriteString(m.renderChoice("Hours:", rowHours, hoursLabels[pending.Hours]))

	locLabel := styles.Label.Render("Location:")
	if m.row == rowLocation {
		locLabel = styles.Label.Foreground(styles.Primary).Render("Location:")
	}
	b.WriteString(locLabel + " " + m.location.View())
	if pending.LocationCoords != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(" ✓"))
	} else if m.resolving {
		b.WriteString(styles.Hint.Render(" locating..."))
	}
	b.WriteString("\n")
	if m.row == rowLocation && len(m.suggestions) > 0 {
		b.WriteString(m.renderSuggestions())
	}

	dist := "Any distance"
	if !pending.DistanceRadius.All {
		dist = fmt.Sprintf("Within %g mi", pending.DistanceRadius.Miles)
	}
	b.WriteString(m.renderChoice("Distance:", rowDistance, dist))

	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("Eligibility"))
	b.WriteString("\n")
	if len(m.eligibilities) == 0 {
		b.WriteString(styles.Hint.Render("  none offered for these results"))
		b.WriteString("\n")
	}
	for i, e := range m.eligibilities {
		box := "[ ]"
		if pending.HasEligibility(e) {
			box = "[x]"
		}
		cursor := "  "
		style := styles.InactiveItem
		if m.row == rowEligibility && i == m.eligCursor {
			cursor = "> "
			style = styles.ActiveItem
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, box, style.Render(e)))
	}

	b.WriteString("\n")
	applyLabel := "Apply"
	if n := pending.ChangeCount(); n > 0 {
		applyLabel = fmt.Sprintf("Apply %d filters", n)
	}
	applyStyle, clearStyle := styles.Button, styles.Button
	if m.row == rowApply {
		applyStyle = styles.ButtonActive
	}
	if m.row == rowClear {
		clearStyle = styles.ButtonActive
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, applyStyle.Render(applyLabel), " ", clearStyle.Render("Clear all")))
	if m.machine().Dirty() {
		b.WriteString(styles.Hint.Render("  unapplied changes"))
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("tab next • ←→ change • space toggle • ctrl+s apply • ctrl+u clear location • esc discard"))

	return styles.Border.Render(b.String())
}

func (m FiltersModel) renderChoice(label string, row int, value string) string {
	l := styles.Label.Render(label)
	v := styles.Value.Render(value)
	if m.row == row {
		l = styles.Label.Foreground(styles.Primary).Render(label)
		v = styles.ActiveItem.Render("< " + value + " >")
	}
	return fmt.Sprintf("%s %s\n", l, v)
}

func (m FiltersModel) renderSuggestions() string {
	var sb strings.Builder
	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)
	for i, p := range m.suggestions {
		label := truncate(p.Description, 60)
		if i == m.suggIdx {
			sb.WriteString(active.Render("  > " + label))
		} else {
			sb.WriteString(inactive.Render("    " + label))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FiltersDone closes the filter panel. Changed means the applied filters
// moved and results must be refreshed.
type FiltersDone struct {
	Changed bool
}
