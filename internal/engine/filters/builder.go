package filters

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Filterable attribute names in the search index.
const (
	AttrCategories    = "categories"
	AttrEligibilities = "eligibilities"
	AttrOpenTimes     = "open_times"
)

// lateHour is the local hour an "open late" listing must still be open at.
const lateHour = 20

// Input is everything that contributes to the filters string of a query.
type Input struct {
	PageFilter    string   // category constraint of the page, already a valid clause
	Eligibilities []string // applied eligibility selections
	Hours         Hours
	Now           time.Time // clock for the hours clause
}

// InputFrom collects the builder input from an applied snapshot.
func InputFrom(pageFilter string, applied Snapshot, now time.Time) Input {
	return Input{
		PageFilter:    pageFilter,
		Eligibilities: applied.Eligibilities(),
		Hours:         applied.Hours,
		Now:           now,
	}
}

// Build renders the backend filter expression. Clauses are joined with AND in
// a fixed order: page filter, hours, eligibility group. With nothing selected
// it returns "", which callers must still send so a previous filter is
// overwritten.
func Build(in Input) string {
	var clauses []string
	if pf := strings.TrimSpace(in.PageFilter); pf != "" {
		clauses = append(clauses, pf)
	}
	if c := hoursClause(in.Hours, in.Now); c != "" {
		clauses = append(clauses, c)
	}
	if g := eligibilityGroup(in.Eligibilities); g != "" {
		clauses = append(clauses, g)
	}
	return strings.Join(clauses, " AND ")
}

func eligibilityGroup(values []string) string {
	vals := slices.Clone(values)
	slices.Sort(vals)
	vals = slices.Compact(vals)
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts = append(parts, Clause(AttrEligibilities, v))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func hoursClause(h Hours, now time.Time) string {
	switch h {
	case HoursOpenNow:
		return Clause(AttrOpenTimes, Slot(now))
	case HoursOpenLate:
		late := time.Date(now.Year(), now.Month(), now.Day(), lateHour, 0, 0, 0, now.Location())
		return Clause(AttrOpenTimes, Slot(late))
	}
	return ""
}

// Clause renders attr:'value' with the value quoted.
func Clause(attr, value string) string {
	return attr + ":" + Quote(value)
}

var quoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote wraps v in single quotes, escaping backslashes and single quotes.
func Quote(v string) string {
	return "'" + quoter.Replace(v) + "'"
}

var dayAbbrev = [7]string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

// Slot formats t as a 30-minute open_times slot, e.g. "Tu-14:30".
func Slot(t time.Time) string {
	m := t.Minute() / 30 * 30
	return fmt.Sprintf("%s-%02d:%02d", dayAbbrev[t.Weekday()], t.Hour(), m)
}
