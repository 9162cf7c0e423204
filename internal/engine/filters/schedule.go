package filters

import (
	"fmt"
	"strings"
)

// ExpandSchedule converts weekly intervals such as "Mo 09:00-17:00" into the
// 30-minute open_times slots an index stores. Intervals ending at or before
// their start wrap past midnight into the next day. Malformed entries are
// reported as errors.
func ExpandSchedule(schedule []string) ([]string, error) {
	seen := make(map[string]struct{})
	var slots []string
	for _, entry := range schedule {
		day, from, to, err := parseInterval(entry)
		if err != nil {
			return nil, err
		}
		if to <= from {
			to += 24 * 60
		}
		for m := from; m < to; m += 30 {
			d := (day + m/(24*60)) % 7
			mm := m % (24 * 60)
			slot := fmt.Sprintf("%s-%02d:%02d", dayAbbrev[d], mm/60, mm%60)
			if _, ok := seen[slot]; ok {
				continue
			}
			seen[slot] = struct{}{}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

func parseInterval(entry string) (day, from, to int, err error) {
	fields := strings.Fields(entry)
	if len(fields) != 2 {
		return 0, 0, 0, fmt.Errorf("schedule entry %q: want \"Dd HH:MM-HH:MM\"", entry)
	}
	day = -1
	for i, d := range dayAbbrev {
		if strings.EqualFold(d, fields[0]) {
			day = i
			break
		}
	}
	if day < 0 {
		return 0, 0, 0, fmt.Errorf("schedule entry %q: unknown day %q", entry, fields[0])
	}
	span := strings.SplitN(fields[1], "-", 2)
	if len(span) != 2 {
		return 0, 0, 0, fmt.Errorf("schedule entry %q: missing interval end", entry)
	}
	if from, err = parseClock(span[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("schedule entry %q: %w", entry, err)
	}
	if to, err = parseClock(span[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("schedule entry %q: %w", entry, err)
	}
	// Round the start down to the slot it begins in.
	from = from / 30 * 30
	return day, from, to, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
