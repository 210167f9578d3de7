// Package timewindow turns free-text questions into the start of a lookback
// window.
package timewindow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Policy selects the window used when no phrase matches
type Policy int

const (
	// RollingDefault falls back to the last 14 days
	RollingDefault Policy = iota
	// EpochFloor falls back to 2000-01-01, i.e. effectively all history
	EpochFloor
)

// DefaultLookback is the RollingDefault window length
const DefaultLookback = 14 * 24 * time.Hour

// FilterLayout is the textual form of the start used in store filters
const FilterLayout = "2006-01-02 15:04:05"

// Window is an absolute lookback start; the end is always "now"
type Window struct {
	Start time.Time
}

// FilterStart truncates the start to midnight of its day
func (w Window) FilterStart() time.Time {
	y, m, d := w.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, w.Start.Location())
}

// String renders the filter start the way it appears in prompts
func (w Window) String() string {
	return w.FilterStart().Format(FilterLayout)
}

type phrase struct {
	keys []string
	days int
}

// phrases are checked in order; "last 2 years" must precede "last year"
var phrases = []phrase{
	{keys: []string{"last 2 years"}, days: 730},
	{keys: []string{"last year"}, days: 365},
	{keys: []string{"last month"}, days: 30},
	{keys: []string{"last week", "past 7 days"}, days: 7},
	{keys: []string{"yesterday"}, days: 1},
}

var sinceYear = regexp.MustCompile(`since (\d{4})`)

// Resolve maps text to a window relative to now. It never fails: text with
// no recognised phrase yields the policy default.
func Resolve(text string, now time.Time, policy Policy) Window {
	q := strings.ToLower(text)

	for _, p := range phrases {
		for _, key := range p.keys {
			if strings.Contains(q, key) {
				return Window{Start: now.AddDate(0, 0, -p.days)}
			}
		}
	}

	if m := sinceYear.FindStringSubmatch(q); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil {
			return Window{Start: time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())}
		}
	}

	return defaultWindow(now, policy)
}

func defaultWindow(now time.Time, policy Policy) Window {
	if policy == EpochFloor {
		return Window{Start: time.Date(2000, time.January, 1, 0, 0, 0, 0, now.Location())}
	}
	return Window{Start: now.Add(-DefaultLookback)}
}
