// Package prompt renders aggregation results into completion prompts.
//
// Two shapes exist: the chat prompt includes only the sections the question
// asks about (by keyword), while the report prompt summarises everything.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"obd-backend/internal/models"
	"obd-backend/internal/timewindow"
)

const (
	chatHeader   = "You are a smart vehicle assistant.\n\n"
	noFaults     = "No faults detected in the selected period."
	chatFallback = "⚠️ Please ask about specific faults, duration, or what to check."
)

// Suggestions maps a fault to the components worth inspecting
var Suggestions = map[models.FaultLabel]string{
	models.FaultOverheating:    "🔧 Check radiator, thermostat, coolant levels, or water pump.",
	models.FaultThrottleLag:    "🛠️ Check throttle body, throttle sensor, intake manifold.",
	models.FaultFuelTrimDrift:  "💡 Inspect fuel injectors, air filter, or O2 sensors.",
	models.FaultLowVoltage:     "🔋 Check battery, alternator, ground wiring.",
	models.FaultVacuumLeak:     "🧪 Inspect intake hoses, gaskets, PCV valve.",
	models.FaultRPMFluctuation: "⚙️ Check idle control valve or crankshaft position sensor.",
}

// Input is everything a prompt is built from
type Input struct {
	Question string
	Window   timewindow.Window
	Counts   []models.FaultCount
	LastSeen []models.FaultLastSeen
	Spans    []models.FaultSpan
}

func formatTime(t time.Time) string {
	return t.Format(timewindow.FilterLayout)
}

func containsAny(s string, keys ...string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// ComposeChat builds the request-serving prompt. Sections are included only
// when the question mentions them; a fallback line is added when none was.
func ComposeChat(in Input) string {
	q := strings.ToLower(in.Question)

	var b strings.Builder
	b.WriteString(chatHeader)
	fmt.Fprintf(&b, "User asked: '%s'\n\n", in.Question)
	base := b.Len()

	if containsAny(q, "issue", "fault") {
		if len(in.Counts) == 0 {
			b.WriteString(noFaults)
		} else {
			b.WriteString("📊 Detected Issues:\n")
			for _, c := range in.Counts {
				fmt.Fprintf(&b, "- %s: %d times\n", c.Fault, c.Count)
			}
		}
	}

	if containsAny(q, "last", "occur") && len(in.LastSeen) > 0 {
		b.WriteString("\n🕒 Last Occurrences:\n")
		for _, l := range in.LastSeen {
			fmt.Fprintf(&b, "- %s: %s\n", l.Fault, formatTime(l.LastSeen))
		}
	}

	if containsAny(q, "since", "how long") && len(in.Spans) > 0 {
		b.WriteString("\n📅 Fault Duration:\n")
		for _, s := range in.Spans {
			fmt.Fprintf(&b, "- %s: %s to %s\n", s.Fault, formatTime(s.FirstSeen), formatTime(s.LastSeen))
		}
	}

	if containsAny(q, "check", "replace", "fix") && len(in.Counts) > 0 {
		b.WriteString("\n🔧 Suggested Checks/Replacements:\n")
		for _, c := range in.Counts {
			if tip, ok := Suggestions[c.Fault]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", c.Fault, tip)
			}
		}
	}

	if b.Len() == base {
		b.WriteString(chatFallback)
	}
	return b.String()
}

// ComposeReport builds the standalone diagnostics prompt with every
// non-empty section, regardless of the question wording
func ComposeReport(in Input) string {
	var ctx strings.Builder
	fmt.Fprintf(&ctx, "**📊 Vehicle Fault Summary Based on `timestamp >= '%s'`**\n\n", in.Window)

	if len(in.Counts) > 0 {
		ctx.WriteString("🛠️ **Detected Issues:**\n")
		for _, c := range in.Counts {
			fmt.Fprintf(&ctx, "- %s: %d times\n", c.Fault, c.Count)
		}
	} else {
		ctx.WriteString("- No detected issues found in this period.\n")
	}

	if len(in.LastSeen) > 0 {
		ctx.WriteString("\n🕒 **Last Occurrence per Fault:**\n")
		for _, l := range in.LastSeen {
			fmt.Fprintf(&ctx, "- %s: %s\n", l.Fault, formatTime(l.LastSeen))
		}
	}

	if len(in.Spans) > 0 {
		ctx.WriteString("\n📅 **Fault Time Periods:**\n")
		for _, s := range in.Spans {
			fmt.Fprintf(&ctx, "- %s: from %s to %s\n", s.Fault, formatTime(s.FirstSeen), formatTime(s.LastSeen))
		}
	}

	return fmt.Sprintf(`
You are a smart vehicle diagnostics assistant. Use the following data context pulled from ClickHouse anomalies to answer the user's query.

%s

**User's Question:** %s

Respond with a clear diagnostic explanation in professional language using headings and bullet points.
`, ctx.String(), in.Question)
}
