// Package metrics derives run metrics purely from the normalized
// canonical event stream.
package metrics

import (
	"github.com/agentrun/agentrun/internal/events"
)

// Metrics summarizes a run's normalized event stream.
type Metrics struct {
	EventCounts       map[string]int `json:"event_counts"`
	FilesRead         []string       `json:"files_read"`
	FilesWritten      []string       `json:"files_written"`
	CommandsRun       int            `json:"commands_run"`
	CommandsFailed    []FailedCmd    `json:"commands_failed"`
	ToolCalls         int            `json:"tool_calls"`
	WebSearches       int            `json:"web_searches"`
	LinesAdded        int            `json:"lines_added"`
	LinesRemoved      int            `json:"lines_removed"`
}

// FailedCmd records a run_command event whose exit code was non-zero,
// with a bounded excerpt of its output for quick triage.
type FailedCmd struct {
	Argv    []string `json:"argv"`
	Excerpt string   `json:"excerpt"`
}

const failedCommandExcerptBudget = 500

// Compute derives Metrics from a slice of canonical events.
func Compute(evs []events.Event) Metrics {
	m := Metrics{EventCounts: map[string]int{}}
	readSeen := map[string]bool{}
	writeSeen := map[string]bool{}

	for _, e := range evs {
		m.EventCounts[string(e.Type)]++
		switch e.Type {
		case events.KindReadFile:
			if p, ok := e.Data["path"].(string); ok && !readSeen[p] {
				readSeen[p] = true
				m.FilesRead = append(m.FilesRead, p)
			}
		case events.KindWriteFile:
			if p, ok := e.Data["path"].(string); ok && !writeSeen[p] {
				writeSeen[p] = true
				m.FilesWritten = append(m.FilesWritten, p)
			}
		case events.KindRunCommand:
			m.CommandsRun++
			if exitCode, ok := asInt(e.Data["exit_code"]); ok && exitCode != 0 {
				argv := asStringSlice(e.Data["argv"])
				output, _ := e.Data["output"].(string)
				m.CommandsFailed = append(m.CommandsFailed, FailedCmd{Argv: argv, Excerpt: excerpt(output, failedCommandExcerptBudget)})
			}
		case events.KindToolCall:
			m.ToolCalls++
		case events.KindWebSearch:
			m.WebSearches++
		}
	}
	return m
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func excerpt(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	return s[:budget]
}
