// Package events defines the canonical event schema emitted by every
// backend normalizer and consumed by metrics and report extraction.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the canonical event types. Backend-specific detail
// (tool names, sandbox paths, raw message shapes) lives in Data, never
// in a new Kind value.
type Kind string

const (
	KindReadFile    Kind = "read_file"
	KindWriteFile   Kind = "write_file"
	KindRunCommand  Kind = "run_command"
	KindToolCall    Kind = "tool_call"
	KindAgentMsg    Kind = "agent_message"
	KindWebSearch   Kind = "web_search"
	KindError       Kind = "error"
)

// Event is the canonical, backend-agnostic event shape persisted one
// per line in normalized_events.jsonl.
type Event struct {
	ID   string         `json:"id"`
	TS   string         `json:"ts"`
	Type Kind           `json:"type"`
	Data map[string]any `json:"data"`
}

// New builds an Event with a fresh ID and the given timestamp truncated
// to second resolution in UTC, matching the JSONL contract's fixed
// timestamp granularity.
func New(ts time.Time, kind Kind, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:   uuid.NewString(),
		TS:   UTCNowISO(ts),
		Type: kind,
		Data: data,
	}
}

// UTCNowISO renders t in UTC at second resolution, e.g.
// "2026-08-01T12:30:05Z".
func UTCNowISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// Writer appends canonical events to a JSONL file, one json.Marshal per
// line, never buffering across lines so a crash mid-run still leaves a
// valid prefix of complete lines.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: open %s: %w", path, err)
	}
	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *Writer) Write(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal event %s: %w", e.ID, err)
	}
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("events: write event %s: %w", e.ID, err)
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return fmt.Errorf("events: write newline: %w", err)
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// ReadAll reads every event from a JSONL file in order. A line that
// fails to parse is skipped without an error.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return out, fmt.Errorf("events: scan %s: %w", path, err)
	}
	return out, nil
}
