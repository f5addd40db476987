package metrics

import (
	"testing"
	"time"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/stretchr/testify/require"
)

func TestComputeCountsAndDedupesFiles(t *testing.T) {
	evs := []events.Event{
		events.New(time.Now(), events.KindReadFile, map[string]any{"path": "a.go"}),
		events.New(time.Now(), events.KindReadFile, map[string]any{"path": "a.go"}),
		events.New(time.Now(), events.KindWriteFile, map[string]any{"path": "b.go"}),
		events.New(time.Now(), events.KindRunCommand, map[string]any{"argv": []any{"go", "test"}, "exit_code": float64(1), "output": "FAIL"}),
		events.New(time.Now(), events.KindToolCall, map[string]any{"name": "x"}),
	}
	m := Compute(evs)
	require.Equal(t, []string{"a.go"}, m.FilesRead)
	require.Equal(t, []string{"b.go"}, m.FilesWritten)
	require.Equal(t, 1, m.CommandsRun)
	require.Len(t, m.CommandsFailed, 1)
	require.Equal(t, []string{"go", "test"}, m.CommandsFailed[0].Argv)
	require.Equal(t, 1, m.ToolCalls)
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil)
	require.Empty(t, m.FilesRead)
	require.Equal(t, 0, m.CommandsRun)
}
