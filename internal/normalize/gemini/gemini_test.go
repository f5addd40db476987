package gemini

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/normalize"
	"github.com/stretchr/testify/require"
)

func TestNormalizeReadFileAndMessage(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"type":"content","text":"Looking at the file."}
{"type":"tool_use","id":"t1","name":"read_file","input":{"path":"/workspace/a.go"}}
{"type":"tool_result","tool_use_id":"t1","output":"package main"}
`
	require.NoError(t, os.WriteFile(rawPath, []byte(raw), 0o644))

	outPath := filepath.Join(dir, "normalized.jsonl")
	w, err := events.NewWriter(outPath)
	require.NoError(t, err)
	require.NoError(t, Normalize(rawPath, w, normalize.Options{Mount: "/workspace"}))
	require.NoError(t, w.Close())

	got, err := events.ReadAll(outPath)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, events.KindAgentMsg, got[0].Type)
	require.Equal(t, events.KindReadFile, got[1].Type)
	require.Equal(t, "a.go", got[1].Data["path"])
}

func TestNormalizeRunShellCommandFailurePersistsArtifacts(t *testing.T) {
	dir := t.TempDir()
	runDir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"type":"tool_use","id":"t1","name":"run_shell_command","input":{"command":"false"}}
{"type":"tool_result","tool_use_id":"t1","output":"boom","is_error":true}
`
	require.NoError(t, os.WriteFile(rawPath, []byte(raw), 0o644))

	outPath := filepath.Join(dir, "normalized.jsonl")
	w, err := events.NewWriter(outPath)
	require.NoError(t, err)
	require.NoError(t, Normalize(rawPath, w, normalize.Options{RunDir: runDir}))
	require.NoError(t, w.Close())

	got, err := events.ReadAll(outPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, events.KindRunCommand, got[0].Type)
	require.EqualValues(t, 1, got[0].Data["exit_code"])
	require.NotNil(t, got[0].Data["failure_artifacts"])
	require.FileExists(t, filepath.Join(runDir, "command_failures", "cmd_01", "command.json"))
}

func TestNormalizeOrphanedToolResultBecomesError(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"type":"tool_result","tool_use_id":"missing","output":"x"}
`
	require.NoError(t, os.WriteFile(rawPath, []byte(raw), 0o644))

	outPath := filepath.Join(dir, "normalized.jsonl")
	w, err := events.NewWriter(outPath)
	require.NoError(t, err)
	require.NoError(t, Normalize(rawPath, w, normalize.Options{}))
	require.NoError(t, w.Close())

	got, err := events.ReadAll(outPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, events.KindError, got[0].Type)
}
