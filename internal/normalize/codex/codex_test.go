package codex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/normalize"
	"github.com/stretchr/testify/require"
)

func TestNormalizePairsExecCommandBeginEnd(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"msg":{"type":"exec_command_begin","call_id":"c1","command":["go","build","./..."]}}
{"msg":{"type":"exec_command_end","call_id":"c1","exit_code":0,"aggregated_output":"ok"}}
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
	require.Equal(t, events.KindRunCommand, got[0].Type)
	require.EqualValues(t, 0, got[0].Data["exit_code"])
}

func TestNormalizeExecCommandFailurePersistsArtifacts(t *testing.T) {
	dir := t.TempDir()
	runDir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"msg":{"type":"exec_command_begin","call_id":"c1","command":["false"]}}
{"msg":{"type":"exec_command_end","call_id":"c1","exit_code":1,"aggregated_output":"boom"}}
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
	require.EqualValues(t, 1, got[0].Data["exit_code"])
	require.NotNil(t, got[0].Data["failure_artifacts"])
	require.FileExists(t, filepath.Join(runDir, "command_failures", "cmd_01", "command.json"))
}

func TestNormalizeUnmatchedExecCommandEndBecomesError(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	raw := `{"msg":{"type":"exec_command_end","call_id":"missing","aggregated_output":"x"}}
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
