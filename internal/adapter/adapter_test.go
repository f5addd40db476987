package adapter

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunCapturingOutputStreamsStdoutAndStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "raw.jsonl")
	tsPath := filepath.Join(dir, "raw.ts.jsonl")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	argv := []string{"sh", "-c", "cat >/dev/null; echo line1; echo line2; echo boom 1>&2; exit 3"}
	exitCode, timedOut, stderr, err := RunCapturingOutput(ctx, argv, dir, nil, "prompt text", rawPath, tsPath)
	require.NoError(t, err)
	require.False(t, timedOut)
	require.Equal(t, 3, exitCode)
	require.Contains(t, stderr, "boom")

	raw, err := os.ReadFile(rawPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "line1")
	require.Contains(t, string(raw), "line2")

	ts, err := os.ReadFile(tsPath)
	require.NoError(t, err)
	require.NotEmpty(t, ts)
}
