package normalize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExcerptTextShortUnchanged(t *testing.T) {
	require.Equal(t, "hello", ExcerptText("hello"))
}

func TestExcerptTextLongTruncated(t *testing.T) {
	long := strings.Repeat("a", 5000)
	out := ExcerptText(long)
	require.Contains(t, out, truncationMarker)
	require.Less(t, len(out), len(long))
}

func TestMapSandboxPathStripsMount(t *testing.T) {
	opts := Options{Mount: "/workspace"}
	require.Equal(t, "src/main.go", MapSandboxPath("/workspace/src/main.go", opts))
	require.Equal(t, ".", MapSandboxPath("/workspace", opts))
}

func TestSplitCommandHandlesQuotes(t *testing.T) {
	got := SplitCommand(`git commit -m "fix bug"`)
	require.Equal(t, []string{"git", "commit", "-m", "fix bug"}, got)
}

func TestPersistCommandFailureWritesSubArtifacts(t *testing.T) {
	runDir := t.TempDir()
	fc := &FailureCounters{}
	now := time.Now()
	fa := fc.PersistCommandFailure(Options{RunDir: runDir}, []string{"go", "test", "./..."}, 1, "stdout text", "stderr text", now, now)
	require.NotNil(t, fa)

	dir := filepath.Join(runDir, "command_failures", "cmd_01")
	require.FileExists(t, filepath.Join(dir, "command.json"))
	require.FileExists(t, filepath.Join(dir, "timing.json"))
	stdout, err := os.ReadFile(filepath.Join(dir, "stdout.txt"))
	require.NoError(t, err)
	require.Equal(t, "stdout text", string(stdout))
	stderr, err := os.ReadFile(filepath.Join(dir, "stderr.txt"))
	require.NoError(t, err)
	require.Equal(t, "stderr text", string(stderr))
}

func TestPersistToolFailureWritesSubArtifacts(t *testing.T) {
	runDir := t.TempDir()
	fc := &FailureCounters{}
	fa := fc.PersistToolFailure(Options{RunDir: runDir}, "WebSearch", map[string]any{"query": "x"}, "tool output", time.Now())
	require.NotNil(t, fa)

	dir := filepath.Join(runDir, "tool_failures", "tool_01_WebSearch")
	require.FileExists(t, filepath.Join(dir, "tool.json"))
	require.FileExists(t, filepath.Join(dir, "timing.json"))
	stdout, err := os.ReadFile(filepath.Join(dir, "stdout.txt"))
	require.NoError(t, err)
	require.Equal(t, "tool output", string(stdout))
}

func TestPersistCommandFailureNoRunDirIsNoop(t *testing.T) {
	fc := &FailureCounters{}
	require.Nil(t, fc.PersistCommandFailure(Options{}, nil, 1, "", "", time.Time{}, time.Time{}))
}
