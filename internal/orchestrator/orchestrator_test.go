package orchestrator

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectAdapterUnknownType(t *testing.T) {
	_, err := selectAdapter("not-a-real-agent")
	require.Error(t, err)
}

func TestMakeRunDirCreatesUniqueDirs(t *testing.T) {
	root := t.TempDir()
	d1, err := makeRunDir(root, "widget", "claude", "1")
	require.NoError(t, err)
	d2, err := makeRunDir(root, "widget", "claude", "2")
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)
	require.DirExists(t, d1)
	require.DirExists(t, d2)
}

func TestMakeRunDirFollowsStructuredLayout(t *testing.T) {
	root := t.TempDir()
	dir, err := makeRunDir(root, "widget", "claude", "42")
	require.NoError(t, err)
	rel, err := filepath.Rel(root, dir)
	require.NoError(t, err)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	require.Len(t, parts, 4)
	require.Equal(t, "widget", parts[0])
	require.Equal(t, "claude", parts[2])
	require.Equal(t, "42", parts[3])
	require.Regexp(t, `^\d{8}T\d{6}Z$`, parts[1])
}

func TestFailWritesErrorJSONAndMetricsSkeleton(t *testing.T) {
	runDir := t.TempDir()
	_, err := fail(runDir, errors.New("boom"))
	require.Error(t, err)
	require.FileExists(t, filepath.Join(runDir, "error.json"))
	require.NoFileExists(t, filepath.Join(runDir, "failure.json"))
	require.FileExists(t, filepath.Join(runDir, "metrics.json"))
}

func TestWriteJSONIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	writeJSON(path, map[string]any{"a": 1})
	require.FileExists(t, path)
	require.NoFileExists(t, path+".tmp")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"a"`)
}

func TestGitDiffNumstatNonRepoReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	out, err := gitDiffNumstat(dir)
	require.NoError(t, err)
	require.Equal(t, "[]", string(out))
}

func TestGitDiffNumstatWithChanges(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("-c", "user.email=a@b.c", "-c", "user.name=a", "commit", "--allow-empty", "-q", "-m", "init")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1\nline2\n"), 0o644))
	run("add", "a.txt")

	out, err := gitDiffNumstat(dir)
	require.NoError(t, err)
	require.Contains(t, string(out), "a.txt")
}
