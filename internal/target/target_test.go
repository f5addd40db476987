package target

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireCopyExcludesRootNames(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.go"), []byte("package main\n"), 0o644))

	dest := filepath.Join(t.TempDir(), "workspace")
	acquired, err := Acquire(src, dest)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(acquired.WorkspacePath, "main.go"))
	require.NoDirExists(t, filepath.Join(acquired.WorkspacePath, ".git"))
	require.NoDirExists(t, filepath.Join(acquired.WorkspacePath, "node_modules"))
}

func TestAcquireRejectsDestinationInsideSource(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(src, "nested")
	_, err := Acquire(src, dest)
	require.Error(t, err)
}

func TestAcquirePipCreatesSyntheticCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dest := filepath.Join(t.TempDir(), "pipws")
	acquired, err := Acquire("pip:requests==2.31.0,click", dest)
	require.NoError(t, err)
	require.NotEmpty(t, acquired.CommitSHA)
	require.FileExists(t, filepath.Join(dest, "pyproject.toml"))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/widget.git": "widget",
		"  /repos/my repo ":                  "my-repo",
		`C:\repos\my-repo`:                   "my-repo",
		"...":                                "target",
		"":                                   "target",
		"plain-name":                         "plain-name",
	}
	for in, want := range cases {
		require.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestUTCTimestampCompact(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "20260801T120000Z", UTCTimestampCompact(ts))
}
