// Package target materializes a run's workspace from a repo locator:
// a local path to copy, a git URL to shallow-clone, or a pip:
// dependency-only locator.
package target

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentrun/agentrun/internal/runerr"
)

var excludedRootNames = []string{
	".git", ".hg", ".svn", ".venv", ".mypy_cache", ".pytest_cache",
	".ruff_cache", ".pdm-build", "__pycache__", "node_modules", ".DS_Store",
}

var slugRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Slugify turns a repo locator into the filesystem-safe target_slug
// used in the run directory path: the last path segment, with any
// trailing ".git" stripped, runs of non-identifier characters
// collapsed to a single hyphen, and leading/trailing "-._" trimmed.
// An empty result falls back to "target".
func Slugify(value string) string {
	s := strings.TrimSpace(value)
	s = strings.ReplaceAll(s, "\\", "/")
	if idx := strings.LastIndex(s, "/"); idx != -1 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(s, ".git")
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-._")
	if s == "" {
		return "target"
	}
	return s
}

// UTCTimestampCompact formats t in the run directory's compact UTC
// timestamp form, e.g. "20260801T120000Z".
func UTCTimestampCompact(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Acquired describes the materialized workspace.
type Acquired struct {
	WorkspacePath string
	CommitSHA     string
	Locator       string
}

// Acquire materializes locator into destDir, which must not already
// exist. Supported locator forms: a filesystem path (copy), a
// "git:<url>[#ref]" URL (shallow clone), or "pip:<req>[,<req>...]"
// (synthetic dependency-only workspace).
func Acquire(locator, destDir string) (*Acquired, error) {
	if err := checkDestinationSafety(locator, destDir); err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(locator, "git:"):
		return acquireClone(strings.TrimPrefix(locator, "git:"), destDir)
	case strings.HasPrefix(locator, "pip:"):
		return acquirePip(strings.TrimPrefix(locator, "pip:"), destDir)
	default:
		return acquireCopy(locator, destDir)
	}
}

func checkDestinationSafety(locator, destDir string) error {
	if strings.HasPrefix(locator, "git:") || strings.HasPrefix(locator, "pip:") {
		return nil
	}
	srcAbs, err := filepath.Abs(locator)
	if err != nil {
		return runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	rel, err := filepath.Rel(srcAbs, destAbs)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "." {
		// destAbs is inside srcAbs: copying srcAbs into destAbs would recurse.
		return runerr.TargetAcquisitionFailed(fmt.Sprintf("destination %s is inside source %s", destAbs, srcAbs), nil)
	}
	if err := checkPathLength(destAbs); err != nil {
		return err
	}
	return nil
}

// checkPathLength guards against Windows MAX_PATH-style relocation
// failures by rejecting destinations whose absolute length would make
// ordinary nested files exceed a conservative bound.
func checkPathLength(destAbs string) error {
	const maxSafeLen = 200
	if len(destAbs) > maxSafeLen {
		return runerr.TargetAcquisitionFailed(fmt.Sprintf("destination path %q is too long to safely nest a repository under (>%d chars)", destAbs, maxSafeLen), nil)
	}
	return nil
}

func acquireCopy(srcDir, destDir string) (*Acquired, error) {
	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		return nil, runerr.TargetAcquisitionFailed(fmt.Sprintf("source %q is not a directory", srcDir), nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	for _, e := range entries {
		if isExcludedRootEntry(e.Name()) {
			continue
		}
		if err := copyRecursive(filepath.Join(srcDir, e.Name()), filepath.Join(destDir, e.Name())); err != nil {
			return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
		}
	}

	sha := commitSHA(srcDir)
	return &Acquired{WorkspacePath: destDir, CommitSHA: sha, Locator: srcDir}, nil
}

func isExcludedRootEntry(name string) bool {
	for _, pattern := range excludedRootNames {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func copyRecursive(src, dest string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(linkTarget, dest)
	}
	if info.IsDir() {
		if err := os.MkdirAll(dest, info.Mode()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := copyRecursive(filepath.Join(src, e.Name()), filepath.Join(dest, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, info.Mode())
}

func commitSHA(dir string) string {
	cmd := exec.Command("git", "-C", dir, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func acquireClone(ref, destDir string) (*Acquired, error) {
	url := ref
	checkout := ""
	if idx := strings.Index(ref, "#"); idx != -1 {
		url = ref[:idx]
		checkout = ref[idx+1:]
	}
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	args := []string{"clone", "--depth", "1"}
	if checkout != "" {
		args = append(args, "--branch", checkout)
	}
	args = append(args, url, destDir)
	cmd := exec.Command("git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, runerr.TargetAcquisitionFailed(fmt.Sprintf("git clone failed: %v: %s", err, string(out)), map[string]any{"url": url})
	}
	return &Acquired{WorkspacePath: destDir, CommitSHA: commitSHA(destDir), Locator: "git:" + ref}, nil
}

// acquirePip materializes a synthetic, dependency-only workspace from
// a comma-separated requirement list, committing it so CommitSHA is a
// real git commit rather than a placeholder.
func acquirePip(reqList, destDir string) (*Acquired, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	reqs := strings.Split(reqList, ",")
	var b strings.Builder
	b.WriteString("[project]\nname = \"synthetic-pip-target\"\nversion = \"0.0.0\"\ndependencies = [\n")
	for _, r := range reqs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		fmt.Fprintf(&b, "  %q,\n", r)
	}
	b.WriteString("]\n")

	if err := os.WriteFile(filepath.Join(destDir, "pyproject.toml"), []byte(b.String()), 0o644); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}

	run := func(args ...string) error {
		cmd := exec.Command("git", append([]string{"-C", destDir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%v: %s", err, string(out))
		}
		return nil
	}
	if err := run("init", "-q"); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	if err := run("add", "-A"); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}
	if err := run("-c", "user.email=agentrun@local", "-c", "user.name=agentrun", "commit", "-q", "-m", "synthetic pip target"); err != nil {
		return nil, runerr.TargetAcquisitionFailed(err.Error(), nil)
	}

	return &Acquired{WorkspacePath: destDir, CommitSHA: commitSHA(destDir), Locator: "pip:" + reqList}, nil
}
