// Package normalize translates a backend's raw JSONL event stream into
// the canonical events.Event schema, grounded on the reference
// implementation's gemini_normalize state machine (delta-message
// coalescing, tool_use/tool_result pairing by id, sandbox-to-workspace
// path remapping) generalized across all three backends.
package normalize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentrun/agentrun/internal/capture"
)

// Options parameterize path remapping and truncation.
type Options struct {
	Mount         string // the backend's virtual workspace mount, e.g. "/workspace"
	WorkspacePath string // the real host-relative workspace root
	RunDir        string // run directory root; failure sub-artifacts are written under here
}

const excerptBudget = 2000
const truncationMarker = "\n...[truncated_output]...\n"

// ExcerptText budgets a possibly-huge tool output down to a head/tail
// window with a truncation marker, mirroring _excerpt_text.
func ExcerptText(s string) string {
	if len(s) <= excerptBudget {
		return s
	}
	half := (excerptBudget - len(truncationMarker)) / 2
	if half < 0 {
		half = 0
	}
	return s[:half] + truncationMarker + s[len(s)-half:]
}

// MapSandboxPath rewrites a path reported relative to the sandbox
// mount into a workspace-relative POSIX path, mirroring
// _map_sandbox_path_str / _normalize_workspace_mount.
func MapSandboxPath(raw string, opts Options) string {
	if opts.Mount == "" {
		return filepath.ToSlash(raw)
	}
	mount := strings.TrimSuffix(filepath.ToSlash(opts.Mount), "/")
	p := filepath.ToSlash(raw)
	if p == mount {
		return "."
	}
	if strings.HasPrefix(p, mount+"/") {
		return strings.TrimPrefix(p, mount+"/")
	}
	return p
}

// SplitCommand does a POSIX shell split even on Windows hosts, since
// commands are always executed inside a POSIX sandbox shell or a
// PowerShell whose tokenization the adapter already handled.
func SplitCommand(cmd string) []string {
	var out []string
	var cur strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			inQuote = c
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// FailureCounters assigns the cmd_NN / tool_NN_<name> indices used by
// failure sub-artifact directories, scoped to a single normalizer run.
type FailureCounters struct {
	cmd  int
	tool int
}

// PersistCommandFailure writes command_failures/cmd_NN/{command.json,
// stdout.txt, stderr.txt, timing.json} and returns the failure_artifacts
// pointer map to attach to the owning canonical event's Data.
func (fc *FailureCounters) PersistCommandFailure(opts Options, argv []string, exitCode int, stdout, stderr string, started, ended time.Time) map[string]any {
	if opts.RunDir == "" {
		return nil
	}
	fc.cmd++
	dir := filepath.Join(opts.RunDir, "command_failures", fmt.Sprintf("cmd_%02d", fc.cmd))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}

	stdoutMeta := persistCapturedText(dir, "stdout.txt", stdout)
	stderrMeta := persistCapturedText(dir, "stderr.txt", stderr)

	writeJSONFile(filepath.Join(dir, "command.json"), map[string]any{
		"argv":      argv,
		"exit_code": exitCode,
	})
	writeJSONFile(filepath.Join(dir, "timing.json"), map[string]any{
		"started_at": started.UTC().Format(time.RFC3339),
		"ended_at":   ended.UTC().Format(time.RFC3339),
	})

	return map[string]any{
		"dir":    filepath.Join("command_failures", fmt.Sprintf("cmd_%02d", fc.cmd)),
		"stdout": stdoutMeta,
		"stderr": stderrMeta,
	}
}

// PersistToolFailure writes tool_failures/tool_NN_<name>/{tool.json,
// stdout.txt, stderr.txt, timing.json} and returns the failure_artifacts
// pointer map to attach to the owning canonical event's Data.
func (fc *FailureCounters) PersistToolFailure(opts Options, name string, args map[string]any, output string, at time.Time) map[string]any {
	if opts.RunDir == "" {
		return nil
	}
	fc.tool++
	slug := sanitizeToolName(name)
	relDir := filepath.Join("tool_failures", fmt.Sprintf("tool_%02d_%s", fc.tool, slug))
	dir := filepath.Join(opts.RunDir, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}

	stdoutMeta := persistCapturedText(dir, "stdout.txt", output)
	_ = persistCapturedText(dir, "stderr.txt", "")

	writeJSONFile(filepath.Join(dir, "tool.json"), map[string]any{
		"name": name,
		"args": args,
	})
	writeJSONFile(filepath.Join(dir, "timing.json"), map[string]any{
		"at": at.UTC().Format(time.RFC3339),
	})

	return map[string]any{
		"dir":    relDir,
		"stdout": stdoutMeta,
	}
}

func sanitizeToolName(name string) string {
	if name == "" {
		return "tool"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// persistCapturedText writes content to dir/name, running it through
// capture.TextArtifact and replacing the file with a truncated
// head/tail excerpt when content exceeds the default policy budget.
func persistCapturedText(dir, name, content string) map[string]any {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return map[string]any{"error": err.Error()}
	}
	res := capture.TextArtifact(path, "", capture.DefaultPolicy())
	if res.Excerpt != nil && res.Excerpt.Truncated {
		truncated := res.Excerpt.Head + truncationMarker + res.Excerpt.Tail
		_ = os.WriteFile(path, []byte(truncated), 0o644)
	}
	meta := map[string]any{"path": name, "sha256": res.Artifact.SHA256}
	if res.Excerpt != nil {
		meta["truncated"] = res.Excerpt.Truncated
	}
	return meta
}

func writeJSONFile(path string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, b, 0o644)
}
