// Package claude implements the Claude Code CLI adapter, grounded on
// the reference implementation's run_claude_print: stream-json output,
// prompt delivered via stdin, last-message extraction from the final
// "result" event.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentrun/agentrun/internal/adapter"
	"github.com/agentrun/agentrun/internal/backend/docker"
)

const executableName = "claude"

// Adapter invokes the Claude Code CLI.
type Adapter struct{}

func (Adapter) Invoke(ctx context.Context, cfg adapter.Config) (adapter.Result, error) {
	argv := buildArgv(cfg)
	prefix := docker.InjectEnv(append([]string{}, cfg.CommandPrefix...), cfg.Env)
	full := append(prefix, argv...)

	rawPath := filepath.Join(cfg.RunDir, "raw_events.jsonl")
	tsPath := filepath.Join(cfg.RunDir, "raw_events.ts.jsonl")

	var env []string
	if !docker.LooksLikeExecPrefix(cfg.CommandPrefix) {
		env = os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	exitCode, timedOut, stderr, err := adapter.RunCapturingOutput(ctx, full, cfg.WorkingDir, env, cfg.Prompt, rawPath, tsPath)
	if err != nil {
		return adapter.Result{}, err
	}

	stderrPath := filepath.Join(cfg.RunDir, "agent_stderr.txt")
	_ = os.WriteFile(stderrPath, []byte(stderr), 0o644)

	synthesized := false
	if stderr == "" && exitCode != 0 {
		stderr = "[synthetic_stderr] claude exited with a non-zero status and produced no stderr output"
		synthesized = true
		_ = os.WriteFile(stderrPath, []byte(stderr), 0o644)
	}

	lastMessagePath := filepath.Join(cfg.RunDir, "agent_last_message.txt")
	if text := extractLastMessage(rawPath); text != "" {
		_ = os.WriteFile(lastMessagePath, []byte(text), 0o644)
	}

	return adapter.Result{
		Argv:              full,
		ExitCode:          exitCode,
		TimedOut:          timedOut,
		RawEventsPath:     rawPath,
		TimestampsPath:    tsPath,
		LastMessagePath:   lastMessagePath,
		StderrPath:        stderrPath,
		Stderr:            stderr,
		StderrSynthesized: synthesized,
	}, nil
}

func buildArgv(cfg adapter.Config) []string {
	return []string{
		executableName,
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
}

// extractLastMessage mirrors _extract_last_message_text: prefer the
// terminal "result" event's result field, falling back to
// concatenating assistant text blocks.
func extractLastMessage(rawPath string) string {
	f, err := os.Open(rawPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var lastResult string
	var assistantText string
	for {
		var line map[string]any
		if err := dec.Decode(&line); err != nil {
			break
		}
		if t, _ := line["type"].(string); t == "result" {
			if r, ok := line["result"].(string); ok {
				lastResult = r
			}
		}
		if t, _ := line["type"].(string); t == "assistant" {
			if msg, ok := line["message"].(map[string]any); ok {
				if content, ok := msg["content"].([]any); ok {
					for _, c := range content {
						block, ok := c.(map[string]any)
						if !ok {
							continue
						}
						if block["type"] == "text" {
							if text, ok := block["text"].(string); ok {
								assistantText += text
							}
						}
					}
				}
			}
		}
	}
	if lastResult != "" {
		return lastResult
	}
	return assistantText
}
