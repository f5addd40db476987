// Package gemini implements the Gemini CLI adapter.
package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentrun/agentrun/internal/adapter"
	"github.com/agentrun/agentrun/internal/backend/docker"
)

const executableName = "gemini"

type Adapter struct{}

func (Adapter) Invoke(ctx context.Context, cfg adapter.Config) (adapter.Result, error) {
	argv := []string{executableName, "--output-format", "json", "--yolo"}
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
		stderr = "[synthetic_stderr] gemini exited with a non-zero status and produced no stderr output"
		synthesized = true
		_ = os.WriteFile(stderrPath, []byte(stderr), 0o644)
	}

	return adapter.Result{
		Argv:              full,
		ExitCode:          exitCode,
		TimedOut:          timedOut,
		RawEventsPath:     rawPath,
		TimestampsPath:    tsPath,
		StderrPath:        stderrPath,
		Stderr:            stderr,
		StderrSynthesized: synthesized,
	}, nil
}
