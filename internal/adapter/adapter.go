// Package adapter defines the contract every backend-specific agent
// adapter (claude, codex, gemini) implements: spawn the agent CLI,
// feed it a prompt, and stream its raw output into a JSONL file with a
// per-line timestamp sidecar, adapted from the teacher's
// executor.Agent spawn/wait lifecycle.
package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrun/agentrun/internal/events"
)

// Config parameterizes a single agent invocation.
type Config struct {
	WorkingDir    string   // host path passed to the adapter for prompt rendering context
	CommandPrefix []string // from backend.Instance.CommandPrefix()
	Mount         string   // backend.Instance.Mount()
	Prompt        string
	Env           map[string]string
	Timeout       time.Duration
	RunDir        string // where raw_events.jsonl / sidecar / last-message files live
}

// Result is what every adapter returns after the agent process ran,
// either to completion or until it timed out. An invocation that fails
// before or instead of a normal run returns a zero Result and an error.
type Result struct {
	Argv            []string
	ExitCode        int
	TimedOut        bool
	RawEventsPath   string
	TimestampsPath  string
	LastMessagePath string
	StderrPath      string
	Stderr          string
	StderrSynthesized bool
}

// Adapter is implemented by each backend-specific package.
type Adapter interface {
	Invoke(ctx context.Context, cfg Config) (Result, error)
}

// RunCapturingOutput is the shared spawn/capture/wait path every
// adapter uses: it starts argv (already prefixed with
// cfg.CommandPrefix by the caller), writes the prompt to stdin,
// streams stdout into rawPath with a parallel timestamp sidecar, and
// captures stderr in full. The two capture goroutines run in an
// errgroup; each reads until its pipe closes, and the first error from
// either is returned when the process itself exited cleanly.
func RunCapturingOutput(ctx context.Context, argv []string, dir string, env []string, prompt, rawPath, tsPath string) (exitCode int, timedOut bool, stderr string, err error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return -1, false, "", fmt.Errorf("adapter: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, false, "", fmt.Errorf("adapter: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, false, "", fmt.Errorf("adapter: stderr pipe: %w", err)
	}

	rawFile, err := os.Create(rawPath)
	if err != nil {
		return -1, false, "", fmt.Errorf("adapter: create %s: %w", rawPath, err)
	}
	defer rawFile.Close()
	tsFile, err := os.Create(tsPath)
	if err != nil {
		return -1, false, "", fmt.Errorf("adapter: create %s: %w", tsPath, err)
	}
	defer tsFile.Close()

	if err := cmd.Start(); err != nil {
		return -1, false, "", fmt.Errorf("adapter: start: %w", err)
	}

	stdin.Write([]byte(prompt))
	stdin.Close()

	g, _ := errgroup.WithContext(ctx)
	var stderrBuf []byte
	g.Go(func() error {
		return streamLines(stdout, rawFile, tsFile)
	})
	g.Go(func() error {
		buf, rerr := readAll(stderrPipe)
		stderrBuf = buf
		return rerr
	})

	captureErr := g.Wait()
	waitErr := cmd.Wait()

	timedOut = ctx.Err() == context.DeadlineExceeded
	exitCode = 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if captureErr != nil && waitErr == nil {
		err = fmt.Errorf("adapter: capture: %w", captureErr)
	}
	return exitCode, timedOut, string(stderrBuf), err
}

func streamLines(r io.Reader, rawFile, tsFile *os.File) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := rawFile.WriteString(line + "\n"); err != nil {
			return err
		}
		ts := events.UTCNowISO(timeNow())
		if _, err := tsFile.WriteString(ts + "\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func timeNow() time.Time { return time.Now() }

func readAll(r io.Reader) ([]byte, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return buf, err
	}
	return buf, nil
}
