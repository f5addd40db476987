// Package codex normalizes Codex CLI's JSON-RPC-shaped event stream
// into canonical events.
package codex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/normalize"
)

// pendingExec tracks an exec_command_begin awaiting its matching
// exec_command_end, correlated by call_id.
type pendingExec struct {
	argv    []string
	started time.Time
}

func Normalize(rawPath string, w *events.Writer, opts normalize.Options) error {
	f, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("normalize/codex: open %s: %w", rawPath, err)
	}
	defer f.Close()

	fc := &normalize.FailureCounters{}
	execs := map[string]pendingExec{}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env map[string]any
		if err := json.Unmarshal(line, &env); err != nil {
			if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "unparsable line", "raw": string(line)})); werr != nil {
				return werr
			}
			continue
		}
		msg, _ := env["msg"].(map[string]any)
		if msg == nil {
			continue
		}
		mt, _ := msg["type"].(string)
		if err := handleMsg(mt, msg, w, opts, execs, fc); err != nil {
			return err
		}
	}
	for callID, pending := range execs {
		if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{
			"message": "exec_command_begin without matching exec_command_end",
			"call_id": callID,
			"argv":    pending.argv,
		})); werr != nil {
			return werr
		}
	}
	return sc.Err()
}

func handleMsg(mt string, msg map[string]any, w *events.Writer, opts normalize.Options, execs map[string]pendingExec, fc *normalize.FailureCounters) error {
	switch mt {
	case "agent_message":
		text, _ := msg["message"].(string)
		return w.Write(events.New(time.Now(), events.KindAgentMsg, map[string]any{"text": text}))
	case "patch_apply_begin":
		path, _ := msg["path"].(string)
		return w.Write(events.New(time.Now(), events.KindWriteFile, map[string]any{"path": normalize.MapSandboxPath(path, opts)}))
	case "exec_command_begin":
		callID, _ := msg["call_id"].(string)
		var argv []string
		if raw, ok := msg["command"].([]any); ok {
			for _, a := range raw {
				if s, ok := a.(string); ok {
					argv = append(argv, s)
				}
			}
		}
		execs[callID] = pendingExec{argv: argv, started: time.Now()}
		return nil
	case "exec_command_end":
		callID, _ := msg["call_id"].(string)
		pending, ok := execs[callID]
		if !ok {
			output, _ := msg["aggregated_output"].(string)
			return w.Write(events.New(time.Now(), events.KindError, map[string]any{
				"message": "exec_command_end without matching exec_command_begin",
				"call_id": callID,
				"output":  normalize.ExcerptText(output),
			}))
		}
		delete(execs, callID)

		output, _ := msg["aggregated_output"].(string)
		exitCode := 0
		if n, ok := msg["exit_code"].(float64); ok {
			exitCode = int(n)
		}
		now := time.Now()
		data := map[string]any{
			"argv":      pending.argv,
			"output":    normalize.ExcerptText(output),
			"exit_code": exitCode,
		}
		if exitCode != 0 {
			if fa := fc.PersistCommandFailure(opts, pending.argv, exitCode, "", output, pending.started, now); fa != nil {
				data["failure_artifacts"] = fa
			}
		}
		return w.Write(events.New(now, events.KindRunCommand, data))
	case "error":
		message, _ := msg["message"].(string)
		return w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": message}))
	default:
		return nil
	}
}
