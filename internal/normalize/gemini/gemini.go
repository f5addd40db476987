// Package gemini normalizes Gemini CLI's raw JSON stream into
// canonical events, porting gemini_normalize.py's pending-message
// coalescing and tool_use/tool_result pairing.
package gemini

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/normalize"
)

type pendingToolUse struct {
	name string
	args map[string]any
}

// Normalize reads rawPath (one JSON object per line) and writes
// canonical events to the writer. Unknown lines and orphaned
// tool_results become error events rather than being dropped.
func Normalize(rawPath string, w *events.Writer, opts normalize.Options) error {
	f, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("normalize/gemini: open %s: %w", rawPath, err)
	}
	defer f.Close()

	toolUses := map[string]pendingToolUse{}
	var pendingMessage string
	fc := &normalize.FailureCounters{}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			if pendingMessage != "" {
				if werr := w.Write(events.New(time.Now(), events.KindAgentMsg, map[string]any{"text": pendingMessage})); werr != nil {
					return werr
				}
				pendingMessage = ""
			}
			if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "unparsable line", "raw": string(line)})); werr != nil {
				return werr
			}
			continue
		}

		typ, _ := obj["type"].(string)
		switch typ {
		case "content":
			if text, ok := obj["text"].(string); ok {
				pendingMessage += text
			}
		case "tool_use":
			if pendingMessage != "" {
				if werr := w.Write(events.New(time.Now(), events.KindAgentMsg, map[string]any{"text": pendingMessage})); werr != nil {
					return werr
				}
				pendingMessage = ""
			}
			id, _ := obj["id"].(string)
			name, _ := obj["name"].(string)
			args, _ := obj["input"].(map[string]any)
			toolUses[id] = pendingToolUse{name: name, args: args}
		case "tool_result":
			id, _ := obj["tool_use_id"].(string)
			use, ok := toolUses[id]
			if !ok {
				if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "orphaned tool_result", "tool_use_id": id})); werr != nil {
					return werr
				}
				continue
			}
			delete(toolUses, id)
			output, _ := obj["output"].(string)
			isError, _ := obj["is_error"].(bool)
			if werr := emitToolEvent(w, use, output, isError, fc, opts); werr != nil {
				return werr
			}
		default:
			if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "unknown event type", "type": typ})); werr != nil {
				return werr
			}
		}
	}

	if pendingMessage != "" {
		if err := w.Write(events.New(time.Now(), events.KindAgentMsg, map[string]any{"text": pendingMessage})); err != nil {
			return err
		}
	}
	for id, use := range toolUses {
		if err := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "tool_use without matching tool_result", "tool_use_id": id, "name": use.name})); err != nil {
			return err
		}
	}
	return sc.Err()
}

func emitToolEvent(w *events.Writer, use pendingToolUse, output string, isError bool, fc *normalize.FailureCounters, opts normalize.Options) error {
	excerpt := normalize.ExcerptText(output)
	switch use.name {
	case "read_file":
		path, _ := use.args["path"].(string)
		return w.Write(events.New(time.Now(), events.KindReadFile, map[string]any{
			"path": normalize.MapSandboxPath(path, opts),
		}))
	case "write_file":
		path, _ := use.args["path"].(string)
		return w.Write(events.New(time.Now(), events.KindWriteFile, map[string]any{
			"path": normalize.MapSandboxPath(path, opts),
		}))
	case "replace":
		path, _ := use.args["path"].(string)
		return w.Write(events.New(time.Now(), events.KindWriteFile, map[string]any{
			"path": normalize.MapSandboxPath(path, opts),
			"mode": "replace",
		}))
	case "run_shell_command":
		command, _ := use.args["command"].(string)
		now := time.Now()
		exitCode := 0
		if isError {
			exitCode = 1
		}
		data := map[string]any{
			"argv":      normalize.SplitCommand(command),
			"output":    excerpt,
			"exit_code": exitCode,
		}
		if isError {
			if fa := fc.PersistCommandFailure(opts, normalize.SplitCommand(command), exitCode, "", output, now, now); fa != nil {
				data["failure_artifacts"] = fa
			}
		}
		return w.Write(events.New(now, events.KindRunCommand, data))
	case "google_web_search":
		query, _ := use.args["query"].(string)
		return w.Write(events.New(time.Now(), events.KindWebSearch, map[string]any{
			"query":  query,
			"output": excerpt,
		}))
	default:
		now := time.Now()
		data := map[string]any{
			"name":     use.name,
			"args":     use.args,
			"output":   excerpt,
			"is_error": isError,
		}
		if isError {
			if fa := fc.PersistToolFailure(opts, use.name, use.args, output, now); fa != nil {
				data["failure_artifacts"] = fa
			}
		}
		return w.Write(events.New(now, events.KindToolCall, data))
	}
}
