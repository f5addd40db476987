// Package claude normalizes Claude Code's stream-json output into
// canonical events. Claude nests tool_use/tool_result pairs inside
// assistant/user message content arrays rather than emitting them as
// top-level events. A tool_use block is remembered by id for the rest
// of the stream and paired with the tool_result block carrying that
// id, which usually arrives on a later line.
package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/normalize"
)

func Normalize(rawPath string, w *events.Writer, opts normalize.Options) error {
	f, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("normalize/claude: open %s: %w", rawPath, err)
	}
	defer f.Close()

	toolNames := map[string]string{}
	toolArgs := map[string]map[string]any{}
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
			if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "unparsable line", "raw": string(line)})); werr != nil {
				return werr
			}
			continue
		}

		typ, _ := obj["type"].(string)
		switch typ {
		case "assistant", "user":
			msg, _ := obj["message"].(map[string]any)
			content, _ := msg["content"].([]any)
			for _, c := range content {
				block, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if err := handleBlock(block, w, opts, toolNames, toolArgs, fc); err != nil {
					return err
				}
			}
		case "result":
			// terminal summary; last-message extraction happens in the adapter.
		default:
			if werr := w.Write(events.New(time.Now(), events.KindError, map[string]any{"message": "unknown event type", "type": typ})); werr != nil {
				return werr
			}
		}
	}
	return sc.Err()
}

func handleBlock(block map[string]any, w *events.Writer, opts normalize.Options, toolNames map[string]string, toolArgs map[string]map[string]any, fc *normalize.FailureCounters) error {
	switch block["type"] {
	case "text":
		text, _ := block["text"].(string)
		if text == "" {
			return nil
		}
		return w.Write(events.New(time.Now(), events.KindAgentMsg, map[string]any{"text": text}))
	case "tool_use":
		id, _ := block["id"].(string)
		name, _ := block["name"].(string)
		args, _ := block["input"].(map[string]any)
		toolNames[id] = name
		toolArgs[id] = args
		return nil
	case "tool_result":
		id, _ := block["tool_use_id"].(string)
		name := toolNames[id]
		args := toolArgs[id]
		content := stringifyContent(block["content"])
		isError, _ := block["is_error"].(bool)
		return emitToolEvent(w, name, args, content, isError, fc, opts)
	}
	return nil
}

func stringifyContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var out string
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					out += text
				}
			}
		}
		return out
	default:
		return ""
	}
}

func emitToolEvent(w *events.Writer, name string, args map[string]any, output string, isError bool, fc *normalize.FailureCounters, opts normalize.Options) error {
	excerpt := normalize.ExcerptText(output)
	switch name {
	case "Read":
		path, _ := args["file_path"].(string)
		return w.Write(events.New(time.Now(), events.KindReadFile, map[string]any{"path": normalize.MapSandboxPath(path, opts)}))
	case "Write", "Edit":
		path, _ := args["file_path"].(string)
		return w.Write(events.New(time.Now(), events.KindWriteFile, map[string]any{"path": normalize.MapSandboxPath(path, opts)}))
	case "Bash":
		command, _ := args["command"].(string)
		now := time.Now()
		exitCode := 0
		if isError {
			exitCode = 1
		}
		data := map[string]any{"argv": normalize.SplitCommand(command), "output": excerpt, "exit_code": exitCode}
		if isError {
			if fa := fc.PersistCommandFailure(opts, normalize.SplitCommand(command), exitCode, "", output, now, now); fa != nil {
				data["failure_artifacts"] = fa
			}
		}
		return w.Write(events.New(now, events.KindRunCommand, data))
	case "WebSearch":
		query, _ := args["query"].(string)
		return w.Write(events.New(time.Now(), events.KindWebSearch, map[string]any{"query": query, "output": excerpt}))
	default:
		now := time.Now()
		data := map[string]any{"name": name, "args": args, "output": excerpt, "is_error": isError}
		if isError {
			if fa := fc.PersistToolFailure(opts, name, args, output, now); fa != nil {
				data["failure_artifacts"] = fa
			}
		}
		return w.Write(events.New(now, events.KindToolCall, data))
	}
}
