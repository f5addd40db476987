// Package runspec resolves a RunRequest plus a catalog into an
// EffectiveRunSpec: the fully materialized prompt template, report
// schema, and execution mode a run will actually use.
package runspec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agentrun/agentrun/internal/catalog"
	"github.com/agentrun/agentrun/internal/runerr"
)

const supportedExecutionMode = "single_pass_inline_report"

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// RenderTemplate substitutes every ${var} occurrence in templateText
// from variables, mirroring build_prompt_from_template's strict rule:
// a placeholder with no matching key is an error, never a silent empty
// string.
func RenderTemplate(templateText string, variables map[string]string) (string, error) {
	missing := map[string]bool{}
	rendered := placeholderRe.ReplaceAllStringFunc(templateText, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := variables[key]
		if !ok {
			missing[key] = true
			return m
		}
		return v
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", runerr.InvalidRunSpec("template_substitution_failed",
			fmt.Sprintf("missing template variables: %s", strings.Join(keys, ", ")),
			map[string]any{"missing": keys})
	}
	return rendered, nil
}

// Request is the caller-supplied run request (spec.md §3 RunRequest).
type Request struct {
	PersonaID string
	MissionID string
	RepoPath  string
}

// EffectiveRunSpec is the fully resolved specification for a single
// run: a rendered-ready prompt body, the absolute path to the report
// JSON Schema, and the execution mode to use.
type EffectiveRunSpec struct {
	PersonaID     string
	MissionID     string
	ExecutionMode string

	PersonaSourceBody   string // requested persona's own body, before extends composition
	PersonaResolvedBody string // after extends composition
	MissionSourceBody   string
	MissionResolvedBody string

	PromptBody         string // fully-rendered prompt handed to the agent
	PromptTemplate     string // absolute path, if a template file is configured
	PromptTemplateText string // raw template text, if PromptTemplate is set

	ReportSchema string // absolute path
}

// Resolve mirrors resolve_effective_run_spec: it fills in default
// persona/mission ids, flattens inheritance, resolves template/schema
// paths relative to the catalog's configured directories, and rejects
// any execution_mode other than single_pass_inline_report.
func Resolve(cat *catalog.Catalog, req Request) (*EffectiveRunSpec, error) {
	personaID := req.PersonaID
	if personaID == "" {
		personaID = cat.Config.Defaults.PersonaID
	}
	missionID := req.MissionID
	if missionID == "" {
		missionID = cat.Config.Defaults.MissionID
	}
	if personaID == "" {
		return nil, runerr.InvalidRunSpec("missing_default_persona_id", "no persona_id given and catalog has no default", nil)
	}
	if missionID == "" {
		return nil, runerr.InvalidRunSpec("missing_default_mission_id", "no mission_id given and catalog has no default", nil)
	}

	persona, err := cat.ResolvePersona(personaID)
	if err != nil {
		return nil, err
	}
	mission, err := cat.ResolveMission(missionID)
	if err != nil {
		return nil, err
	}

	mode := mission.ExecutionMode
	if mode == "" {
		mode = supportedExecutionMode
	}
	if mode != supportedExecutionMode {
		return nil, runerr.UnsupportedExecutionMode(mode)
	}

	spec := &EffectiveRunSpec{
		PersonaID:           personaID,
		MissionID:           missionID,
		ExecutionMode:       mode,
		PersonaSourceBody:   cat.Personas[personaID].Body,
		PersonaResolvedBody: persona.Body,
		MissionSourceBody:   cat.Missions[missionID].Body,
		MissionResolvedBody: mission.Body,
	}

	variables := map[string]string{
		"persona_body": persona.Body,
		"mission_body": mission.Body,
		"persona_id":   personaID,
		"mission_id":   missionID,
	}

	if mission.PromptTemplate != "" {
		path, err := resolveFileUnderDir(cat.Root, cat.Config.PromptTemplatesDir, mission.PromptTemplate, "prompt_template")
		if err != nil {
			return nil, err
		}
		spec.PromptTemplate = path

		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, runerr.InvalidRunSpec("prompt_template_read_failed", fmt.Sprintf("%s: %v", path, rerr), map[string]any{"path": path})
		}
		spec.PromptTemplateText = string(raw)

		rendered, terr := RenderTemplate(spec.PromptTemplateText, variables)
		if terr != nil {
			return nil, terr
		}
		spec.PromptBody = rendered
	} else {
		spec.PromptBody = persona.Body + "\n\n" + mission.Body
	}

	schemaName := mission.ReportSchema
	if schemaName == "" {
		return nil, runerr.InvalidRunSpec("missing_report_schema", fmt.Sprintf("mission %q does not declare report_schema", missionID), nil)
	}
	schemaPath, err := resolveFileUnderDir(cat.Root, cat.Config.ReportSchemasDir, schemaName, "report_schema")
	if err != nil {
		return nil, err
	}
	spec.ReportSchema = schemaPath

	return spec, nil
}

// resolveFileUnderDir mirrors _resolve_file_under_dir: joins dir
// (relative to root, defaulting to "prompts" for prompt templates and
// "schemas" for report schemas) with name, and requires the result to
// exist and stay within dir (no path traversal).
func resolveFileUnderDir(root, dir, name, kindCode string) (string, error) {
	if dir == "" {
		switch kindCode {
		case "prompt_template":
			dir = "prompts"
		case "report_schema":
			dir = "schemas"
		default:
			dir = kindCode + "s"
		}
	}
	base := filepath.Join(root, dir)
	candidate := filepath.Join(base, name)

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", runerr.InvalidRunSpec(fmt.Sprintf("missing_%s_file", kindCode), err.Error(), nil)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", runerr.InvalidRunSpec(fmt.Sprintf("missing_%s_file", kindCode), err.Error(), nil)
	}
	rel, err := filepath.Rel(absBase, absCandidate)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return "", runerr.InvalidRunSpec(fmt.Sprintf("invalid_%s_path", kindCode), fmt.Sprintf("%s escapes %s", name, dir), nil)
	}
	if _, err := os.Stat(absCandidate); err != nil {
		return "", runerr.InvalidRunSpec(fmt.Sprintf("missing_%s_file", kindCode), fmt.Sprintf("%s not found at %s", kindCode, absCandidate), nil)
	}
	return absCandidate, nil
}

// LoadJSONObject mirrors _load_json_object: reads path and requires it
// to parse as a JSON object, distinguishing I/O errors from parse
// errors from "valid JSON but not an object" errors.
func LoadJSONObject(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, runerr.InvalidRunSpec("file_unreadable", fmt.Sprintf("%s: %v", path, err), nil)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		details := map[string]any{"path": path, "error": err.Error()}
		if syn, ok := err.(*json.SyntaxError); ok && syn.Offset <= int64(len(raw)) {
			line, column := 1, 1
			for _, c := range raw[:syn.Offset] {
				if c == '\n' {
					line, column = line+1, 1
				} else {
					column++
				}
			}
			details["line"], details["column"] = line, column
		}
		return nil, runerr.InvalidRunSpec("runspec_json_parse_failed", fmt.Sprintf("%s: %v", path, err), details)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, runerr.InvalidRunSpec("not_a_json_object", fmt.Sprintf("%s does not contain a JSON object", path), nil)
	}
	return obj, nil
}
