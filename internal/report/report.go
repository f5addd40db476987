// Package report extracts a mission's report.json from the agent's
// workspace and validates it against the mission's declared JSON
// Schema (Draft 2020-12).
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentrun/agentrun/internal/runerr"
)

// Extract reads report.json from workspaceDir. A missing or
// unparsable report produces a structured error rather than a bare Go
// error, so the orchestrator's failure artifact can describe it.
func Extract(workspaceDir string) (map[string]any, error) {
	path := filepath.Join(workspaceDir, "report.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, runerr.ReportInvalid(fmt.Sprintf("report.json not found in workspace: %v", err), nil)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, runerr.ReportInvalid(fmt.Sprintf("report.json is not valid JSON: %v", err), nil)
	}
	return obj, nil
}

// Validate checks report against the JSON Schema at schemaPath,
// returning path-rendered validation errors (e.g. "$['a'].b[0]") on
// failure.
func Validate(report map[string]any, schemaPath string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return runerr.ReportInvalid(fmt.Sprintf("invalid report schema %s: %v", schemaPath, err), nil)
	}

	if err := schema.Validate(report); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return runerr.ReportInvalid("report.json failed schema validation", renderValidationErrors(verr))
		}
		return runerr.ReportInvalid(err.Error(), nil)
	}
	return nil
}

// renderValidationErrors flattens a jsonschema.ValidationError tree
// into a details map keyed by the instance location.
func renderValidationErrors(verr *jsonschema.ValidationError) map[string]any {
	out := map[string]any{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		loc := instanceLocation(e)
		out[loc] = e.Message
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return out
}

// instanceLocation renders a jsonschema.ValidationError's InstanceLocation
// (a JSON pointer such as "/a/b/0") as "$['a'].b[0]". InstanceLocation is
// a string JSON pointer in santhosh-tekuri/jsonschema/v5, not a slice.
func instanceLocation(e *jsonschema.ValidationError) string {
	segs := splitJSONPointer(e.InstanceLocation)
	path := "$"
	for i, seg := range segs {
		if n, err := strconv.Atoi(seg); err == nil {
			path += fmt.Sprintf("[%d]", n)
			continue
		}
		if i == 0 {
			path += fmt.Sprintf("['%s']", seg)
		} else {
			path += "." + seg
		}
	}
	return path
}

// splitJSONPointer splits a JSON pointer into its unescaped reference
// tokens ("~1" -> "/", "~0" -> "~"), per RFC 6901.
func splitJSONPointer(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}
