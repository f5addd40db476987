package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrun/agentrun/internal/runerr"
)

func TestExtractMissingReport(t *testing.T) {
	_, err := Extract(t.TempDir())
	require.Error(t, err)
}

func TestExtractAndValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.json"), []byte(`{"summary":"fixed the bug","files_changed":["a.go"]}`), 0o644))

	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["summary"],
		"properties": {"summary": {"type": "string"}}
	}`), 0o644))

	rep, err := Extract(dir)
	require.NoError(t, err)
	require.NoError(t, Validate(rep, schemaPath))
}

func TestValidateFailsOnMissingRequired(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["summary"]
	}`), 0o644))

	err := Validate(map[string]any{}, schemaPath)
	require.Error(t, err)
}

func TestSplitJSONPointerUnescapes(t *testing.T) {
	require.Equal(t, []string{"a", "b", "0"}, splitJSONPointer("/a/b/0"))
	require.Equal(t, []string{"a/b", "c~d"}, splitJSONPointer("/a~1b/c~0d"))
	require.Nil(t, splitJSONPointer(""))
}

func TestValidateRendersArrayIndexPath(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"properties": {
			"files_changed": {
				"type": "array",
				"items": {"type": "string"}
			}
		}
	}`), 0o644))

	err := Validate(map[string]any{"files_changed": []any{1}}, schemaPath)
	require.Error(t, err)
	se, ok := err.(*runerr.StructuredError)
	require.True(t, ok)
	require.NotEmpty(t, se.Details)
	found := false
	for path := range se.Details {
		if strings.Contains(path, "[0]") {
			found = true
		}
	}
	require.True(t, found, "expected a details path containing an array index, got %v", se.Details)
}
