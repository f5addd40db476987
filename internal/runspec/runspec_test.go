package runspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrun/agentrun/internal/catalog"
	"github.com/stretchr/testify/require"
)

func setupCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "personas"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "missions"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "schemas"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "catalog.yaml"), []byte(`
defaults:
  persona_id: base
  mission_id: fix-bug
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "personas", "base.md"), []byte("---\nid: base\n---\nBe careful.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "missions", "fix-bug.md"), []byte("---\nid: fix-bug\nreport_schema: fix-bug.schema.json\n---\nFix the bug.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "schemas", "fix-bug.schema.json"), []byte(`{"type":"object"}`), 0o644))

	cat, err := catalog.Load(root)
	require.NoError(t, err)
	return cat
}

func TestResolveDefaults(t *testing.T) {
	cat := setupCatalog(t)
	spec, err := Resolve(cat, Request{})
	require.NoError(t, err)
	require.Equal(t, "base", spec.PersonaID)
	require.Equal(t, "fix-bug", spec.MissionID)
	require.Equal(t, supportedExecutionMode, spec.ExecutionMode)
	require.FileExists(t, spec.ReportSchema)
}

func TestResolveUnsupportedExecutionMode(t *testing.T) {
	cat := setupCatalog(t)
	require.NoError(t, os.WriteFile(filepath.Join(cat.Root, "missions", "batch.md"), []byte("---\nid: batch\nexecution_mode: batch_mode\nreport_schema: fix-bug.schema.json\n---\nBatch.\n"), 0o644))
	cat2, err := catalogReload(cat.Root)
	require.NoError(t, err)

	_, err = Resolve(cat2, Request{MissionID: "batch"})
	require.Error(t, err)
}

func TestResolveMissingReportSchema(t *testing.T) {
	cat := setupCatalog(t)
	require.NoError(t, os.WriteFile(filepath.Join(cat.Root, "missions", "no-schema.md"), []byte("---\nid: no-schema\n---\nDo it.\n"), 0o644))
	cat2, err := catalogReload(cat.Root)
	require.NoError(t, err)

	_, err = Resolve(cat2, Request{MissionID: "no-schema"})
	require.Error(t, err)
}

func catalogReload(root string) (*catalog.Catalog, error) {
	return catalog.Load(root)
}

func TestRenderTemplateSubstitutes(t *testing.T) {
	out, err := RenderTemplate("Hello ${name}.\nPolicy:\n${policy_json}\n", map[string]string{
		"name":        "World",
		"policy_json": `{"allow_edits": false}`,
	})
	require.NoError(t, err)
	require.Contains(t, out, "Hello World.")
	require.Contains(t, out, `{"allow_edits": false}`)
}

func TestRenderTemplateErrorsOnMissingVars(t *testing.T) {
	_, err := RenderTemplate("Hello ${name}. Missing: ${nope}\n", map[string]string{"name": "World"})
	require.Error(t, err)
}

func TestResolveUsesPromptTemplateWhenConfigured(t *testing.T) {
	cat := setupCatalog(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cat.Root, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cat.Root, "prompts", "fix-bug.md"), []byte("Persona:\n${persona_body}\nMission:\n${mission_body}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cat.Root, "missions", "fix-bug.md"), []byte("---\nid: fix-bug\nreport_schema: fix-bug.schema.json\nprompt_template: fix-bug.md\n---\nFix the bug.\n"), 0o644))
	cat2, err := catalogReload(cat.Root)
	require.NoError(t, err)

	spec, err := Resolve(cat2, Request{})
	require.NoError(t, err)
	require.Contains(t, spec.PromptBody, "Be careful.")
	require.Contains(t, spec.PromptBody, "Fix the bug.")
	require.NotEmpty(t, spec.PromptTemplateText)
}
