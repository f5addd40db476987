package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "personas"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "missions"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "catalog.yaml"), []byte(`
defaults:
  persona_id: base
  mission_id: fix-bug
personas_dir: personas
missions_dir: missions
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "personas", "base.md"), []byte(`---
id: base
prompt_template: base.tmpl
---
You are careful.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "personas", "terse.md"), []byte(`---
id: terse
extends: base
---
Keep responses short.
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "missions", "fix-bug.md"), []byte(`---
id: fix-bug
execution_mode: single_pass_inline_report
report_schema: fix-bug.schema.json
---
Fix the reported bug and write report.json.
`), 0o644))
}

func TestResolvePersonaInheritance(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root)
	cat, err := Load(root)
	require.NoError(t, err)

	resolved, err := cat.ResolvePersona("terse")
	require.NoError(t, err)
	require.Equal(t, "base.tmpl", resolved.PromptTemplate)
	require.Contains(t, resolved.Body, "You are careful.")
	require.Contains(t, resolved.Body, "Keep responses short.")
}

func TestResolveMissionUnknownID(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root)
	cat, err := Load(root)
	require.NoError(t, err)

	_, err = cat.ResolveMission("does-not-exist")
	require.Error(t, err)
}

func TestResolvePersonaCycleDetected(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root)
	require.NoError(t, os.WriteFile(filepath.Join(root, "personas", "a.md"), []byte("---\nid: a\nextends: b\n---\nA\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "personas", "b.md"), []byte("---\nid: b\nextends: a\n---\nB\n"), 0o644))

	cat, err := Load(root)
	require.NoError(t, err)
	_, err = cat.ResolvePersona("a")
	require.Error(t, err)
}
