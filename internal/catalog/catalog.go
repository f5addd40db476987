// Package catalog discovers persona and mission documents from a
// catalog root, parses their YAML frontmatter, and resolves
// extends-based inheritance chains with cycle detection.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentrun/agentrun/internal/runerr"
)

// Config is the catalog.yaml document at the catalog root.
type Config struct {
	Defaults struct {
		PersonaID string `yaml:"persona_id"`
		MissionID string `yaml:"mission_id"`
	} `yaml:"defaults"`
	PersonasDir        string `yaml:"personas_dir"`
	MissionsDir        string `yaml:"missions_dir"`
	PromptTemplatesDir string `yaml:"prompt_templates_dir"`
	ReportSchemasDir   string `yaml:"report_schemas_dir"`
}

// Frontmatter is the YAML header shared by persona and mission
// documents.
type Frontmatter struct {
	ID             string `yaml:"id"`
	Extends        string `yaml:"extends"`
	PromptTemplate string `yaml:"prompt_template"`
	ReportSchema   string `yaml:"report_schema"`
	ExecutionMode  string `yaml:"execution_mode"`
}

// Document is a fully-parsed, but not yet inheritance-resolved,
// persona or mission document.
type Document struct {
	Frontmatter
	Body string
	Path string
}

// Catalog holds the loaded config plus every discovered persona and
// mission document, keyed by id.
type Catalog struct {
	Root     string
	Config   Config
	Personas map[string]Document
	Missions map[string]Document
}

// Load reads catalog.yaml at root and discovers every persona/mission
// markdown document beneath the configured directories.
func Load(root string) (*Catalog, error) {
	cfgPath := filepath.Join(root, "catalog.yaml")
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, runerr.InvalidRunSpec("missing_catalog_file", fmt.Sprintf("cannot read %s: %v", cfgPath, err), nil)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, runerr.InvalidRunSpec("malformed_catalog_file", fmt.Sprintf("%s: %v", cfgPath, err), nil)
	}
	if cfg.PersonasDir == "" {
		cfg.PersonasDir = "personas"
	}
	if cfg.MissionsDir == "" {
		cfg.MissionsDir = "missions"
	}

	personas, err := discover(filepath.Join(root, cfg.PersonasDir))
	if err != nil {
		return nil, err
	}
	missions, err := discover(filepath.Join(root, cfg.MissionsDir))
	if err != nil {
		return nil, err
	}

	return &Catalog{Root: root, Config: cfg, Personas: personas, Missions: missions}, nil
}

func discover(dir string) (map[string]Document, error) {
	out := map[string]Document{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, runerr.InvalidRunSpec("catalog_dir_unreadable", fmt.Sprintf("%s: %v", dir, err), nil)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := parseDocument(path)
		if err != nil {
			return nil, err
		}
		if doc.ID == "" {
			doc.ID = strings.TrimSuffix(entry.Name(), ".md")
		}
		out[doc.ID] = doc
	}
	return out, nil
}

func parseDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, runerr.InvalidRunSpec("catalog_doc_unreadable", fmt.Sprintf("%s: %v", path, err), nil)
	}
	fm, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return Document{}, runerr.InvalidRunSpec("malformed_frontmatter", fmt.Sprintf("%s: %v", path, err), nil)
	}
	var front Frontmatter
	if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
		return Document{}, runerr.InvalidRunSpec("malformed_frontmatter", fmt.Sprintf("%s: %v", path, err), nil)
	}
	return Document{Frontmatter: front, Body: body, Path: path}, nil
}

// splitFrontmatter pulls the leading "---\n...\n---\n" YAML block off a
// markdown document and returns it separately from the body.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	const delim = "---"
	if !strings.HasPrefix(content, delim) {
		return "", content, nil
	}
	rest := content[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx == -1 {
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}
	frontmatter = strings.TrimPrefix(rest[:idx], "\n")
	body = strings.TrimPrefix(rest[idx+len(delim)+1:], "\n")
	return frontmatter, body, nil
}

// Resolved is a document with its extends chain flattened: Frontmatter
// fields are inherited from the base (unless overridden by a more
// derived document), and Body segments are concatenated base-first.
type Resolved struct {
	Frontmatter
	Body string
}

// ResolvePersona flattens a persona's extends chain, detecting cycles.
func (c *Catalog) ResolvePersona(id string) (Resolved, error) {
	return resolveChain(id, c.Personas, "persona")
}

// ResolveMission flattens a mission's extends chain, detecting cycles.
func (c *Catalog) ResolveMission(id string) (Resolved, error) {
	return resolveChain(id, c.Missions, "mission")
}

func resolveChain(id string, docs map[string]Document, kind string) (Resolved, error) {
	chain, err := buildChain(id, docs, kind, map[string]bool{})
	if err != nil {
		return Resolved{}, err
	}
	var merged Resolved
	var bodies []string
	for _, doc := range chain {
		if doc.PromptTemplate != "" {
			merged.PromptTemplate = doc.PromptTemplate
		}
		if doc.ReportSchema != "" {
			merged.ReportSchema = doc.ReportSchema
		}
		if doc.ExecutionMode != "" {
			merged.ExecutionMode = doc.ExecutionMode
		}
		bodies = append(bodies, doc.Body)
	}
	merged.ID = id
	merged.Body = strings.Join(bodies, "\n\n")
	return merged, nil
}

// buildChain walks extends depth-first from the root id down to the
// least-derived ancestor, returning ancestors-first so later entries
// override earlier ones.
func buildChain(id string, docs map[string]Document, kind string, visiting map[string]bool) ([]Document, error) {
	if visiting[id] {
		ids := make([]string, 0, len(visiting))
		for v := range visiting {
			ids = append(ids, v)
		}
		sort.Strings(ids)
		return nil, runerr.InvalidRunSpec(kind+"_cycle", fmt.Sprintf("%s inheritance cycle detected at %q", kind, id), map[string]any{"ids": ids})
	}
	doc, ok := docs[id]
	if !ok {
		return nil, runerr.InvalidRunSpec(fmt.Sprintf("unknown_%s_id", kind), fmt.Sprintf("unknown %s id %q", kind, id), nil)
	}
	visiting[id] = true
	var chain []Document
	if doc.Extends != "" {
		parent, err := buildChain(doc.Extends, docs, kind, visiting)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent...)
	}
	delete(visiting, id)
	chain = append(chain, doc)
	return chain, nil
}
