// Package runnerconfig loads RunnerConfig, the top-level YAML document
// describing where the catalog lives and how runs are timed out and
// retained. Field documentation density follows the teacher's
// config package: defaults and ranges spelled out where a reader would
// otherwise have to guess them, terse where the field is self-evident.
package runnerconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RunnerConfig is discovered by walking upward from the working
// directory looking for "agentrun.yaml", the way the teacher's storage
// layer discovers its database file.
type RunnerConfig struct {
	CatalogRoot string `yaml:"catalog_root"`

	// AgentTimeout bounds a single agent invocation. The reference
	// implementation has no hard default; we pick 30 minutes as a
	// generous ceiling that still bounds a stuck process.
	AgentTimeout time.Duration `yaml:"agent_timeout"`

	// VerificationTimeout bounds each individual verification command.
	VerificationTimeout time.Duration `yaml:"verification_timeout"`

	// DockerBuildTimeout bounds a single `docker build` invocation.
	DockerBuildTimeout time.Duration `yaml:"docker_build_timeout"`

	// RetainRunDirs keeps completed run directories on disk when true.
	// When false, only the minimum artifact set needed for the failure
	// or success summary survives past finalize.
	RetainRunDirs bool `yaml:"retain_run_dirs"`
}

func defaults() RunnerConfig {
	return RunnerConfig{
		AgentTimeout:         30 * time.Minute,
		VerificationTimeout:  10 * time.Minute,
		DockerBuildTimeout:   15 * time.Minute,
		RetainRunDirs:        true,
	}
}

// Load reads agentrun.yaml at path, applying defaults() for any zero
// field left unset.
func Load(path string) (RunnerConfig, error) {
	cfg := defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunnerConfig{}, fmt.Errorf("runnerconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RunnerConfig{}, fmt.Errorf("runnerconfig: parse %s: %w", path, err)
	}
	if cfg.CatalogRoot == "" {
		return RunnerConfig{}, fmt.Errorf("runnerconfig: %s: catalog_root is required", path)
	}
	if !filepath.IsAbs(cfg.CatalogRoot) {
		cfg.CatalogRoot = filepath.Join(filepath.Dir(path), cfg.CatalogRoot)
	}
	return cfg, nil
}

// Discover walks upward from startDir looking for agentrun.yaml,
// mirroring the teacher's upward config-file search.
func Discover(startDir string) (RunnerConfig, string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return RunnerConfig{}, "", err
	}
	for {
		candidate := filepath.Join(dir, "agentrun.yaml")
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := Load(candidate)
			return cfg, candidate, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return RunnerConfig{}, "", fmt.Errorf("runnerconfig: no agentrun.yaml found above %s", startDir)
		}
		dir = parent
	}
}
