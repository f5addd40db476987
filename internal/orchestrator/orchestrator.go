// Package orchestrator composes run-spec resolution, target
// acquisition, backend startup, agent invocation, normalization,
// report validation, verification, and finalization inside one
// top-level recover region, grounded on the teacher's
// cmd/run-executor wiring and internal/executor's top-level error
// handling.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrun/agentrun/internal/adapter"
	"github.com/agentrun/agentrun/internal/adapter/claude"
	"github.com/agentrun/agentrun/internal/adapter/codex"
	"github.com/agentrun/agentrun/internal/adapter/gemini"
	"github.com/agentrun/agentrun/internal/backend"
	backenddocker "github.com/agentrun/agentrun/internal/backend/docker"
	backendlocal "github.com/agentrun/agentrun/internal/backend/local"
	"github.com/agentrun/agentrun/internal/catalog"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/failure"
	"github.com/agentrun/agentrun/internal/metrics"
	"github.com/agentrun/agentrun/internal/normalize"
	normclaude "github.com/agentrun/agentrun/internal/normalize/claude"
	normcodex "github.com/agentrun/agentrun/internal/normalize/codex"
	normgemini "github.com/agentrun/agentrun/internal/normalize/gemini"
	"github.com/agentrun/agentrun/internal/report"
	"github.com/agentrun/agentrun/internal/runerr"
	"github.com/agentrun/agentrun/internal/runid"
	"github.com/agentrun/agentrun/internal/runnerconfig"
	"github.com/agentrun/agentrun/internal/runspec"
	"github.com/agentrun/agentrun/internal/target"
	"github.com/agentrun/agentrun/internal/verify"
)

// RunOptions is the fully-assembled input to a single run, equivalent
// to spec.md's RunRequest plus CLI-level overrides.
type RunOptions struct {
	Config      runnerconfig.RunnerConfig
	RepoLocator string
	AgentType   string // "claude", "codex", or "gemini"
	PersonaID   string
	MissionID   string
	UseDocker   bool
	DockerImage string // Dockerfile path, required when UseDocker
	VerifyCmds  []string
	RunsRoot    string // parent directory under which <target_slug>/<ts>/<agent>/<seed> is created
	Seed        string // defaults to a value derived from runid.RunSeed when empty
}

// Summary is the orchestrator's terminal result. Its fields carry JSON
// tags; the CLI prints it as a short text summary.
type Summary struct {
	RunDir   string                  `json:"run_dir"`
	ExitCode int                     `json:"exit_code"`
	Report   map[string]any          `json:"report,omitempty"`
	Metrics  metrics.Metrics         `json:"metrics"`
	Failure  *runerr.StructuredError `json:"failure,omitempty"`
}

// Run executes one full run end to end, never panicking out to the
// caller: any unexpected failure is captured as an internal_error
// StructuredError in the returned Summary.
func Run(ctx context.Context, opts RunOptions) (result *Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			se := runerr.Internal(fmt.Sprintf("panic: %v", r))
			result = &Summary{ExitCode: 2, Failure: se}
			err = se
		}
	}()

	targetSlug := target.Slugify(opts.RepoLocator)
	seed := opts.Seed
	if seed == "" {
		seed = fmt.Sprintf("%d", runid.RunSeed(time.Now()))
	}

	runDir, werr := makeRunDir(opts.RunsRoot, targetSlug, opts.AgentType, seed)
	if werr != nil {
		return nil, werr
	}

	// §8-invariant-1: effective_run_spec.json and the rest of the
	// minimum artifact set exist regardless of outcome. Write skeletons
	// before any fallible step; successful resolution overwrites them
	// with the full content below.
	writeJSON(filepath.Join(runDir, "effective_run_spec.json"), map[string]any{
		"persona_id":   opts.PersonaID,
		"mission_id":   opts.MissionID,
		"repo_locator": opts.RepoLocator,
		"agent":        opts.AgentType,
		"seed":         seed,
	})
	writeJSON(filepath.Join(runDir, "metrics.json"), metrics.Metrics{})
	writeJSON(filepath.Join(runDir, "target_ref.json"), map[string]any{
		"repo_input": opts.RepoLocator,
		"agent":      opts.AgentType,
		"seed":       seed,
		"persona_id": opts.PersonaID,
		"mission_id": opts.MissionID,
	})

	cat, cerr := catalog.Load(opts.Config.CatalogRoot)
	if cerr != nil {
		return fail(runDir, cerr)
	}
	spec, serr := runspec.Resolve(cat, runspec.Request{PersonaID: opts.PersonaID, MissionID: opts.MissionID})
	if serr != nil {
		return fail(runDir, serr)
	}
	if werr := writeRunSpecArtifacts(runDir, spec); werr != nil {
		return fail(runDir, runerr.Internal(werr.Error()))
	}

	workspaceDir := filepath.Join(runDir, "workspace")
	acquired, aerr := target.Acquire(opts.RepoLocator, workspaceDir)
	if aerr != nil {
		return fail(runDir, aerr)
	}
	writeJSON(filepath.Join(runDir, "target_ref.json"), map[string]any{
		"repo_input": opts.RepoLocator,
		"agent":      opts.AgentType,
		"seed":       seed,
		"persona_id": spec.PersonaID,
		"mission_id": spec.MissionID,
		"commit_sha": acquired.CommitSHA,
	})

	sandbox, normOpts, berr := startBackend(ctx, opts, workspaceDir, runDir)
	if berr != nil {
		return fail(runDir, berr)
	}
	defer sandbox.Close(ctx)

	agentCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(opts.Config.AgentTimeout))
	defer cancel()

	adp, uerr := selectAdapter(opts.AgentType)
	if uerr != nil {
		return fail(runDir, uerr)
	}

	invokeCfg := adapter.Config{
		WorkingDir:    acquired.WorkspacePath,
		CommandPrefix: sandbox.CommandPrefix(),
		Mount:         sandbox.Mount(),
		Prompt:        spec.PromptBody,
		RunDir:        runDir,
		Timeout:       effectiveTimeout(opts.Config.AgentTimeout),
	}
	agentResult, ierr := adp.Invoke(agentCtx, invokeCfg)
	if ierr != nil {
		if se, ok := ierr.(*runerr.StructuredError); ok {
			return fail(runDir, se)
		}
		return fail(runDir, runerr.AgentRunFailed(ierr.Error(), "", false, nil, nil))
	}

	normalizedPath := filepath.Join(runDir, "normalized_events.jsonl")
	if nerr := normalizeEvents(opts.AgentType, agentResult.RawEventsPath, normalizedPath, normOpts); nerr != nil {
		return fail(runDir, runerr.AgentRunFailed(nerr.Error(), agentResult.Stderr, agentResult.StderrSynthesized, &agentResult.ExitCode, []string{"agent_stderr.txt"}))
	}

	evs, rerr := events.ReadAll(normalizedPath)
	if rerr != nil {
		return fail(runDir, runerr.Internal(rerr.Error()))
	}

	var computedMetrics metrics.Metrics
	var diffErr error
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		computedMetrics = metrics.Compute(evs)
		return nil
	})
	g.Go(func() error {
		diffErr = writeDiffNumstat(acquired.WorkspacePath, runDir)
		return nil
	})
	_ = g.Wait()
	if diffErr != nil {
		// diff capture failing is not fatal to the run; it is reported
		// as a missing artifact, never a silent drop.
		_ = os.WriteFile(filepath.Join(runDir, "diff_numstat.json"), []byte(fmt.Sprintf(`{"error": %q}`, diffErr.Error())), 0o644)
	}

	if agentResult.ExitCode != 0 {
		kind := failure.ClassifyFailureKind(agentResult.ExitCode, false, false, 0)
		_, warningOnly := failure.ClassifyKnownStderrWarnings(agentResult.Stderr)
		if !warningOnly {
			exitCode := agentResult.ExitCode
			return fail(runDir, runerr.AgentRunFailed(
				fmt.Sprintf("agent exited with status %d (%s)", exitCode, kind),
				agentResult.Stderr, agentResult.StderrSynthesized, &exitCode,
				[]string{"agent_stderr.txt", "agent_last_message.txt"}))
		}
	}

	rep, xerr := report.Extract(acquired.WorkspacePath)
	if xerr != nil {
		return fail(runDir, xerr)
	}
	if verr := report.Validate(rep, spec.ReportSchema); verr != nil {
		return fail(runDir, verr)
	}

	if len(opts.VerifyCmds) > 0 {
		runner := &verify.Runner{
			CommandPrefix: sandbox.CommandPrefix(),
			WorkingDir:    acquired.WorkspacePath,
			ShellFamily:   sandbox.ShellFamily(),
			RunDir:        runDir,
			Timeout:       effectiveTimeout(opts.Config.VerificationTimeout),
		}
		if _, verr := runner.RunAll(ctx, opts.VerifyCmds); verr != nil {
			return fail(runDir, verr)
		}
	}

	writeJSON(filepath.Join(runDir, "report.json"), rep)
	writeJSON(filepath.Join(runDir, "metrics.json"), computedMetrics)
	writeReportMarkdown(runDir, rep, computedMetrics, acquired)

	if !opts.Config.RetainRunDirs {
		// Minimum artifact set survives; bulky workspace does not.
		_ = os.RemoveAll(acquired.WorkspacePath)
	}

	return &Summary{RunDir: runDir, ExitCode: 0, Report: rep, Metrics: computedMetrics}, nil
}

func fail(runDir string, err error) (*Summary, error) {
	se, ok := err.(*runerr.StructuredError)
	if !ok {
		se = runerr.Internal(err.Error())
	}
	writeJSON(filepath.Join(runDir, "error.json"), se)
	// §3 minimum artifact set requires metrics.json on every exit path;
	// the skeleton written at run-dir creation already covers runs that
	// never got far enough to compute real metrics.
	if _, err := os.Stat(filepath.Join(runDir, "metrics.json")); err != nil {
		writeJSON(filepath.Join(runDir, "metrics.json"), metrics.Metrics{})
	}
	return &Summary{RunDir: runDir, ExitCode: 1, Failure: se}, se
}

// writeRunSpecArtifacts persists the resolved run-spec's primary
// artifacts: the full effective_run_spec.json plus the persona/mission
// source and resolved bodies, the prompt template and rendered prompt,
// and a copy of the report schema (§6).
func writeRunSpecArtifacts(runDir string, spec *runspec.EffectiveRunSpec) error {
	writeJSON(filepath.Join(runDir, "effective_run_spec.json"), map[string]any{
		"persona_id":      spec.PersonaID,
		"mission_id":      spec.MissionID,
		"execution_mode":  spec.ExecutionMode,
		"prompt_template": spec.PromptTemplate,
		"report_schema":   spec.ReportSchema,
	})

	files := map[string]string{
		"persona.source.md":   spec.PersonaSourceBody,
		"persona.resolved.md": spec.PersonaResolvedBody,
		"mission.source.md":   spec.MissionSourceBody,
		"mission.resolved.md": spec.MissionResolvedBody,
		"prompt.txt":          spec.PromptBody,
	}
	if spec.PromptTemplate != "" {
		files["prompt.template.md"] = spec.PromptTemplateText
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(runDir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("orchestrator: write %s: %w", name, err)
		}
	}

	schemaBytes, err := os.ReadFile(spec.ReportSchema)
	if err != nil {
		return fmt.Errorf("orchestrator: read report schema %s: %w", spec.ReportSchema, err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "report.schema.json"), schemaBytes, 0o644); err != nil {
		return fmt.Errorf("orchestrator: write report.schema.json: %w", err)
	}
	return nil
}

// writeReportMarkdown renders report.md: a human-readable summary of
// the validated report, computed metrics, and target reference (§6).
// Best-effort; a render failure never fails the run.
func writeReportMarkdown(runDir string, rep map[string]any, m metrics.Metrics, acquired *target.Acquired) {
	var b strings.Builder
	b.WriteString("# Run Report\n\n")
	if summary, ok := rep["summary"].(string); ok && summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", summary)
	}
	b.WriteString("## Metrics\n\n")
	fmt.Fprintf(&b, "- commands run: %d\n", m.CommandsRun)
	fmt.Fprintf(&b, "- commands failed: %d\n", len(m.CommandsFailed))
	fmt.Fprintf(&b, "- files read: %d\n", len(m.FilesRead))
	fmt.Fprintf(&b, "- files written: %d\n", len(m.FilesWritten))
	fmt.Fprintf(&b, "- tool calls: %d\n", m.ToolCalls)
	fmt.Fprintf(&b, "- web searches: %d\n", m.WebSearches)
	b.WriteString("\n## Target\n\n")
	fmt.Fprintf(&b, "- locator: %s\n", acquired.Locator)
	if acquired.CommitSHA != "" {
		fmt.Fprintf(&b, "- commit: %s\n", acquired.CommitSHA)
	}
	_ = os.WriteFile(filepath.Join(runDir, "report.md"), []byte(b.String()), 0o644)
}

func effectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// makeRunDir creates the structured run directory
// <runsRoot>/<targetSlug>/<UTC compact ts>/<agentType>/<seed>, the
// path downstream aggregation keys on (§3).
func makeRunDir(runsRoot, targetSlug, agentType, seed string) (string, error) {
	if runsRoot == "" {
		runsRoot = "."
	}
	ts := target.UTCTimestampCompact(time.Now())
	dir := filepath.Join(runsRoot, targetSlug, ts, agentType, seed)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: create run dir: %w", err)
	}
	return dir, nil
}

func selectAdapter(agentType string) (adapter.Adapter, error) {
	switch agentType {
	case "claude":
		return claude.Adapter{}, nil
	case "codex":
		return codex.Adapter{}, nil
	case "gemini":
		return gemini.Adapter{}, nil
	default:
		return nil, runerr.InvalidRunSpec("unknown_agent_type", fmt.Sprintf("unknown agent type %q", agentType), nil)
	}
}

func startBackend(ctx context.Context, opts RunOptions, workspaceDir, runDir string) (backend.Instance, normalize.Options, error) {
	if !opts.UseDocker {
		return backendlocal.New(workspaceDir), normalize.Options{WorkspacePath: workspaceDir, RunDir: runDir}, nil
	}
	sb, err := backenddocker.Start(ctx, backenddocker.Config{
		ContextDir: workspaceDir,
		Dockerfile: opts.DockerImage,
		RunDir:     runDir,
	})
	if err != nil {
		return nil, normalize.Options{}, err
	}
	return sb, normalize.Options{Mount: sb.Mount(), WorkspacePath: workspaceDir, RunDir: runDir}, nil
}

func normalizeEvents(agentType, rawPath, normalizedPath string, opts normalize.Options) error {
	w, err := events.NewWriter(normalizedPath)
	if err != nil {
		return err
	}
	defer w.Close()

	switch agentType {
	case "claude":
		return normclaude.Normalize(rawPath, w, opts)
	case "codex":
		return normcodex.Normalize(rawPath, w, opts)
	case "gemini":
		return normgemini.Normalize(rawPath, w, opts)
	default:
		return fmt.Errorf("orchestrator: no normalizer for agent type %q", agentType)
	}
}

func writeDiffNumstat(workspaceDir, runDir string) error {
	// Best-effort: only meaningful when the workspace is a git repo.
	path := filepath.Join(runDir, "diff_numstat.json")
	out, err := gitDiffNumstat(workspaceDir)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// writeJSON marshals v and atomically replaces path: write to a
// sibling temp file, then rename, so a crash mid-write never leaves a
// truncated JSON artifact (§3, §5).
func writeJSON(path string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}
