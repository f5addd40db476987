// Package failure classifies agent-run failures and renders the
// human-readable failure text attached to a run's artifacts.
package failure

import (
	"fmt"
	"strings"
)

// Kind mirrors the structured error taxonomy's Type for run-level
// failures specifically.
type Kind string

const (
	KindAgentRunFailed     Kind = "agent_run_failed"
	KindAgentPreflight     Kind = "agent_preflight_failed"
	KindReportInvalid      Kind = "report_invalid"
	KindVerificationFailed Kind = "verification_failed"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindUnknown            Kind = "unknown"
)

// ClassifyFailureKind maps an exit code and whether a report was
// produced to a failure Kind.
func ClassifyFailureKind(exitCode int, reportProduced, verificationRan bool, verificationExit int) Kind {
	if exitCode != 0 {
		return KindAgentRunFailed
	}
	if !reportProduced {
		return KindReportInvalid
	}
	if verificationRan && verificationExit != 0 {
		return KindVerificationFailed
	}
	return KindUnknown
}

// knownWarning is a stable stderr phrase pattern known not to indicate
// a real failure, so a run with only these lines on stderr is still
// treated as clean.
type knownWarning struct {
	code      string
	substring string
}

var knownWarnings = []knownWarning{
	{code: "npm_funding_notice", substring: "npm notice"},
	{code: "pip_root_user_warning", substring: "Running pip as the 'root' user"},
	{code: "node_experimental_warning", substring: "ExperimentalWarning"},
	{code: "git_detached_head_notice", substring: "You are in 'detached HEAD' state"},
}

// ClassifyKnownStderrWarnings splits stderr into lines, tags every line
// matching a known-benign pattern, and reports whether the whole of
// stderr consists only of such lines (warningOnly).
func ClassifyKnownStderrWarnings(stderr string) (codes []string, warningOnly bool) {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	nonEmpty := 0
	matched := 0
	seen := map[string]bool{}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		hit := false
		for _, w := range knownWarnings {
			if strings.Contains(trimmed, w.substring) {
				hit = true
				if !seen[w.code] {
					seen[w.code] = true
					codes = append(codes, w.code)
				}
				break
			}
		}
		if hit {
			matched++
		}
	}
	warningOnly = nonEmpty > 0 && matched == nonEmpty
	return codes, warningOnly
}

// RenderFailureText produces the human-readable failure summary
// attached to a failed run, with attachments listed in a fixed order.
func RenderFailureText(kind Kind, message string, attachments []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run failed: %s\n\n%s\n", kind, message)

	ordered := orderAttachments(attachments)
	if len(ordered) > 0 {
		b.WriteString("\nattachments:\n")
		for _, a := range ordered {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	return b.String()
}

var attachmentOrder = []string{"agent_stderr.txt", "agent_last_message.txt"}

func orderAttachments(attachments []string) []string {
	set := map[string]bool{}
	for _, a := range attachments {
		set[a] = true
	}
	var out []string
	for _, preferred := range attachmentOrder {
		if set[preferred] {
			out = append(out, preferred)
			delete(set, preferred)
		}
	}
	// Remaining attachments keep their relative input order.
	for _, a := range attachments {
		if set[a] {
			out = append(out, a)
			delete(set, a)
		}
	}
	return out
}
