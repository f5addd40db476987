package runerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstructorsAlwaysSetHint(t *testing.T) {
	cases := []*StructuredError{
		InvalidRunSpec("missing_persona_file", "boom", nil),
		UnsupportedExecutionMode("batch"),
		TargetAcquisitionFailed("boom", nil),
		BackendUnavailable("docker_unreachable", "boom"),
		AgentPreflightFailed("missing_executable", "boom"),
		AgentRunFailed("boom", "", true, nil, nil),
		ReportInvalid("boom", nil),
		VerificationFailed("pytest", 1, false),
		VerificationFailed("pytest", 126, true),
		Internal("boom"),
	}
	for _, e := range cases {
		require.NotEmpty(t, e.Hint, "type=%s subtype=%s", e.Type, e.Subtype)
		require.NotEmpty(t, e.Error())
	}
}

func TestEmptyHintPanics(t *testing.T) {
	require.Panics(t, func() {
		new("x", "boom", "")
	})
}
