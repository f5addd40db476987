package docker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeExecPrefix(t *testing.T) {
	require.True(t, LooksLikeExecPrefix([]string{"docker", "exec", "-i", "-w", "/workspace", "agentrun-abc"}))
	require.False(t, LooksLikeExecPrefix([]string{"docker", "run", "image"}))
	require.False(t, LooksLikeExecPrefix(nil))
	require.False(t, LooksLikeExecPrefix([]string{"docker", "exec", "-e"}))
}

func TestInjectEnvSortsKeysAndPreservesOrder(t *testing.T) {
	prefix := []string{"docker", "exec", "-i", "-w", "/workspace", "mycontainer"}
	out := InjectEnv(prefix, map[string]string{"ZEBRA": "1", "ALPHA": "2"})
	require.Equal(t, []string{
		"docker", "exec", "-i", "-w", "/workspace",
		"-e", "ALPHA=2", "-e", "ZEBRA=1", "mycontainer",
	}, out)
}

func TestInjectEnvNonDockerExecUnchanged(t *testing.T) {
	prefix := []string{"bash", "-c"}
	out := InjectEnv(prefix, map[string]string{"A": "1"})
	require.Equal(t, prefix, out)
}

func TestInjectEnvEmptyOverridesUnchanged(t *testing.T) {
	prefix := []string{"docker", "exec", "-i", "-w", "/workspace", "c"}
	out := InjectEnv(prefix, nil)
	require.Equal(t, prefix, out)
}
