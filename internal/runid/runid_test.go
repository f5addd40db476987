package runid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewProducesDistinctLowercaseIDs(t *testing.T) {
	now := time.Now()
	a := New(now)
	b := New(now)
	require.NotEqual(t, a, b)
	require.Equal(t, a, strings.ToLower(a))
}

func TestContainerNameHasPrefix(t *testing.T) {
	name := ContainerName(time.Now())
	require.Contains(t, name, "agentrun-")
}
