// Package local implements the execution backend that runs the agent
// and verification commands directly on the host, adapted from the
// direct-subprocess path of the teacher's agent executor.
package local

import (
	"context"
	"runtime"

	"github.com/agentrun/agentrun/internal/backend"
)

// Sandbox is the trivial, no-isolation backend.Instance: commands run
// directly against the acquired workspace.
type Sandbox struct {
	workspacePath string
}

// New returns a local sandbox rooted at workspacePath.
func New(workspacePath string) *Sandbox {
	return &Sandbox{workspacePath: workspacePath}
}

func (s *Sandbox) CommandPrefix() []string { return nil }

func (s *Sandbox) Mount() string { return s.workspacePath }

func (s *Sandbox) ShellFamily() backend.ShellFamily {
	return backend.EffectiveShellFamily(true, runtime.GOOS == "windows")
}

func (s *Sandbox) Close(ctx context.Context) error { return nil }
