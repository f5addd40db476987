// Package backend defines the execution-backend abstraction shared by
// the local and docker backends: a running sandbox instance exposes a
// command-prefix that every adapter prepends to its child-process argv.
package backend

import "context"

// ShellFamily selects the shell dialect used to interpret verification
// commands and any shell-syntax adapter flags.
type ShellFamily string

const (
	ShellBash       ShellFamily = "bash"
	ShellPowerShell ShellFamily = "powershell"
)

// Instance is a running sandbox: either the local filesystem/process
// space, or a live docker container.
type Instance interface {
	// CommandPrefix returns the argv prefix every spawned child process
	// must be given, e.g. nil for local, or
	// []string{"docker","exec","-i","-w",mount,container} for docker.
	CommandPrefix() []string

	// Mount is the path (inside the sandbox) where the workspace is
	// visible; for local backends this equals the host workspace path.
	Mount() string

	// ShellFamily reports which shell dialect commands in this sandbox
	// should be interpreted with.
	ShellFamily() ShellFamily

	// Close tears the sandbox down, archiving diagnostics first if the
	// backend supports it.
	Close(ctx context.Context) error
}

// EffectiveShellFamily mirrors the spec's rule: PowerShell only when
// running locally on Windows; every remote (docker) sandbox uses bash,
// regardless of host OS.
func EffectiveShellFamily(isLocal bool, hostIsWindows bool) ShellFamily {
	if isLocal && hostIsWindows {
		return ShellPowerShell
	}
	return ShellBash
}
