package docker

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// LooksLikeExecPrefix reports whether prefix looks like a
// "docker exec ... <container>" command prefix, in which case
// environment overrides must be injected as -e flags rather than set
// on the host process (host env does not cross the docker exec
// boundary).
func LooksLikeExecPrefix(prefix []string) bool {
	if len(prefix) < 3 {
		return false
	}
	bin := strings.ToLower(filepath.Base(prefix[0]))
	bin = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(bin, ".exe"), ".cmd"), ".bat")
	if bin != "docker" || prefix[1] != "exec" {
		return false
	}
	return !strings.HasPrefix(prefix[len(prefix)-1], "-")
}

// InjectEnv returns a copy of prefix with "-e KEY=VALUE" flags injected
// immediately before the container name token, keys sorted for
// deterministic output. Non-docker-exec prefixes are returned
// unmodified.
func InjectEnv(prefix []string, env map[string]string) []string {
	if len(prefix) == 0 || len(env) == 0 {
		return prefix
	}
	if !LooksLikeExecPrefix(prefix) {
		return prefix
	}
	container := prefix[len(prefix)-1]
	out := append([]string{}, prefix[:len(prefix)-1]...)

	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, "-e", fmt.Sprintf("%s=%s", k, env[k]))
	}
	out = append(out, container)
	return out
}
