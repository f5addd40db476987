package docker

import "regexp"

// redactedEnvKeys never get archived verbatim in docker_inspect.json.
var redactedEnvKeys = regexp.MustCompile(`(?i)(token|secret|key|password|credential)=([^\s"]*)`)

// redactEnv masks likely-sensitive values in archived docker inspect
// output without dropping the diagnostic entirely.
func redactEnv(b []byte) []byte {
	return redactedEnvKeys.ReplaceAll(b, []byte("$1=***REDACTED***"))
}
