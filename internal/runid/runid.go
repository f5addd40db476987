// Package runid generates the identifiers used for run directories,
// sandbox container names, and default run seeds.
package runid

import (
	"crypto/rand"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a lowercase ULID string for t with entropy read from
// crypto/rand. Each call uses a fresh entropy source, so IDs created
// within the same millisecond are distinct but not ordered.
func New(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return strings.ToLower(id.String())
}

// ContainerName returns a deterministic-looking but unique docker
// container name for a sandbox instance.
func ContainerName(t time.Time) string {
	return fmt.Sprintf("agentrun-%s", New(t))
}

// RunSeed returns a seed usable as a default run directory suffix when
// the caller did not supply one, bounded to a value that prints
// compactly in directory names.
func RunSeed(t time.Time) uint32 {
	id := New(t)
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	return h % uint32(math.MaxInt32)
}
