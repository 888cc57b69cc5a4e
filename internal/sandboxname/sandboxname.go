// Package sandboxname computes the deterministic sandbox container name
// for a (user, project) pair, the way docker.DyadContainerName derives a
// container name from a dyad identifier.
package sandboxname

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Name returns "dreamcore-<sha256(user:project)[:12]>-<suffix>". suffix is
// a deployment-wide constant (from config.Tuning.SandboxNameSuffix);
// bumping it forces every sandbox in the fleet to be recreated on next
// acquire, since old names simply stop matching.
func Name(userID, projectID, suffix string) string {
	sum := sha256.Sum256([]byte(userID + ":" + projectID))
	digest := hex.EncodeToString(sum[:])[:12]
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		suffix = "gen1"
	}
	return "dreamcore-" + digest + "-" + suffix
}
