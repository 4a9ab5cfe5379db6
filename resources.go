package pdfseal

import (
	"crypto/sha256"
	"encoding/hex"
)

// imageKey derives the cache key under which a signer's embedded image is
// remembered for the session. The signer's matching key keeps the image
// stable across passes; inputs without one fall back to a digest of the
// image payload, so identical payloads still share one embedded object.
func imageKey(input *SignerInput) string {
	if input.ID != "" {
		return input.ID
	}
	if input.GroupID != "" {
		return input.GroupID
	}

	sum := sha256.Sum256(input.Image)
	return hex.EncodeToString(sum[:])
}
