package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
)

// keyPrefix marks idempotency keys so they are recognisable in stores and logs.
const keyPrefix = "dlv_"

// IdempotencyKey derives the key that identifies one logical delivery intent.
// The same inputs always produce the same key; the result is URL and path safe.
func IdempotencyKey(releaseID, targetID, messageType string, subType model.MessageSubType, ernMessageID string) string {
	parts := []string{releaseID, targetID, messageType, string(subType), ernMessageID}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + hex.EncodeToString(sum[:])
}
