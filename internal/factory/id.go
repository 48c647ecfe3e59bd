package factory

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ResourceID derives the deterministic sub-address component for an owner's
// nth deployment. Hashing the owner and nonce together keeps ids short and
// uniform regardless of how long owner account names get; 16 bytes of the
// digest encode to 26 lowercase base32 characters.
func ResourceID(owner string, nonce uint64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d", owner, nonce))
	return strings.ToLower(idEncoding.EncodeToString(sum[:16]))
}
