package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// stampSecret is the fixed shared secret mixed into audit stamps. Every
// terminal and the remote ledger hold the same value, so a stamp proves the
// payload passed through a system component, not which one.
const stampSecret = "fieldtrust/audit-stamp/v1"

// Stamp computes a keyed SHA-256 digest over payload for system-internal
// audit stamping. This is a shared-secret path, weaker than the asymmetric
// credential signatures; it must never be used for the agent/vendor
// handshake.
func Stamp(payload string) string {
	digest := sha256.Sum256([]byte(payload + stampSecret))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// VerifyStamp reports whether stamp is the audit stamp for payload. The
// comparison runs in constant time.
func VerifyStamp(payload, stamp string) bool {
	expected := Stamp(payload)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(stamp)) == 1
}
