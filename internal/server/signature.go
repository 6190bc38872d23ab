package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the algorithm tag GitHub prepends to the digest in
// the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// VerifySignature checks the HMAC-SHA256 signature of a webhook payload
// against the shared secret. It never fails with an error: an absent or
// malformed header is simply an invalid signature.
func VerifySignature(payload []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, SignaturePrefix) {
		// Covers the empty header as well.
		return false
	}
	received := strings.TrimPrefix(signature, SignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks.
	return hmac.Equal([]byte(expected), []byte(received))
}
