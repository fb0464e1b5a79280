package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the optional algorithm marker senders put in front of the hex digest.
const SignaturePrefix = "sha256="

// Sign returns the lowercase hex HMAC-SHA256 of body keyed with secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC-SHA256 of the exact raw body under secret.
// The comparison ignores hex case and an optional case-insensitive "sha256=" prefix,
// and runs in constant time for equal-length inputs.
func Verify(body []byte, signature, secret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	received := strings.ToLower(stripPrefix(strings.TrimSpace(signature)))
	if received == "" {
		return false
	}

	expected := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// VerifyOptional applies Verify only when a secret is configured.
// Routes without a secret do not support signing and are accepted as-is.
func VerifyOptional(body []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	return Verify(body, signature, secret)
}

func stripPrefix(sig string) string {
	if len(sig) >= len(SignaturePrefix) && strings.EqualFold(sig[:len(SignaturePrefix)], SignaturePrefix) {
		return sig[len(SignaturePrefix):]
	}
	return sig
}
