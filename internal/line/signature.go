// Package line wraps the LINE Messaging API behind the narrow capability
// surface the rest of the application needs: webhook signature verification,
// webhook payload parsing into typed event descriptors, and profile lookup
// for contact enrichment.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// ValidateSignature reports whether signature is the base64-encoded
// HMAC-SHA256 of body under the channel secret, per the LINE webhook
// contract. Comparison is constant-time.
//
// The raw request body must be used; any re-serialization of the JSON breaks
// the digest.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// SignBody computes the webhook signature for body under the channel secret.
// It exists for tests and local tooling that need to produce valid requests.
func SignBody(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
