// Package auth verifies ownership signatures on mutating API calls. The
// real platform authenticates wallet signatures; that scheme is a boundary,
// so verification hides behind Verifier and the default implementation is an
// HMAC shared-secret check suitable for self-hosted deployments and tests.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("auth: signature mismatch")

// Verifier checks that signature proves address authored message.
type Verifier interface {
	Verify(address, message, signature string) error
}

// HMACVerifier verifies hex HMAC-SHA256 signatures over "address\nmessage",
// keyed by a shared secret. Binding the address keeps one caller from
// replaying another caller's signature on the same resource.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier builds a verifier keyed by secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify checks signature against the expected MAC for address and message.
func (v *HMACVerifier) Verify(address, message, signature string) error {
	want := v.Sign(address, message)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(signature))) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the hex MAC for address and message. Clients of self-hosted
// deployments use it to produce X-Owner-Signature values.
func (v *HMACVerifier) Sign(address, message string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(address))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
