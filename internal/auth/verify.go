package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidPublicKey is returned when the configured public key is not a
// valid hex-encoded Ed25519 public key.
var ErrInvalidPublicKey = errors.New("auth: invalid public key")

// Verifier checks the detached Ed25519 signature Discord attaches to every
// interaction webhook. The signed message is the request timestamp header
// concatenated with the raw request body, in that order.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier creates a Verifier from the application's hex-encoded public key
// as shown in the Discord developer portal.
func NewVerifier(publicKeyHex string) (*Verifier, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("auth.NewVerifier: %w: %s", ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth.NewVerifier: %w: got %d bytes, want %d", ErrInvalidPublicKey, len(raw), ed25519.PublicKeySize)
	}

	return &Verifier{key: ed25519.PublicKey(raw)}, nil
}

// Verify reports whether signatureHex is a valid signature over timestamp||body.
// Missing or malformed inputs yield false, never an error; callers must reject
// the request before the body is parsed when this returns false.
func (v *Verifier) Verify(timestamp string, body []byte, signatureHex string) bool {
	if timestamp == "" || signatureHex == "" {
		return false
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)

	return ed25519.Verify(v.key, msg, sig)
}
