// Package signer holds the application identity used to sign delegated
// access requests. The signature is a detached ed25519 signature over the
// login bytes followed by the request public key, which is what
// tweetnacl.sign.detached produces for the same inputs.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/sealnote/pkg/core"
)

// DefaultRequester is the application id sent with every assertion unless
// another one is configured.
const DefaultRequester = "sealnote@localhost"

var (
	// ErrInvalidKey is returned when a signing key cannot be decoded.
	ErrInvalidKey = errors.New("invalid signing key")

	// ErrBadSignature is returned by Verify when the assertion does not match.
	ErrBadSignature = errors.New("bad signature")
)

// Signer signs on behalf of one application identity.
type Signer struct {
	requester string
	key       ed25519.PrivateKey
}

// New returns a signer for requester.
func New(requester string, key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(key))
	}
	if !ed25519.NewKeyFromSeed(key.Seed()).Equal(key) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
	}
	if requester == "" {
		requester = DefaultRequester
	}
	return &Signer{requester: requester, key: key}, nil
}

// FromBase64 decodes a 64-byte secret key (seed followed by public key) and
// returns a signer for requester.
func FromBase64(requester, token string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return New(requester, ed25519.PrivateKey(raw))
}

// Generate creates a signer with a fresh key.
func Generate(requester string) (*Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return New(requester, key)
}

// Requester returns the application id.
func (s *Signer) Requester() string { return s.requester }

// PublicKey returns the key a verifier needs to trust this signer.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Token returns the secret key in the form FromBase64 accepts.
func (s *Signer) Token() string {
	return base64.StdEncoding.EncodeToString(s.key)
}

// Sign implements core.Signer.
func (s *Signer) Sign(ctx context.Context, req core.SignRequest) (core.Assertion, error) {
	if err := ctx.Err(); err != nil {
		return core.Assertion{}, err
	}
	return core.Assertion{
		Requester: s.requester,
		Signature: ed25519.Sign(s.key, Message(req.Login, req.PublicKey)),
	}, nil
}

// Message returns the bytes that are signed for a request.
func Message(login string, publicKey []byte) []byte {
	msg := make([]byte, 0, len(login)+len(publicKey))
	msg = append(msg, login...)
	return append(msg, publicKey...)
}

// Verify checks an assertion against the requester's public key.
func Verify(pub ed25519.PublicKey, req core.SignRequest, a core.Assertion) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key has %d bytes", ErrInvalidKey, len(pub))
	}
	if !ed25519.Verify(pub, Message(req.Login, req.PublicKey), a.Signature) {
		return ErrBadSignature
	}
	return nil
}
