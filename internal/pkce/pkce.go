// Package pkce generates the code verifier, challenge and state used by one
// Authorization-Code+PKCE login attempt (RFC 7636, S256 method).
package pkce

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const (
	// VerifierLength is the length of generated verifiers and states.
	VerifierLength = 43

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Largest multiple of len(alphabet) that fits in a byte; bytes at or
	// above it are rejected to keep sampling uniform.
	rejectAbove = 256 - 256%len(alphabet)
)

// Codes is the PKCE context of one login attempt.
type Codes struct {
	CodeVerifier  string
	CodeChallenge string
	State         string
}

// Generator draws verifiers from a random source.
type Generator struct {
	random io.Reader
}

// NewGenerator returns a generator backed by random, or crypto/rand when nil.
func NewGenerator(random io.Reader) *Generator {
	if random == nil {
		random = rand.Reader
	}
	return &Generator{random: random}
}

// New returns a fresh verifier, its challenge and an independent state.
func (g *Generator) New() (Codes, error) {
	verifier, err := g.Verifier()
	if err != nil {
		return Codes{}, err
	}
	state, err := g.Verifier()
	if err != nil {
		return Codes{}, err
	}
	return Codes{
		CodeVerifier:  verifier,
		CodeChallenge: Challenge(verifier),
		State:         state,
	}, nil
}

// Verifier returns VerifierLength characters sampled uniformly from [A-Za-z0-9].
func (g *Generator) Verifier() (string, error) {
	out := make([]byte, 0, VerifierLength)
	buf := make([]byte, VerifierLength)
	for len(out) < VerifierLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == VerifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge returns base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
