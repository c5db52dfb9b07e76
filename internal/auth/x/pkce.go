// Package x implements the OAuth 2.0 authorization code flow with PKCE against
// the X platform: building the authorization request, exchanging the returned
// code, refreshing and revoking tokens, and looking up the signed-in identity.
package x

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// challengeMethodS256 is the only challenge method this client ever sends.
const challengeMethodS256 = "S256"

// verifierEntropyBytes yields a 43 character base64url verifier.
const verifierEntropyBytes = 32

// GeneratePKCECodes creates a fresh code verifier and its S256 challenge.
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: generateCodeChallenge(verifier),
		Method:        challengeMethodS256,
	}, nil
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, verifierEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
